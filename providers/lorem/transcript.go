package lorem

import (
	"bytes"
	"encoding/json"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/sjson"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Transcript is a rendered vendor stream, one SSE frame per element.
type Transcript struct {
	ContentType string
	Frames      [][]byte
}

// Bytes returns the transcript as a single byte stream
func (t *Transcript) Bytes() []byte {
	return bytes.Join(t.Frames, nil)
}

// vendor finish reasons per family
var finishReasons = map[llmstream.Family]map[llmstream.FinishReason]string{
	llmstream.FamilyOpenAI: {
		llmstream.FinishReasonEndTurn:   "stop",
		llmstream.FinishReasonLength:    "length",
		llmstream.FinishReasonToolCalls: "tool_calls",
		llmstream.FinishReasonError:     "content_filter",
	},
	llmstream.FamilyAnthropic: {
		llmstream.FinishReasonEndTurn:   "end_turn",
		llmstream.FinishReasonLength:    "max_tokens",
		llmstream.FinishReasonToolCalls: "tool_use",
		llmstream.FinishReasonError:     "refusal",
	},
	llmstream.FamilyCohere: {
		llmstream.FinishReasonEndTurn:   "COMPLETE",
		llmstream.FinishReasonLength:    "MAX_TOKENS",
		llmstream.FinishReasonToolCalls: "TOOL_CALL",
		llmstream.FinishReasonError:     "ERROR",
	},
}

// Render encodes script in family's wire grammar, cutting text and argument
// strings with split. A nil split streams each string whole.
func Render(family llmstream.Family, script Script, split Splitter) *Transcript {
	if split == nil {
		split = Whole
	}
	w := &writer{split: split, finish: finishReasons[family][script.FinishReason]}
	switch family {
	case llmstream.FamilyAnthropic:
		w.anthropic(script)
	case llmstream.FamilyCohere:
		w.cohere(script)
	default:
		w.openai(script)
	}
	return &Transcript{ContentType: llmstream.ContentTypeEventStream, Frames: w.frames}
}

type writer struct {
	split  Splitter
	finish string
	frames [][]byte
}

// event appends one SSE frame. An empty name writes a data-only frame.
func (w *writer) event(name string, data []byte) {
	var buf bytes.Buffer
	if name != "" {
		buf.WriteString("event: ")
		buf.WriteString(name)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	w.frames = append(w.frames, buf.Bytes())
}

// object builds a JSON object field by field, keeping insertion order.
type object []byte

func (o object) set(path string, value any) object {
	out, _ := sjson.SetBytes(o, path, value)
	return out
}

func (o object) raw(path, value string) object {
	out, _ := sjson.SetRawBytes(o, path, []byte(value))
	return out
}

// ===== OpenAI =====

func (w *writer) openai(script Script) {
	chunk := func(delta goopenai.ChatCompletionStreamChoiceDelta, finish string) {
		data, _ := json.Marshal(goopenai.ChatCompletionStreamResponse{
			ID:      "chatcmpl-lorem",
			Object:  "chat.completion.chunk",
			Model:   script.Model,
			Choices: []goopenai.ChatCompletionStreamChoice{{Delta: delta, FinishReason: goopenai.FinishReason(finish)}},
		})
		w.event("", data)
	}

	chunk(goopenai.ChatCompletionStreamChoiceDelta{Role: goopenai.ChatMessageRoleAssistant}, "")
	for _, frag := range w.split(script.Reasoning) {
		chunk(goopenai.ChatCompletionStreamChoiceDelta{ReasoningContent: frag}, "")
	}
	for _, frag := range w.split(script.Text) {
		chunk(goopenai.ChatCompletionStreamChoiceDelta{Content: frag}, "")
	}
	for _, call := range script.ToolCalls {
		frags := w.split(call.Arguments)
		if len(frags) == 0 {
			frags = []string{""}
		}
		for i, frag := range frags {
			tc := goopenai.ToolCall{Index: call.Index, Function: goopenai.FunctionCall{Arguments: frag}}
			if i == 0 {
				tc.ID = call.ID
				tc.Type = goopenai.ToolTypeFunction
				tc.Function.Name = call.Name
			}
			chunk(goopenai.ChatCompletionStreamChoiceDelta{ToolCalls: []goopenai.ToolCall{tc}}, "")
		}
	}
	chunk(goopenai.ChatCompletionStreamChoiceDelta{}, w.finish)

	usage, _ := json.Marshal(goopenai.ChatCompletionStreamResponse{
		ID:      "chatcmpl-lorem",
		Object:  "chat.completion.chunk",
		Model:   script.Model,
		Choices: []goopenai.ChatCompletionStreamChoice{},
		Usage: &goopenai.Usage{
			PromptTokens:     script.Usage.PromptTokens,
			CompletionTokens: script.Usage.CompletionTokens,
			TotalTokens:      script.Usage.TotalTokens,
		},
	})
	w.event("", usage)
	w.event("", []byte("[DONE]"))
}

// ===== Anthropic =====

func (w *writer) anthropic(script Script) {
	w.event("message_start", object(nil).
		set("type", "message_start").
		set("message.id", "msg_lorem").
		set("message.type", "message").
		set("message.role", "assistant").
		set("message.model", script.Model).
		set("message.usage.input_tokens", script.Usage.PromptTokens).
		set("message.usage.output_tokens", 1))
	w.event("ping", object(nil).set("type", "ping"))

	index := 0
	block := func(start object, deltaType, field, text string) {
		w.event("content_block_start", object(nil).
			set("type", "content_block_start").
			set("index", index).
			raw("content_block", string(start)))
		for _, frag := range w.split(text) {
			w.event("content_block_delta", object(nil).
				set("type", "content_block_delta").
				set("index", index).
				set("delta.type", deltaType).
				set("delta."+field, frag))
		}
		w.event("content_block_stop", object(nil).
			set("type", "content_block_stop").
			set("index", index))
		index++
	}

	if script.Reasoning != "" {
		block(object(nil).set("type", "thinking").set("thinking", ""), "thinking_delta", "thinking", script.Reasoning)
	}
	if script.Text != "" {
		block(object(nil).set("type", "text").set("text", ""), "text_delta", "text", script.Text)
	}
	for _, call := range script.ToolCalls {
		start := object(nil).
			set("type", "tool_use").
			set("id", call.ID).
			set("name", call.Name).
			raw("input", "{}")
		block(start, "input_json_delta", "partial_json", call.Arguments)
	}

	w.event("message_delta", object(nil).
		set("type", "message_delta").
		set("delta.stop_reason", w.finish).
		raw("delta.stop_sequence", "null").
		set("usage.output_tokens", script.Usage.CompletionTokens))
	w.event("message_stop", object(nil).set("type", "message_stop"))
}

// ===== Cohere (v2) =====

func (w *writer) cohere(script Script) {
	w.event("message-start", object(nil).
		set("type", "message-start").
		set("id", "lorem").
		set("delta.message.role", "assistant"))

	if script.Reasoning != "" || script.Text != "" {
		w.event("content-start", object(nil).
			set("type", "content-start").
			set("index", 0).
			set("delta.message.content.type", "text"))
		for _, frag := range w.split(script.Reasoning) {
			w.event("content-delta", object(nil).
				set("type", "content-delta").
				set("index", 0).
				set("delta.message.content.thinking", frag))
		}
		for _, frag := range w.split(script.Text) {
			w.event("content-delta", object(nil).
				set("type", "content-delta").
				set("index", 0).
				set("delta.message.content.text", frag))
		}
		w.event("content-end", object(nil).set("type", "content-end").set("index", 0))
	}

	for _, call := range script.ToolCalls {
		frags := w.split(call.Arguments)
		first := ""
		if len(frags) > 0 {
			first, frags = frags[0], frags[1:]
		}
		w.event("tool-call-start", object(nil).
			set("type", "tool-call-start").
			set("index", *call.Index).
			set("delta.message.tool_calls.id", call.ID).
			set("delta.message.tool_calls.type", "function").
			set("delta.message.tool_calls.function.name", call.Name).
			set("delta.message.tool_calls.function.arguments", first))
		for _, frag := range frags {
			w.event("tool-call-delta", object(nil).
				set("type", "tool-call-delta").
				set("index", *call.Index).
				set("delta.message.tool_calls.function.arguments", frag))
		}
		w.event("tool-call-end", object(nil).set("type", "tool-call-end").set("index", *call.Index))
	}

	w.event("message-end", object(nil).
		set("type", "message-end").
		set("delta.finish_reason", w.finish).
		set("delta.usage.billed_units.input_tokens", script.Usage.PromptTokens).
		set("delta.usage.billed_units.output_tokens", script.Usage.CompletionTokens).
		set("delta.usage.tokens.input_tokens", script.Usage.PromptTokens).
		set("delta.usage.tokens.output_tokens", script.Usage.CompletionTokens))
}
