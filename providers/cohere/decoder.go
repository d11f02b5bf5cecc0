// Package cohere decodes Cohere chat streams: flat JSON events carrying their
// own discriminator. v2 streams use "type" (content-delta, tool-call-start,
// message-end, ...); the legacy v1 API uses "event_type" (text-generation,
// tool-calls-chunk, stream-end, ...).
package cohere

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Event discriminators
const (
	eventMessageStart  = "message-start"
	eventContentStart  = "content-start"
	eventContentDelta  = "content-delta"
	eventContentEnd    = "content-end"
	eventToolPlanDelta = "tool-plan-delta"
	eventToolCallStart = "tool-call-start"
	eventToolCallDelta = "tool-call-delta"
	eventToolCallEnd   = "tool-call-end"
	eventCitationStart = "citation-start"
	eventCitationEnd   = "citation-end"
	eventMessageEnd    = "message-end"
	eventDebug         = "debug"

	eventV1StreamStart         = "stream-start"
	eventV1TextGeneration      = "text-generation"
	eventV1ToolCallsChunk      = "tool-calls-chunk"
	eventV1ToolCallsGeneration = "tool-calls-generation"
	eventV1SearchQueries       = "search-queries-generation"
	eventV1SearchResults       = "search-results"
	eventV1CitationGeneration  = "citation-generation"
	eventV1StreamEnd           = "stream-end"
)

// quiet events carry nothing the canonical sequence needs
var quiet = map[string]bool{
	eventMessageStart:         true,
	eventContentStart:         true,
	eventContentEnd:           true,
	eventCitationStart:        true,
	eventCitationEnd:          true,
	eventDebug:                true,
	eventV1StreamStart:        true,
	eventV1SearchQueries:      true,
	eventV1SearchResults:      true,
	eventV1CitationGeneration: true,
}

// contentKinds maps content-delta fields to part kinds
var contentKinds = map[string]llmstream.PartKind{
	"text":     llmstream.PartKindText,
	"thinking": llmstream.PartKindReasoning,
}

// Decoder is a per-stream Cohere decoder. Use New for every stream.
type Decoder struct {
	profile *llmstream.Profile
	logger  *zap.Logger
	turn    *llmstream.Turn
}

// New creates a decoder for one stream of profile's provider.
func New(profile *llmstream.Profile, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		profile: profile,
		logger:  logger.With(zap.String("provider", profile.Provider.String())),
		turn:    llmstream.NewTurn(profile.Provider),
	}
}

// Provider returns the provider this decoder was built for
func (d *Decoder) Provider() llmstream.ProviderID {
	return d.profile.Provider
}

// Done reports whether FinishData has been produced
func (d *Decoder) Done() bool {
	return d.turn.Done()
}

// Finish force-finalizes a stream that ended without message-end
func (d *Decoder) Finish() []*llmstream.PartialResult {
	return d.turn.Finalize()
}

// Abort returns whatever was buffered, without FinishData
func (d *Decoder) Abort() []*llmstream.PartialResult {
	return d.turn.Abort()
}

// Decode consumes one frame.
func (d *Decoder) Decode(frame llmstream.Frame) ([]*llmstream.PartialResult, error) {
	if d.turn.Done() {
		return nil, nil
	}

	data := bytes.TrimSpace(frame.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, llmstream.MalformedFrame(d.Provider(), frame.Event, fmt.Errorf("invalid JSON payload"))
	}

	event := gjson.ParseBytes(data)
	kind := event.Get("type").String()
	if kind == "" {
		kind = event.Get("event_type").String()
	}
	if kind == "" {
		kind = frame.Event
	}

	switch kind {
	case eventContentDelta:
		return d.contentDelta(event), nil
	case eventToolPlanDelta:
		return single(d.turn.PartsDelta([]llmstream.MessagePart{{
			Kind: llmstream.PartKindReasoning,
			Text: event.Get("delta.message.tool_plan").String(),
		}})), nil
	case eventToolCallStart:
		d.toolCallStart(event)
		return nil, nil
	case eventToolCallDelta:
		d.toolCallDelta(event)
		return nil, nil
	case eventToolCallEnd:
		d.turn.Tools.Close(llmstream.IndexKey(int(event.Get("index").Int())))
		return nil, nil
	case eventMessageEnd:
		d.finishReason(event.Get("delta.finish_reason"))
		d.usage(event.Get("delta.usage"))
		return d.turn.Finalize(), nil

	case eventV1TextGeneration:
		return single(d.turn.TextDelta(event.Get("text").String(), "")), nil
	case eventV1ToolCallsChunk:
		return d.toolCallsChunk(event), nil
	case eventV1ToolCallsGeneration:
		d.toolCallsGeneration(event)
		return nil, nil
	case eventV1StreamEnd:
		d.finishReason(event.Get("finish_reason"))
		d.usage(event.Get("response.meta"))
		return d.turn.Finalize(), nil
	}

	if quiet[kind] {
		return nil, nil
	}
	return nil, llmstream.NewFrameError(d.Provider(), kind, llmstream.ErrUnknownEvent)
}

// contentDelta yields text and thinking fragments as parts, in the order the
// fields appear in the event.
func (d *Decoder) contentDelta(event gjson.Result) []*llmstream.PartialResult {
	content := event.Get("delta.message.content")
	if !content.IsObject() {
		return nil
	}

	var parts []llmstream.MessagePart
	content.ForEach(func(key, value gjson.Result) bool {
		if kind, ok := contentKinds[key.String()]; ok && value.Type == gjson.String {
			parts = append(parts, llmstream.MessagePart{Kind: kind, Text: value.Str})
		}
		return true
	})
	return single(d.turn.PartsDelta(parts))
}

func (d *Decoder) toolCallStart(event gjson.Result) {
	index := int(event.Get("index").Int())
	call := event.Get("delta.message.tool_calls")
	d.turn.Tools.Open(llmstream.IndexKey(index), llmstream.ToolCall{
		ID:        call.Get("id").String(),
		Index:     &index,
		Name:      call.Get("function.name").String(),
		Arguments: call.Get("function.arguments").String(),
	})
}

func (d *Decoder) toolCallDelta(event gjson.Result) {
	index := int(event.Get("index").Int())
	fragment := event.Get("delta.message.tool_calls.function.arguments").String()
	if !d.turn.Tools.Append(llmstream.IndexKey(index), fragment) {
		d.logger.Debug("tool-call-delta before tool-call-start", zap.Int("index", index))
	}
}

// toolCallsChunk handles v1 chunks, which either stream tool-plan text or a
// fragment of one call's parameters. Start and delta share the same shape.
func (d *Decoder) toolCallsChunk(event gjson.Result) []*llmstream.PartialResult {
	if text := event.Get("text"); text.Exists() {
		return single(d.turn.PartsDelta([]llmstream.MessagePart{{
			Kind: llmstream.PartKindReasoning,
			Text: text.String(),
		}}))
	}

	delta := event.Get("tool_call_delta")
	if !delta.Exists() {
		return nil
	}
	index := int(delta.Get("index").Int())
	d.turn.Tools.Upsert(llmstream.IndexKey(index), llmstream.ToolCall{
		Index: &index,
		Name:  delta.Get("name").String(),
	}, delta.Get("parameters").String())
	return nil
}

// toolCallsGeneration carries the complete v1 tool calls. They are only used
// when no chunks were streamed for them.
func (d *Decoder) toolCallsGeneration(event gjson.Result) {
	if d.turn.Tools.Len() > 0 {
		return
	}
	for i, call := range event.Get("tool_calls").Array() {
		index := i
		key := llmstream.IndexKey(index)
		d.turn.Tools.Open(key, llmstream.ToolCall{
			Index:     &index,
			Name:      call.Get("name").String(),
			Arguments: call.Get("parameters").Raw,
		})
		d.turn.Tools.Close(key)
	}
}

func (d *Decoder) finishReason(raw gjson.Result) {
	if raw.Exists() && raw.String() != "" {
		d.turn.SetFinishReason(d.profile.MapFinishReason(raw.String()))
	}
}

// usage reads "tokens", falling back to "billed_units" when the vendor only
// reports billing counts.
func (d *Decoder) usage(meta gjson.Result) {
	if !meta.Exists() {
		return
	}
	counts := meta.Get("tokens")
	if !counts.Exists() {
		counts = meta.Get("billed_units")
	}
	if !counts.Exists() {
		return
	}
	d.turn.Usage.Set(llmstream.Usage{
		PromptTokens:     int(counts.Get("input_tokens").Int()),
		CompletionTokens: int(counts.Get("output_tokens").Int()),
		CacheReadTokens:  int(meta.Get("cached_tokens").Int()),
	})
}

func single(result *llmstream.PartialResult) []*llmstream.PartialResult {
	if result == nil {
		return nil
	}
	return []*llmstream.PartialResult{result}
}
