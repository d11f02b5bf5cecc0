// Package openai decodes OpenAI-style chat completion streams: flat delta
// JSON chunks terminated by a "[DONE]" sentinel. OpenRouter and DeepSeek
// stream the same grammar and are handled through their profiles.
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	llmstream "github.com/haowjy/meridian-stream-go"
)

const defaultDoneSentinel = "[DONE]"

// decoderState is the explicit state of the decoder
type decoderState int

const (
	// stateText yields every content/reasoning delta immediately
	stateText decoderState = iota

	// stateTools accumulates tool calls and yields nothing until the end
	stateTools
)

func (s decoderState) String() string {
	if s == stateTools {
		return "tools"
	}
	return "text"
}

// Decoder is a per-stream OpenAI-style decoder. Use New for every stream.
type Decoder struct {
	profile *llmstream.Profile
	logger  *zap.Logger
	turn    *llmstream.Turn
	state   decoderState
	done    string
}

// New creates a decoder for one stream of profile's provider.
func New(profile *llmstream.Profile, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := profile.DoneSentinel
	if done == "" {
		done = defaultDoneSentinel
	}
	return &Decoder{
		profile: profile,
		logger:  logger.With(zap.String("provider", profile.Provider.String())),
		turn:    llmstream.NewTurn(profile.Provider),
		state:   stateText,
		done:    done,
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

// Decode consumes one frame.
func (d *Decoder) Decode(frame llmstream.Frame) ([]*llmstream.PartialResult, error) {
	if d.turn.Done() {
		return nil, nil
	}

	data := bytes.TrimSpace(frame.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if string(data) == d.done {
		return d.turn.Finalize(), nil
	}

	if !gjson.ValidBytes(data) {
		return nil, llmstream.MalformedFrame(d.Provider(), frame.Event, fmt.Errorf("invalid JSON payload"))
	}

	// {"error": {...}} mid-stream: record it and keep reading
	if vendorErr := gjson.GetBytes(data, "error"); vendorErr.Exists() && vendorErr.Type != gjson.Null {
		d.turn.SetFinishReason(llmstream.FinishReasonError)
		message := vendorErr.Get("message").String()
		if message == "" {
			message = vendorErr.String()
		}
		return nil, llmstream.NewFrameError(d.Provider(), "error",
			fmt.Errorf("%w: %s", llmstream.ErrVendorEvent, message))
	}

	var chunk goopenai.ChatCompletionStreamResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, llmstream.MalformedFrame(d.Provider(), frame.Event, err)
	}

	d.turn.SetModel(chunk.Model)
	if chunk.Usage != nil {
		d.turn.Usage.Set(convertUsage(chunk.Usage))
	}

	// Usage-only chunk (stream_options.include_usage)
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	// Only the first choice is decoded; n > 1 is not supported for streaming
	choice := chunk.Choices[0]
	delta := choice.Delta
	content := delta.Content + delta.Refusal
	reasoning := delta.ReasoningContent + d.extraReasoning(data)

	if d.state == stateText && (len(delta.ToolCalls) > 0 || delta.FunctionCall != nil) {
		d.logger.Debug("switching to tool accumulation", zap.Stringer("state", d.state))
		d.state = stateTools
	}

	var results []*llmstream.PartialResult
	switch d.state {
	case stateTools:
		d.accumulate(delta)
		// Text alongside tool calls is buffered and rides on the tool-call message
		d.turn.Text.AppendContent(content)
		d.turn.Text.AppendReasoning(reasoning)
	default:
		if result := d.turn.TextDelta(content, reasoning); result != nil {
			results = append(results, result)
		}
	}

	if choice.FinishReason != "" {
		d.turn.SetFinishReason(d.profile.MapFinishReason(string(choice.FinishReason)))
	}
	return results, nil
}

// Finish force-finalizes a stream that ended without "[DONE]"
func (d *Decoder) Finish() []*llmstream.PartialResult {
	return d.turn.Finalize()
}

// Abort returns whatever was buffered, without FinishData
func (d *Decoder) Abort() []*llmstream.PartialResult {
	return d.turn.Abort()
}

// accumulate folds one delta's tool-call fragments into the accumulator.
func (d *Decoder) accumulate(delta goopenai.ChatCompletionStreamChoiceDelta) {
	for _, tc := range delta.ToolCalls {
		seed := llmstream.ToolCall{
			ID:    tc.ID,
			Index: tc.Index,
			Name:  tc.Function.Name,
		}
		d.turn.Tools.Upsert(seed.Key(), seed, tc.Function.Arguments)
	}

	// Legacy function_call streaming carries a single unnamed-index call
	if fc := delta.FunctionCall; fc != nil {
		index := 0
		seed := llmstream.ToolCall{Index: &index, Name: fc.Name}
		d.turn.Tools.Upsert(seed.Key(), seed, fc.Arguments)
	}
}

// extraReasoning reads profile-declared reasoning fields that go-openai does not model.
func (d *Decoder) extraReasoning(data []byte) string {
	if len(d.profile.ReasoningPaths) == 0 {
		return ""
	}
	var out string
	for _, result := range gjson.GetManyBytes(data, d.profile.ReasoningPaths...) {
		if result.Type == gjson.String {
			out += result.Str
		}
	}
	return out
}

func convertUsage(u *goopenai.Usage) llmstream.Usage {
	usage := llmstream.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CacheReadTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return usage
}
