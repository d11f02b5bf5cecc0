// Package anthropic decodes Anthropic Messages API streams: typed event blocks
// announced by an SSE "event:" line and carried in a "data:" JSON line.
package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// action is the next thing the decoder will do with a data payload
type action int

const (
	actionRead action = iota
	actionBlockStart
	actionBlockDelta
	actionBlockStop
	actionMsgStart
	actionMsgDelta
	actionMsgStop
	actionSkip
)

var actionNames = [...]string{
	actionRead:       "read",
	actionBlockStart: "block_start",
	actionBlockDelta: "block_delta",
	actionBlockStop:  "block_stop",
	actionMsgStart:   "msg_start",
	actionMsgDelta:   "msg_delta",
	actionMsgStop:    "msg_stop",
	actionSkip:       "skip",
}

func (a action) String() string { return actionNames[a] }

// events maps SSE event names (and JSON "type" values) to actions.
// "ping" is absent on purpose: it is dropped before dispatch.
var events = map[string]action{
	"message_start":       actionMsgStart,
	"content_block_start": actionBlockStart,
	"content_block_delta": actionBlockDelta,
	"content_block_stop":  actionBlockStop,
	"message_delta":       actionMsgDelta,
	"message_stop":        actionMsgStop,
	"error":               actionSkip,
}

// phase is where the decoder is within the message
type phase int

const (
	phaseIdle phase = iota
	phaseMessage
	phaseBlock
	phaseDone
)

var phaseNames = [...]string{
	phaseIdle:    "idle",
	phaseMessage: "message",
	phaseBlock:   "block",
	phaseDone:    "done",
}

func (p phase) String() string { return phaseNames[p] }

// transitions lists every legal (phase, action) pair and the phase it leads to.
// Anything missing is an illegal transition and the frame is skipped.
//
// A block start in idle opens the message implicitly (proxies that drop
// message_start), and message_stop inside a block force-closes the block.
var transitions = map[phase]map[action]phase{
	phaseIdle: {
		actionMsgStart:   phaseMessage,
		actionBlockStart: phaseBlock,
	},
	phaseMessage: {
		actionBlockStart: phaseBlock,
		actionMsgDelta:   phaseMessage,
		actionMsgStop:    phaseDone,
	},
	phaseBlock: {
		actionBlockDelta: phaseBlock,
		actionBlockStop:  phaseMessage,
		actionMsgStop:    phaseDone,
	},
}

// Decoder is a per-stream Anthropic decoder. Use New for every stream.
type Decoder struct {
	profile *llmstream.Profile
	logger  *zap.Logger
	turn    *llmstream.Turn

	phase    phase
	next     action // set by an event-only frame, consumed by the following data frame
	nextName string

	// blocks maps open content block indexes to their type
	blocks map[int64]string
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
		phase:   phaseIdle,
		next:    actionRead,
		blocks:  make(map[int64]string),
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

// Finish force-finalizes a stream that ended without message_stop
func (d *Decoder) Finish() []*llmstream.PartialResult {
	d.phase = phaseDone
	return d.turn.Finalize()
}

// Abort returns whatever was buffered, without FinishData
func (d *Decoder) Abort() []*llmstream.PartialResult {
	d.phase = phaseDone
	return d.turn.Abort()
}

// Decode consumes one frame. It accepts a combined event+data frame, an
// event-only frame followed by a data-only frame, or a data-only frame whose
// action is taken from its JSON "type".
func (d *Decoder) Decode(frame llmstream.Frame) ([]*llmstream.PartialResult, error) {
	if d.turn.Done() {
		return nil, nil
	}
	if frame.Event == "ping" {
		return nil, nil
	}

	data := bytes.TrimSpace(frame.Data)

	// Discriminator without a body: remember what the body will be
	if len(data) == 0 {
		if frame.Event == "" {
			return nil, nil
		}
		act, ok := events[frame.Event]
		if !ok {
			return nil, llmstream.NewFrameError(d.Provider(), frame.Event, llmstream.ErrUnknownEvent)
		}
		d.next, d.nextName = act, frame.Event
		return nil, nil
	}

	act, name, err := d.resolve(frame.Event, data)
	if err != nil {
		return nil, err
	}
	return d.apply(act, name, data)
}

// resolve picks the action for a data payload and resets the pending action.
func (d *Decoder) resolve(event string, data []byte) (action, string, error) {
	act, pending := d.next, d.nextName
	d.next, d.nextName = actionRead, ""
	if act != actionRead {
		return act, pending, nil
	}

	name := event
	if name == "" {
		if !gjson.ValidBytes(data) {
			return actionRead, name, llmstream.MalformedFrame(d.Provider(), name, fmt.Errorf("invalid JSON payload"))
		}
		name = gjson.GetBytes(data, "type").String()
	}
	if name == "ping" {
		return actionRead, name, nil
	}
	act, ok := events[name]
	if !ok {
		return actionRead, name, llmstream.NewFrameError(d.Provider(), name, llmstream.ErrUnknownEvent)
	}
	return act, name, nil
}

func (d *Decoder) apply(act action, name string, data []byte) ([]*llmstream.PartialResult, error) {
	switch act {
	case actionRead:
		return nil, nil
	case actionSkip:
		// Vendor error body: skip exactly this frame and resume reading
		message := gjson.GetBytes(data, "error.message").String()
		d.logger.Warn("vendor error event in stream", zap.String("message", message))
		return nil, llmstream.NewFrameError(d.Provider(), name,
			fmt.Errorf("%w: %s", llmstream.ErrVendorEvent, message))
	}

	to, ok := transitions[d.phase][act]
	if !ok {
		return nil, &llmstream.TransitionError{From: d.phase.String(), Action: act.String()}
	}

	var (
		results []*llmstream.PartialResult
		err     error
	)
	switch act {
	case actionMsgStart:
		err = d.messageStart(data)
	case actionBlockStart:
		err = d.blockStart(data)
	case actionBlockDelta:
		results, err = d.blockDelta(data)
	case actionBlockStop:
		err = d.blockStop(data)
	case actionMsgDelta:
		err = d.messageDelta(data)
	case actionMsgStop:
		results = d.turn.Finalize()
	}
	if err != nil {
		return nil, llmstream.MalformedFrame(d.Provider(), name, err)
	}

	d.phase = to
	return results, nil
}

func (d *Decoder) messageStart(data []byte) error {
	var event anthropic.MessageStartEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	d.turn.SetModel(string(event.Message.Model))
	usage := event.Message.Usage
	d.turn.Usage.Merge(llmstream.Usage{
		PromptTokens:     int(usage.InputTokens),
		CompletionTokens: int(usage.OutputTokens),
		CacheReadTokens:  int(usage.CacheReadInputTokens),
		CacheWriteTokens: int(usage.CacheCreationInputTokens),
	})
	return nil
}

func (d *Decoder) blockStart(data []byte) error {
	var event anthropic.ContentBlockStartEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	block := event.ContentBlock
	d.blocks[event.Index] = block.Type

	if block.Type == "tool_use" {
		index := int(event.Index)
		d.turn.Tools.Open(llmstream.IndexKey(index), llmstream.ToolCall{
			ID:    block.ID,
			Index: &index,
			Name:  block.Name,
		})
	}
	return nil
}

func (d *Decoder) blockDelta(data []byte) ([]*llmstream.PartialResult, error) {
	var event anthropic.ContentBlockDeltaEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}

	var result *llmstream.PartialResult
	switch event.Delta.Type {
	case "text_delta":
		result = d.turn.TextDelta(event.Delta.Text, "")
	case "thinking_delta":
		result = d.turn.TextDelta("", event.Delta.Thinking)
	case "input_json_delta":
		if !d.turn.Tools.Append(llmstream.IndexKey(int(event.Index)), event.Delta.PartialJSON) {
			d.logger.Debug("input_json_delta for a block that is not an open tool call",
				zap.Int64("index", event.Index))
		}
	default:
		// signature_delta, citations_delta: nothing to normalize
	}

	if result == nil {
		return nil, nil
	}
	return []*llmstream.PartialResult{result}, nil
}

func (d *Decoder) blockStop(data []byte) error {
	var event anthropic.ContentBlockStopEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	if d.blocks[event.Index] == "tool_use" {
		d.turn.Tools.Close(llmstream.IndexKey(int(event.Index)))
	}
	delete(d.blocks, event.Index)
	return nil
}

func (d *Decoder) messageDelta(data []byte) error {
	var event anthropic.MessageDeltaEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	if reason := string(event.Delta.StopReason); reason != "" {
		d.turn.SetFinishReason(d.profile.MapFinishReason(reason))
	}
	usage := event.Usage
	d.turn.Usage.Merge(llmstream.Usage{
		PromptTokens:     int(usage.InputTokens),
		CompletionTokens: int(usage.OutputTokens),
		CacheReadTokens:  int(usage.CacheReadInputTokens),
		CacheWriteTokens: int(usage.CacheCreationInputTokens),
	})
	return nil
}
