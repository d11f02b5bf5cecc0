package llmstream

// InternalKind tags results that carry more than an incremental delta.
type InternalKind int

const (
	// InternalKindNone marks an incremental delta for real-time display.
	InternalKindNone InternalKind = iota

	// InternalKindAppendAssistantMessage marks a coalesced message that should be
	// appended to the conversation (full text, or finalized tool calls).
	InternalKindAppendAssistantMessage

	// InternalKindFinishData marks the terminal result carrying finish reason and usage.
	// It is always the last result of a stream.
	InternalKindFinishData
)

// String returns a readable name for logs
func (k InternalKind) String() string {
	switch k {
	case InternalKindAppendAssistantMessage:
		return "append_assistant_message"
	case InternalKindFinishData:
		return "finish_data"
	default:
		return "none"
	}
}

// FinishReason is the canonical cause of stream termination.
type FinishReason int

const (
	FinishReasonUnknown FinishReason = iota
	FinishReasonEndTurn
	FinishReasonLength
	FinishReasonToolCalls
	FinishReasonError
)

var finishReasonNames = map[FinishReason]string{
	FinishReasonUnknown:   "unknown",
	FinishReasonEndTurn:   "end_turn",
	FinishReasonLength:    "length",
	FinishReasonToolCalls: "tool_calls",
	FinishReasonError:     "error",
}

// String returns the canonical name (as used in profile YAML)
func (r FinishReason) String() string {
	if name, ok := finishReasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseFinishReason converts a canonical name back to a FinishReason.
// Unknown names map to FinishReasonUnknown.
func ParseFinishReason(name string) FinishReason {
	for reason, n := range finishReasonNames {
		if n == name {
			return reason
		}
	}
	return FinishReasonUnknown
}

// PartialChoice is one choice within a PartialResult.
type PartialChoice struct {
	// Index is the vendor choice index (always 0 for single-choice vendors)
	Index int

	// Delta contains the message fragment or coalesced message (nil on FinishData)
	Delta *Message

	// FinishReason is set on tool-call messages and on FinishData
	FinishReason *FinishReason
}

// PartialResult is one item of the canonical result sequence.
// Results are immutable once yielded.
//
// Typical sequence for a text answer:
//
//	{Delta: "Hel"} {Delta: "lo"} {AppendAssistantMessage: "Hello"} {FinishData: EndTurn, Usage}
//
// and for a tool call:
//
//	{AppendAssistantMessage: role=tool, ToolCalls=[...], FinishReason=ToolCalls} {FinishData: ToolCalls, Usage}
type PartialResult struct {
	// Choices holds the message deltas for this result
	Choices []PartialChoice

	// Usage is non-nil on exactly one result per stream: the FinishData result
	Usage *Usage

	// InternalKind tags coalesced and terminal results
	InternalKind InternalKind

	// Provider identifies the vendor that produced the stream
	Provider ProviderID

	// Model is the model reported by the vendor (may be empty until first seen)
	Model string
}

// Message returns the first choice's delta, or nil.
func (r *PartialResult) Message() *Message {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Delta
}

// FinishReason returns the first choice's finish reason, or FinishReasonUnknown.
func (r *PartialResult) FinishReason() FinishReason {
	if r == nil || len(r.Choices) == 0 || r.Choices[0].FinishReason == nil {
		return FinishReasonUnknown
	}
	return *r.Choices[0].FinishReason
}

// IsFinish returns true for the terminal FinishData result
func (r *PartialResult) IsFinish() bool {
	return r != nil && r.InternalKind == InternalKindFinishData
}

// IsDelta returns true for incremental (real-time) results
func (r *PartialResult) IsDelta() bool {
	return r != nil && r.InternalKind == InternalKindNone
}

// Decoder maps frames of one vendor grammar to canonical results.
//
// A Decoder holds all per-stream state (buffers, tool-call accumulator, parse
// state) and must not be reused across streams. Implementations live in the
// providers/ sub-packages.
type Decoder interface {
	// Decode consumes one frame and returns zero or more results.
	// A non-nil error is always recoverable: the frame was skipped and decoding
	// may continue with the next frame.
	Decode(frame Frame) ([]*PartialResult, error)

	// Finish force-finalizes a stream that ended without a terminal event.
	// It returns the coalesced message (if any) followed by FinishData.
	Finish() []*PartialResult

	// Abort returns a best-effort coalesced message built from whatever was
	// buffered, without FinishData. Used by CancelFlush.
	Abort() []*PartialResult

	// Done reports whether the decoder has emitted FinishData.
	Done() bool

	// Provider returns the vendor this decoder speaks.
	Provider() ProviderID
}
