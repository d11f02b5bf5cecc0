package llmstream

// Completion is a fully drained stream: the coalesced assistant message plus
// the terminal finish reason and usage.
type Completion struct {
	// Message is the coalesced message (nil if the model said nothing)
	Message *Message

	// ToolCalls are the finalized tool calls, in the order they were opened
	ToolCalls []ToolCall

	// FinishReason is the canonical finish reason from FinishData
	FinishReason FinishReason

	// Usage is the token usage, nil if the vendor reported none
	Usage *Usage

	Provider ProviderID
	Model    string

	// Deltas counts the incremental results that were drained
	Deltas int
}

// Text returns the coalesced content or an empty string
func (c *Completion) Text() string {
	return c.Message.Text()
}

// Collect drains stream and returns the final result. The stream is closed on
// return. A truncated stream returns the partial completion together with the
// ErrStreamTruncated error; a cancelled stream returns what was collected and
// a nil error.
func Collect(stream *Stream) (*Completion, error) {
	defer stream.Close()

	completion := &Completion{}
	for stream.Next() {
		result := stream.Current()
		completion.Provider = result.Provider
		if result.Model != "" {
			completion.Model = result.Model
		}

		switch result.InternalKind {
		case InternalKindNone:
			completion.Deltas++
		case InternalKindAppendAssistantMessage:
			completion.Message = result.Message()
			if msg := result.Message(); msg != nil {
				completion.ToolCalls = msg.ToolCalls
			}
		case InternalKindFinishData:
			completion.FinishReason = result.FinishReason()
			completion.Usage = result.Usage
		}
	}
	return completion, stream.Err()
}
