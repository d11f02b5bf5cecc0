package llmstream

// Turn is the per-stream state shared by every vendor decoder: the text and
// reasoning buffer, the tool-call accumulator, the usage tracker and the last
// reported finish reason. Each decoder owns one Turn and discards it after
// FinishData; a Turn is never shared between streams.
type Turn struct {
	// Provider is stamped on every result
	Provider ProviderID

	// Model is the vendor-reported model (first non-empty value wins)
	Model string

	// Text buffers visible and reasoning text until coalescing
	Text TextBuffer

	// Tools reassembles fragmented tool-call arguments
	Tools *ToolCallAccumulator

	// Usage releases token usage exactly once
	Usage UsageTracker

	finish *FinishReason
	done   bool
}

// NewTurn creates empty per-stream state for provider
func NewTurn(provider ProviderID) *Turn {
	return &Turn{
		Provider: provider,
		Tools:    NewToolCallAccumulator(),
	}
}

// SetModel records the model if not already known
func (t *Turn) SetModel(model string) {
	if t.Model == "" && model != "" {
		t.Model = model
	}
}

// SetFinishReason records the vendor's (mapped) finish reason. Later reports win.
func (t *Turn) SetFinishReason(reason FinishReason) {
	t.finish = &reason
}

// FinishReason returns the recorded finish reason, if any
func (t *Turn) FinishReason() (FinishReason, bool) {
	if t.finish == nil {
		return FinishReasonUnknown, false
	}
	return *t.finish, true
}

// Done returns true once FinishData (or an abort flush) has been produced
func (t *Turn) Done() bool {
	return t.done
}

// TextDelta buffers content and reasoning and returns the incremental result
// carrying them, or nil when both are empty.
func (t *Turn) TextDelta(content, reasoning string) *PartialResult {
	if content == "" && reasoning == "" {
		return nil
	}
	t.Text.AppendContent(content)
	t.Text.AppendReasoning(reasoning)

	return t.result(InternalKindNone, PartialChoice{
		Delta: &Message{
			Role:             RoleAssistant,
			Content:          stringPtrOrNil(content),
			ReasoningContent: stringPtrOrNil(reasoning),
		},
	})
}

// PartsDelta buffers typed fragments in order and returns one incremental
// result carrying them as Parts (plus the concatenated content/reasoning).
// Returns nil when every part is empty.
func (t *Turn) PartsDelta(parts []MessagePart) *PartialResult {
	var content, reasoning string
	kept := make([]MessagePart, 0, len(parts))
	for _, part := range parts {
		if part.Text == "" {
			continue
		}
		switch part.Kind {
		case PartKindReasoning:
			t.Text.AppendReasoning(part.Text)
			reasoning += part.Text
		default:
			t.Text.AppendContent(part.Text)
			content += part.Text
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 {
		return nil
	}

	return t.result(InternalKindNone, PartialChoice{
		Delta: &Message{
			Role:             RoleAssistant,
			Content:          stringPtrOrNil(content),
			ReasoningContent: stringPtrOrNil(reasoning),
			Parts:            kept,
		},
	})
}

// Finalize closes every tool call, coalesces buffered text and returns the
// closing results: the coalesced message (if there is anything to say)
// followed by FinishData carrying the finish reason and usage.
//
// With tool calls the coalesced message has role Tool and FinishReason
// ToolCalls, and any text buffered alongside the calls rides on it.
func (t *Turn) Finalize() []*PartialResult {
	if t.done {
		return nil
	}
	t.done = true

	reason, _ := t.FinishReason()
	out := make([]*PartialResult, 0, 2)

	if msg := t.coalesce(); msg != nil {
		choice := PartialChoice{Delta: msg}
		if msg.HasToolCalls() {
			toolCalls := FinishReasonToolCalls
			choice.FinishReason = &toolCalls
			if reason == FinishReasonUnknown || reason == FinishReasonEndTurn {
				reason = FinishReasonToolCalls
			}
		}
		out = append(out, t.result(InternalKindAppendAssistantMessage, choice))
	}

	finish := t.result(InternalKindFinishData, PartialChoice{FinishReason: &reason})
	finish.Usage = t.Usage.Take()
	return append(out, finish)
}

// Abort returns a best-effort coalesced message without FinishData and marks
// the turn done. Returns nil when nothing was buffered.
func (t *Turn) Abort() []*PartialResult {
	if t.done {
		return nil
	}
	t.done = true

	msg := t.coalesce()
	if msg == nil {
		return nil
	}
	return []*PartialResult{t.result(InternalKindAppendAssistantMessage, PartialChoice{Delta: msg})}
}

// coalesce drains the buffer and accumulator into one message, or nil.
func (t *Turn) coalesce() *Message {
	calls := t.Tools.CloseAll()
	content, reasoning := t.Text.Flush()
	if len(calls) == 0 && content == "" && reasoning == "" {
		return nil
	}

	msg := &Message{
		Role:             RoleAssistant,
		Content:          stringPtrOrNil(content),
		ReasoningContent: stringPtrOrNil(reasoning),
	}
	if len(calls) > 0 {
		msg.Role = RoleTool
		msg.ToolCalls = calls
	}
	return msg
}

func (t *Turn) result(kind InternalKind, choice PartialChoice) *PartialResult {
	return &PartialResult{
		Choices:      []PartialChoice{choice},
		InternalKind: kind,
		Provider:     t.Provider,
		Model:        t.Model,
	}
}
