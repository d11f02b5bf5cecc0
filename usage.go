package llmstream

// Usage is the canonical token accounting for one request.
type Usage struct {
	// PromptTokens is the number of input tokens
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of output tokens
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is PromptTokens + CompletionTokens unless the vendor reports otherwise
	TotalTokens int `json:"total_tokens"`

	// CacheReadTokens is the number of input tokens served from the prompt cache (Anthropic, OpenAI)
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`

	// CacheWriteTokens is the number of input tokens written to the prompt cache (Anthropic)
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`

	// ReasoningTokens is the number of output tokens spent on reasoning (OpenAI o-series, DeepSeek)
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// IsZero returns true if no counter is set
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// UsageTracker collects usage for one stream and releases it exactly once.
//
// Vendors report usage differently: OpenAI sends it once in the final chunk,
// Anthropic sends input tokens in message_start and cumulative output tokens in
// message_delta, Cohere sends it in message-end. Set replaces, Merge keeps the
// field-wise maximum of cumulative counters; neither ever adds two reports.
type UsageTracker struct {
	usage Usage
	seen  bool
	taken bool
}

// Set replaces the recorded usage
func (t *UsageTracker) Set(u Usage) {
	t.usage = u
	t.seen = true
}

// Merge folds a cumulative report into the recorded usage
func (t *UsageTracker) Merge(u Usage) {
	t.usage.PromptTokens = max(t.usage.PromptTokens, u.PromptTokens)
	t.usage.CompletionTokens = max(t.usage.CompletionTokens, u.CompletionTokens)
	t.usage.TotalTokens = max(t.usage.TotalTokens, u.TotalTokens)
	t.usage.CacheReadTokens = max(t.usage.CacheReadTokens, u.CacheReadTokens)
	t.usage.CacheWriteTokens = max(t.usage.CacheWriteTokens, u.CacheWriteTokens)
	t.usage.ReasoningTokens = max(t.usage.ReasoningTokens, u.ReasoningTokens)
	t.seen = true
}

// Seen returns true if any usage was recorded
func (t *UsageTracker) Seen() bool {
	return t.seen
}

// Take returns the recorded usage the first time it is called and nil after
// that, or nil if nothing was recorded.
func (t *UsageTracker) Take() *Usage {
	if !t.seen || t.taken {
		return nil
	}
	t.taken = true

	u := t.usage
	if sum := u.PromptTokens + u.CompletionTokens; u.TotalTokens < sum {
		u.TotalTokens = sum
	}
	return &u
}
