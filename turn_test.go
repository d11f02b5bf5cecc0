package llmstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageTracker(t *testing.T) {
	tests := []struct {
		name     string
		apply    func(*UsageTracker)
		expected *Usage
	}{
		{
			name:     "nothing recorded",
			apply:    func(*UsageTracker) {},
			expected: nil,
		},
		{
			name: "set replaces, never adds",
			apply: func(u *UsageTracker) {
				u.Set(Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
				u.Set(Usage{PromptTokens: 10, CompletionTokens: 7, TotalTokens: 17})
			},
			expected: &Usage{PromptTokens: 10, CompletionTokens: 7, TotalTokens: 17},
		},
		{
			name: "merge keeps cumulative maximum",
			apply: func(u *UsageTracker) {
				u.Merge(Usage{PromptTokens: 25, CompletionTokens: 1, CacheReadTokens: 4})
				u.Merge(Usage{CompletionTokens: 42})
			},
			expected: &Usage{PromptTokens: 25, CompletionTokens: 42, TotalTokens: 67, CacheReadTokens: 4},
		},
		{
			name: "total computed when missing",
			apply: func(u *UsageTracker) {
				u.Set(Usage{PromptTokens: 3, CompletionTokens: 2})
			},
			expected: &Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		},
		{
			name: "vendor total above the sum is kept",
			apply: func(u *UsageTracker) {
				u.Set(Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 9})
			},
			expected: &Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tracker UsageTracker
			tt.apply(&tracker)

			assert.Equal(t, tt.expected, tracker.Take())
			assert.Nil(t, tracker.Take(), "usage is released at most once")
		})
	}
}

func TestTurn_TextDelta(t *testing.T) {
	turn := NewTurn(ProviderOpenAI)
	turn.SetModel("gpt-4o")
	turn.SetModel("ignored")

	assert.Nil(t, turn.TextDelta("", ""))

	result := turn.TextDelta("Hel", "")
	require.NotNil(t, result)
	assert.True(t, result.IsDelta())
	assert.Equal(t, "Hel", result.Message().Text())
	assert.Nil(t, result.Message().ReasoningContent, "absent reasoning stays nil")
	assert.Equal(t, RoleAssistant, result.Message().Role)
	assert.Equal(t, ProviderOpenAI, result.Provider)
	assert.Equal(t, "gpt-4o", result.Model)
	assert.Nil(t, result.Usage)
}

func TestTurn_PartsDelta(t *testing.T) {
	turn := NewTurn(ProviderCohere)

	result := turn.PartsDelta([]MessagePart{
		{Kind: PartKindReasoning, Text: "think"},
		{Kind: PartKindText, Text: ""},
		{Kind: PartKindText, Text: "say"},
	})
	require.NotNil(t, result)
	msg := result.Message()
	assert.Equal(t, []MessagePart{
		{Kind: PartKindReasoning, Text: "think"},
		{Kind: PartKindText, Text: "say"},
	}, msg.Parts)
	assert.Equal(t, "say", msg.Text())
	assert.Equal(t, "think", msg.Reasoning())

	assert.Nil(t, turn.PartsDelta([]MessagePart{{Kind: PartKindText}}))
}

func TestTurn_FinalizeText(t *testing.T) {
	turn := NewTurn(ProviderOpenAI)
	turn.TextDelta("Hel", "hmm ")
	turn.TextDelta("lo", "ok")
	turn.SetFinishReason(FinishReasonEndTurn)
	turn.Usage.Set(Usage{PromptTokens: 1, CompletionTokens: 2})

	results := turn.Finalize()
	require.Len(t, results, 2)

	msg := results[0]
	assert.Equal(t, InternalKindAppendAssistantMessage, msg.InternalKind)
	assert.Equal(t, "Hello", msg.Message().Text())
	assert.Equal(t, "hmm ok", msg.Message().Reasoning())
	assert.Equal(t, RoleAssistant, msg.Message().Role)
	assert.Nil(t, msg.Usage)

	finish := results[1]
	assert.True(t, finish.IsFinish())
	assert.Equal(t, FinishReasonEndTurn, finish.FinishReason())
	assert.Equal(t, &Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}, finish.Usage)
	assert.Nil(t, finish.Message())

	assert.True(t, turn.Done())
	assert.Nil(t, turn.Finalize(), "a turn finalizes once")
}

func TestTurn_FinalizeToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		reported *FinishReason
		expected FinishReason
	}{
		{name: "no vendor reason", expected: FinishReasonToolCalls},
		{name: "end turn is upgraded", reported: ptr(FinishReasonEndTurn), expected: FinishReasonToolCalls},
		{name: "length is kept", reported: ptr(FinishReasonLength), expected: FinishReasonLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := NewTurn(ProviderAnthropic)
			turn.TextDelta("Let me check.", "")
			turn.Tools.Open(IndexKey(1), ToolCall{ID: "toolu_1", Index: intPtr(1), Name: "get", Arguments: `{"x":5}`})
			if tt.reported != nil {
				turn.SetFinishReason(*tt.reported)
			}

			results := turn.Finalize()
			require.Len(t, results, 2)

			msg := results[0].Message()
			assert.Equal(t, RoleTool, msg.Role)
			assert.Equal(t, "Let me check.", msg.Text(), "text buffered next to tool calls is kept")
			require.Len(t, msg.ToolCalls, 1)
			assert.Equal(t, `{"x":5}`, msg.ToolCalls[0].Arguments)
			assert.Equal(t, FinishReasonToolCalls, results[0].FinishReason())

			assert.Equal(t, tt.expected, results[1].FinishReason())
		})
	}
}

func TestTurn_FinalizeEmpty(t *testing.T) {
	turn := NewTurn(ProviderOpenAI)

	results := turn.Finalize()
	require.Len(t, results, 1, "nothing to say still ends with FinishData")
	assert.True(t, results[0].IsFinish())
	assert.Equal(t, FinishReasonUnknown, results[0].FinishReason())
	assert.Nil(t, results[0].Usage)
}

func TestTurn_Abort(t *testing.T) {
	turn := NewTurn(ProviderOpenAI)
	turn.Tools.Open(IndexKey(0), ToolCall{Name: "f", Arguments: `{"a":`})
	turn.Usage.Set(Usage{PromptTokens: 9})

	results := turn.Abort()
	require.Len(t, results, 1)
	assert.Equal(t, InternalKindAppendAssistantMessage, results[0].InternalKind)
	assert.Equal(t, `{"a":`, results[0].Message().ToolCalls[0].Arguments)
	assert.Nil(t, results[0].Usage, "aborted streams carry no usage")
	assert.True(t, turn.Done())

	assert.Nil(t, NewTurn(ProviderOpenAI).Abort(), "nothing buffered, nothing flushed")
}

func ptr[T any](v T) *T {
	return &v
}
