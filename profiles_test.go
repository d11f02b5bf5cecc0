package llmstream

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedProfiles(t *testing.T) {
	tests := []struct {
		provider ProviderID
		family   Family
	}{
		{ProviderOpenAI, FamilyOpenAI},
		{ProviderOpenRouter, FamilyOpenAI},
		{ProviderDeepSeek, FamilyOpenAI},
		{ProviderLorem, FamilyOpenAI},
		{ProviderAnthropic, FamilyAnthropic},
		{ProviderCohere, FamilyCohere},
		{ProviderCohereV1, FamilyCohere},
	}

	for _, tt := range tests {
		t.Run(tt.provider.String(), func(t *testing.T) {
			profile, err := GetProfile(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.family, profile.Family)
			assert.NoError(t, profile.Validate())
			assert.True(t, tt.provider.IsValid())
		})
	}
}

func TestGetProfile_Unknown(t *testing.T) {
	_, err := GetProfile("mistral")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedProvider))
}

func TestProfile_MapFinishReason(t *testing.T) {
	tests := []struct {
		provider ProviderID
		raw      string
		expected FinishReason
	}{
		{ProviderOpenAI, "stop", FinishReasonEndTurn},
		{ProviderOpenAI, "length", FinishReasonLength},
		{ProviderOpenAI, "tool_calls", FinishReasonToolCalls},
		{ProviderOpenAI, "content_filter", FinishReasonError},
		{ProviderOpenAI, "", FinishReasonUnknown},
		{ProviderOpenAI, "something_new", FinishReasonUnknown},
		{ProviderAnthropic, "end_turn", FinishReasonEndTurn},
		{ProviderAnthropic, "max_tokens", FinishReasonLength},
		{ProviderAnthropic, "tool_use", FinishReasonToolCalls},
		{ProviderAnthropic, "refusal", FinishReasonError},
		{ProviderCohere, "COMPLETE", FinishReasonEndTurn},
		{ProviderCohere, "complete", FinishReasonEndTurn},
		{ProviderCohere, "MAX_TOKENS", FinishReasonLength},
		{ProviderCohere, "TOOL_CALL", FinishReasonToolCalls},
		{ProviderCohereV1, "ERROR_TOXIC", FinishReasonError},
	}

	for _, tt := range tests {
		t.Run(tt.provider.String()+"/"+tt.raw, func(t *testing.T) {
			profile, err := GetProfile(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, profile.MapFinishReason(tt.raw))
		})
	}

	var missing *Profile
	assert.Equal(t, FinishReasonUnknown, missing.MapFinishReason("stop"))
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name:    "valid",
			profile: Profile{Provider: "x", Family: FamilyOpenAI, FinishReasons: map[string]string{"stop": "end_turn"}},
		},
		{
			name:    "missing provider",
			profile: Profile{Family: FamilyOpenAI},
			wantErr: true,
		},
		{
			name:    "unknown family",
			profile: Profile{Provider: "x", Family: "gemini"},
			wantErr: true,
		},
		{
			name:    "unknown canonical reason",
			profile: Profile{Provider: "x", Family: FamilyCohere, FinishReasons: map[string]string{"DONE": "finished"}},
			wantErr: true,
		},
		{
			name:    "explicit unknown is allowed",
			profile: Profile{Provider: "x", Family: FamilyCohere, FinishReasons: map[string]string{"USER_CANCEL": "unknown"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfileRegistry_LoadFromFile(t *testing.T) {
	registry := &ProfileRegistry{profiles: make(map[ProviderID]*Profile)}

	path := filepath.Join(t.TempDir(), "groq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1.0.0"
provider: groq
family: openai
done_sentinel: "[DONE]"
reasoning_paths:
  - choices.0.delta.reasoning
finish_reasons:
  stop: end_turn
  length: length
`), 0o600))

	require.NoError(t, registry.LoadProfilesFromFile(path))

	profile, err := registry.GetProfile("groq")
	require.NoError(t, err)
	assert.Equal(t, FamilyOpenAI, profile.Family)
	assert.Equal(t, []string{"choices.0.delta.reasoning"}, profile.ReasoningPaths)
	assert.Equal(t, FinishReasonLength, profile.MapFinishReason("length"))

	assert.Error(t, registry.LoadProfilesFromFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestProfileRegistry_RejectsInvalidYAML(t *testing.T) {
	registry := &ProfileRegistry{profiles: make(map[ProviderID]*Profile)}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: x\nfamily: bogus\n"), 0o600))

	assert.Error(t, registry.LoadProfilesFromFile(path))
	_, err := registry.GetProfile("x")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestFinishReason_Names(t *testing.T) {
	for _, reason := range []FinishReason{
		FinishReasonUnknown, FinishReasonEndTurn, FinishReasonLength, FinishReasonToolCalls, FinishReasonError,
	} {
		assert.Equal(t, reason, ParseFinishReason(reason.String()))
	}
	assert.Equal(t, FinishReasonUnknown, ParseFinishReason("bogus"))
}
