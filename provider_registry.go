package llmstream

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderOpenAI is OpenAI's Chat Completions API
	ProviderOpenAI ProviderID = "openai"

	// ProviderOpenRouter is OpenRouter's OpenAI-compatible API (reasoning in delta.reasoning)
	ProviderOpenRouter ProviderID = "openrouter"

	// ProviderDeepSeek is DeepSeek's OpenAI-compatible API (reasoning in delta.reasoning_content)
	ProviderDeepSeek ProviderID = "deepseek"

	// ProviderAnthropic is Anthropic's Messages API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderCohere is Cohere's v2 Chat API
	ProviderCohere ProviderID = "cohere"

	// ProviderCohereV1 is Cohere's legacy v1 Chat API (event_type discriminator)
	ProviderCohereV1 ProviderID = "cohere-v1"

	// ProviderLorem is the synthetic transcript provider used in tests and examples
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderOpenRouter, ProviderDeepSeek,
		ProviderAnthropic, ProviderCohere, ProviderCohereV1, ProviderLorem:
		return true
	default:
		return false
	}
}

// Family names the event grammar a provider streams in.
// One decoder implementation exists per family.
type Family string

const (
	// FamilyOpenAI is flat delta JSON terminated by "[DONE]"
	FamilyOpenAI Family = "openai"

	// FamilyAnthropic is typed event blocks (event: name + data: JSON)
	FamilyAnthropic Family = "anthropic"

	// FamilyCohere is discriminated flat JSON events
	FamilyCohere Family = "cohere"
)
