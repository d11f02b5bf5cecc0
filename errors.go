package llmstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrMalformedFrame indicates a frame payload could not be parsed. Recoverable.
	ErrMalformedFrame = errors.New("llmstream: malformed frame")

	// ErrUnknownEvent indicates an unrecognized discriminator or event type. Recoverable.
	ErrUnknownEvent = errors.New("llmstream: unknown event")

	// ErrVendorEvent indicates the vendor reported an error inside the stream
	// (Anthropic "error" event, OpenAI error payload). Recoverable.
	ErrVendorEvent = errors.New("llmstream: vendor error event")

	// ErrIllegalTransition indicates an event arrived in a state that cannot accept it
	// (e.g., a block delta before its block start). Recoverable.
	ErrIllegalTransition = errors.New("llmstream: illegal state transition")

	// ErrStreamTruncated indicates the byte stream failed before the terminal event.
	// Buffered output has already been flushed when this is reported.
	ErrStreamTruncated = errors.New("llmstream: stream truncated")

	// ErrUnsupportedProvider indicates no decoder exists for the requested provider.
	ErrUnsupportedProvider = errors.New("llmstream: unsupported provider")

	// ErrInvalidAPIKey indicates the API key is missing, malformed, or unauthorized.
	ErrInvalidAPIKey = errors.New("llmstream: invalid API key")

	// ErrRateLimited indicates the provider's rate limit has been exceeded.
	ErrRateLimited = errors.New("llmstream: rate limit exceeded")

	// ErrInvalidRequest indicates the provider rejected the request parameters.
	ErrInvalidRequest = errors.New("llmstream: invalid request")

	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("llmstream: provider unavailable")
)

// FrameError describes a frame that was skipped.
type FrameError struct {
	Provider ProviderID // The provider whose grammar was being decoded
	Event    string     // Event name or discriminator (may be empty)
	Err      error      // Wrapped cause (ErrMalformedFrame, ErrUnknownEvent, ErrVendorEvent, or a parse error)
}

func (e *FrameError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("%s frame %q skipped: %v", e.Provider, e.Event, e.Err)
	}
	return fmt.Sprintf("%s frame skipped: %v", e.Provider, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// NewFrameError wraps cause for a skipped frame
func NewFrameError(provider ProviderID, event string, cause error) *FrameError {
	return &FrameError{Provider: provider, Event: event, Err: cause}
}

// MalformedFrame wraps a parse error so that errors.Is(err, ErrMalformedFrame) holds.
func MalformedFrame(provider ProviderID, event string, parseErr error) *FrameError {
	return NewFrameError(provider, event, fmt.Errorf("%w: %v", ErrMalformedFrame, parseErr))
}

// TransitionError reports an action that is not legal in the current state.
type TransitionError struct {
	From   string // State name the decoder was in
	Action string // Action that was requested
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s in state %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// ProviderError represents a transport-level failure from the provider API.
// It is returned before any frame is decoded.
type ProviderError struct {
	Provider   string // The provider name
	StatusCode int    // HTTP status code (if applicable)
	Message    string // Error message from provider
	Retryable  bool   // Whether this error is potentially retryable
	Err        error  // Wrapped sentinel error (ErrRateLimited, ErrProviderUnavailable, etc.)
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider '%s' error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider '%s' error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is potentially retryable.
// Returns true for rate limits, temporary unavailability and truncated streams.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}

	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrStreamTruncated)
}

// IsRecoverable checks if an error only caused a frame to be skipped.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrMalformedFrame) ||
		errors.Is(err, ErrUnknownEvent) ||
		errors.Is(err, ErrVendorEvent) ||
		errors.Is(err, ErrIllegalTransition)
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		// HTTP 401/403 indicate auth issues
		return providerErr.StatusCode == 401 || providerErr.StatusCode == 403
	}

	return false
}
