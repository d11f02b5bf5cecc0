package llmstream

import (
	"net/http"

	"go.uber.org/zap"
)

// CancelPolicy decides what a cancelled stream does with buffered output.
type CancelPolicy int

const (
	// CancelDrop stops immediately; buffered text and tool calls are discarded.
	CancelDrop CancelPolicy = iota

	// CancelFlush yields one best-effort coalesced message built from whatever
	// was buffered (tool-call arguments may be incomplete JSON). No FinishData
	// is produced either way.
	CancelFlush
)

// Options holds per-stream settings. Build it with ApplyOptions.
type Options struct {
	// Logger receives skipped-frame and truncation diagnostics
	Logger *zap.Logger

	// CancelPolicy applies when the stream's context is cancelled mid-flight
	CancelPolicy CancelPolicy

	// ErrorHook is invoked with a failed (non-2xx) HTTP response before any
	// frame is decoded. The body is still unread when the hook runs.
	ErrorHook func(resp *http.Response)

	// Profile overrides the registry profile for the provider
	Profile *Profile
}

// Option configures a stream or decoder.
type Option func(*Options)

// WithLogger sets the logger (default: zap.NewNop())
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithCancelPolicy sets the cancellation policy (default: CancelDrop)
func WithCancelPolicy(policy CancelPolicy) Option {
	return func(o *Options) {
		o.CancelPolicy = policy
	}
}

// WithErrorHook sets the callback for failed HTTP responses
func WithErrorHook(hook func(resp *http.Response)) Option {
	return func(o *Options) {
		o.ErrorHook = hook
	}
}

// WithProfile decodes with profile instead of the registered one
func WithProfile(profile *Profile) Option {
	return func(o *Options) {
		o.Profile = profile
	}
}

// ApplyOptions resolves opts over the defaults
func ApplyOptions(opts ...Option) Options {
	o := Options{
		Logger:       zap.NewNop(),
		CancelPolicy: CancelDrop,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ResolveProfile returns the override profile, or the registered one for provider
func (o Options) ResolveProfile(provider ProviderID) (*Profile, error) {
	if o.Profile != nil {
		return o.Profile, nil
	}
	return GetProfile(provider)
}
