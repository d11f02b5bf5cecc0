// Package providers selects the vendor decoder for a provider and opens
// canonical streams over HTTP responses.
//
// Usage:
//
//	resp, err := httpClient.Do(req) // streaming request built by the caller
//	stream, err := providers.Open(ctx, resp, llmstream.ProviderAnthropic)
//	if err != nil {
//		// *llmstream.ProviderError for non-2xx responses
//	}
//	defer stream.Close()
//	for stream.Next() { ... }
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers/anthropic"
	"github.com/haowjy/meridian-stream-go/providers/cohere"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

// maxErrorBody caps how much of a failed response body is read for the message
const maxErrorBody = 64 << 10

// NewDecoder returns a fresh decoder for provider. The provider's profile
// (or the one given with llmstream.WithProfile) picks the grammar family.
func NewDecoder(provider llmstream.ProviderID, opts ...llmstream.Option) (llmstream.Decoder, error) {
	o := llmstream.ApplyOptions(opts...)
	profile, err := o.ResolveProfile(provider)
	if err != nil {
		return nil, err
	}
	return newDecoder(profile, o.Logger)
}

func newDecoder(profile *llmstream.Profile, logger *zap.Logger) (llmstream.Decoder, error) {
	switch profile.Family {
	case llmstream.FamilyOpenAI:
		return openai.New(profile, logger), nil
	case llmstream.FamilyAnthropic:
		return anthropic.New(profile, logger), nil
	case llmstream.FamilyCohere:
		return cohere.New(profile, logger), nil
	default:
		return nil, fmt.Errorf("provider %q has family %q: %w", profile.Provider, profile.Family, llmstream.ErrUnsupportedProvider)
	}
}

// NewStream decodes frames as provider's grammar.
func NewStream(ctx context.Context, frames llmstream.FrameReader, provider llmstream.ProviderID, opts ...llmstream.Option) (*llmstream.Stream, error) {
	decoder, err := NewDecoder(provider, opts...)
	if err != nil {
		return nil, err
	}
	return llmstream.NewStream(ctx, frames, decoder, opts...), nil
}

// Open turns a streaming HTTP response into a canonical stream.
//
// A non-2xx response is a transport failure: the error hook (if any) is
// invoked with the unread response, the body is drained and closed, and a
// *llmstream.ProviderError is returned. No decoder is constructed.
func Open(ctx context.Context, resp *http.Response, provider llmstream.ProviderID, opts ...llmstream.Option) (*llmstream.Stream, error) {
	if resp == nil {
		return nil, &llmstream.ProviderError{
			Provider: provider.String(),
			Message:  "no response",
			Err:      llmstream.ErrProviderUnavailable,
		}
	}

	o := llmstream.ApplyOptions(opts...)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if o.ErrorHook != nil {
			o.ErrorHook(resp)
		}
		err := errorFromResponse(provider, resp)
		o.Logger.Warn("provider returned an error response",
			zap.String("provider", provider.String()),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return nil, err
	}

	return NewStream(ctx, llmstream.NewFrameReader(resp), provider, opts...)
}

// errorFromResponse maps a failed response to a ProviderError and closes its body.
func errorFromResponse(provider llmstream.ProviderID, resp *http.Response) *llmstream.ProviderError {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
	}

	perr := &llmstream.ProviderError{
		Provider:   provider.String(),
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body, resp.Status),
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		perr.Err = llmstream.ErrInvalidAPIKey
	case resp.StatusCode == http.StatusTooManyRequests:
		perr.Err = llmstream.ErrRateLimited
		perr.Retryable = true
	case resp.StatusCode == http.StatusRequestTimeout:
		perr.Err = llmstream.ErrProviderUnavailable
		perr.Retryable = true
	case resp.StatusCode >= 500:
		// Includes Anthropic's 529 overloaded
		perr.Err = llmstream.ErrProviderUnavailable
		perr.Retryable = true
	case resp.StatusCode == http.StatusPaymentRequired:
		perr.Message = "insufficient credits: " + perr.Message
		perr.Err = llmstream.ErrProviderUnavailable
	case resp.StatusCode >= 400:
		perr.Err = llmstream.ErrInvalidRequest
	default:
		perr.Err = llmstream.ErrProviderUnavailable
	}
	return perr
}

// errorMessage extracts the vendor's message from an error body.
// OpenAI and Anthropic nest it under "error", Cohere puts it at the top level.
func errorMessage(body []byte, status string) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if msg := gjson.GetBytes(body, path); msg.Type == gjson.String && msg.Str != "" {
				return msg.Str
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}
