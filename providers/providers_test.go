package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers/anthropic"
	"github.com/haowjy/meridian-stream-go/providers/cohere"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

func TestNewDecoder(t *testing.T) {
	tests := []struct {
		provider llmstream.ProviderID
		check    func(t *testing.T, d llmstream.Decoder)
	}{
		{llmstream.ProviderOpenAI, func(t *testing.T, d llmstream.Decoder) { assert.IsType(t, &openai.Decoder{}, d) }},
		{llmstream.ProviderOpenRouter, func(t *testing.T, d llmstream.Decoder) { assert.IsType(t, &openai.Decoder{}, d) }},
		{llmstream.ProviderDeepSeek, func(t *testing.T, d llmstream.Decoder) { assert.IsType(t, &openai.Decoder{}, d) }},
		{llmstream.ProviderLorem, func(t *testing.T, d llmstream.Decoder) { assert.IsType(t, &openai.Decoder{}, d) }},
		{llmstream.ProviderAnthropic, func(t *testing.T, d llmstream.Decoder) { assert.IsType(t, &anthropic.Decoder{}, d) }},
		{llmstream.ProviderCohere, func(t *testing.T, d llmstream.Decoder) { assert.IsType(t, &cohere.Decoder{}, d) }},
		{llmstream.ProviderCohereV1, func(t *testing.T, d llmstream.Decoder) { assert.IsType(t, &cohere.Decoder{}, d) }},
	}

	for _, tt := range tests {
		t.Run(tt.provider.String(), func(t *testing.T) {
			d, err := NewDecoder(tt.provider)
			require.NoError(t, err)
			tt.check(t, d)
			assert.Equal(t, tt.provider, d.Provider())
			assert.False(t, d.Done())
		})
	}
}

func TestNewDecoder_Unsupported(t *testing.T) {
	_, err := NewDecoder("gemini")
	assert.ErrorIs(t, err, llmstream.ErrUnsupportedProvider)

	_, err = NewDecoder("custom", llmstream.WithProfile(&llmstream.Profile{Provider: "custom", Family: "bespoke"}))
	assert.ErrorIs(t, err, llmstream.ErrUnsupportedProvider)
}

func TestNewDecoder_ProfileOverride(t *testing.T) {
	d, err := NewDecoder("my-proxy", llmstream.WithProfile(&llmstream.Profile{
		Provider:      "my-proxy",
		Family:        llmstream.FamilyOpenAI,
		FinishReasons: map[string]string{"eos": "end_turn"},
	}))
	require.NoError(t, err)

	stream := llmstream.NewStream(context.Background(), llmstream.FramesOf(
		llmstream.Frame{Data: []byte(`{"choices":[{"delta":{"content":"x"},"finish_reason":"eos"}]}`)},
		llmstream.Frame{Data: []byte(`[DONE]`)},
	), d)

	completion, err := llmstream.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, llmstream.ProviderID("my-proxy"), completion.Provider)
	assert.Equal(t, llmstream.FinishReasonEndTurn, completion.FinishReason)
}

func TestOpen_Streams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("event: message_start\n" +
			`data: {"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":3,"output_tokens":1}}}` + "\n\n" +
			"event: content_block_start\n" +
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n" +
			"event: content_block_delta\n" +
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}` + "\n\n" +
			"event: content_block_stop\n" +
			`data: {"type":"content_block_stop","index":0}` + "\n\n" +
			"event: message_stop\n" +
			`data: {"type":"message_stop"}` + "\n\n"))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)

	hookCalled := false
	stream, err := Open(context.Background(), resp, llmstream.ProviderAnthropic,
		llmstream.WithErrorHook(func(*http.Response) { hookCalled = true }))
	require.NoError(t, err)

	completion, err := llmstream.Collect(stream)
	require.NoError(t, err)
	assert.False(t, hookCalled)
	assert.Equal(t, "Hi", completion.Text())
	assert.Equal(t, "claude-test", completion.Model)
	assert.Equal(t, 4, completion.Usage.TotalTokens)
}

func TestOpen_ErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		retryable bool
		message   string
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			sentinel: llmstream.ErrInvalidAPIKey,
			message:  "invalid x-api-key",
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			sentinel:  llmstream.ErrRateLimited,
			retryable: true,
			message:   "Rate limit reached",
		},
		{
			name:      "overloaded",
			status:    529,
			body:      `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			sentinel:  llmstream.ErrProviderUnavailable,
			retryable: true,
			message:   "Overloaded",
		},
		{
			name:     "cohere top-level message",
			status:   http.StatusBadRequest,
			body:     `{"message":"invalid request: model is required"}`,
			sentinel: llmstream.ErrInvalidRequest,
			message:  "invalid request: model is required",
		},
		{
			name:     "payment required",
			status:   http.StatusPaymentRequired,
			body:     `{"error":"out of credits"}`,
			sentinel: llmstream.ErrProviderUnavailable,
			message:  "insufficient credits: out of credits",
		},
		{
			name:      "plain text body",
			status:    http.StatusBadGateway,
			body:      "upstream connect error",
			sentinel:  llmstream.ErrProviderUnavailable,
			retryable: true,
			message:   "upstream connect error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			resp, err := http.Get(server.URL)
			require.NoError(t, err)

			var hooked *http.Response
			stream, err := Open(context.Background(), resp, llmstream.ProviderOpenAI,
				llmstream.WithErrorHook(func(r *http.Response) { hooked = r }))
			require.Error(t, err)
			assert.Nil(t, stream)
			assert.Same(t, resp, hooked, "hook sees the failed response")

			var perr *llmstream.ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.message, perr.Message)
			assert.Equal(t, tt.retryable, llmstream.IsRetryable(err))
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestOpen_NilResponse(t *testing.T) {
	_, err := Open(context.Background(), nil, llmstream.ProviderOpenAI)
	assert.ErrorIs(t, err, llmstream.ErrProviderUnavailable)
}
