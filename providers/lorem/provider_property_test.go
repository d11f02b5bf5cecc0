package lorem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers"
)

// providerFor picks a registered provider that streams family's grammar
var providerFor = map[llmstream.Family]llmstream.ProviderID{
	llmstream.FamilyOpenAI:    llmstream.ProviderLorem,
	llmstream.FamilyAnthropic: llmstream.ProviderAnthropic,
	llmstream.FamilyCohere:    llmstream.ProviderCohere,
}

func collectTranscript(t require.TestingT, family llmstream.Family, transcript *Transcript) *llmstream.Completion {
	frames := llmstream.NewFrameReaderFromReader(io.NopCloser(bytes.NewReader(transcript.Bytes())), transcript.ContentType)
	stream, err := providers.NewStream(context.Background(), frames, providerFor[family])
	require.NoError(t, err)

	completion, err := llmstream.Collect(stream)
	require.NoError(t, err)
	return completion
}

// TestProperty_Transcript_ChunkBoundaryIndependence checks that for every
// grammar the decoded answer is the scripted one, wherever the vendor cut
// text and tool-call arguments.
func TestProperty_Transcript_ChunkBoundaryIndependence(t *testing.T) {
	p := NewProvider(7, nil)
	toolNames := []string{"search", "bash", "text_editor", "get_weather"}

	rapid.Check(t, func(rt *rapid.T) {
		family := rapid.SampledFrom([]llmstream.Family{
			llmstream.FamilyOpenAI, llmstream.FamilyAnthropic, llmstream.FamilyCohere,
		}).Draw(rt, "family")
		model := rapid.SampledFrom([]string{"lorem-instant", "lorem-cutoff"}).Draw(rt, "model")

		var tools []string
		for i := range rapid.IntRange(0, 3).Draw(rt, "numTools") {
			tools = append(tools, rapid.SampledFrom(toolNames).Draw(rt, fmt.Sprintf("tool_%d", i)))
		}

		script := p.Script(Request{
			Model:    model,
			Words:    rapid.IntRange(1, 30).Draw(rt, "words"),
			Thinking: rapid.Bool().Draw(rt, "thinking"),
			Tools:    tools,
		})

		maxChunk := rapid.IntRange(1, 12).Draw(rt, "maxChunk")
		split := func(s string) []string {
			return SplitSizes(s, func() int { return rapid.IntRange(1, maxChunk).Draw(rt, "chunk") })
		}

		completion := collectTranscript(rt, family, Render(family, script, split))

		require.NotNil(rt, completion.Message)
		assert.Equal(rt, script.Text, completion.Message.Text())
		assert.Equal(rt, script.Reasoning, completion.Message.Reasoning())
		assert.Equal(rt, script.FinishReason, completion.FinishReason)
		assert.Equal(rt, &script.Usage, completion.Usage)
		if family != llmstream.FamilyCohere {
			// Cohere streams never name the model
			assert.Equal(rt, script.Model, completion.Model)
		}

		require.Len(rt, completion.ToolCalls, len(script.ToolCalls))
		for i, call := range completion.ToolCalls {
			assert.Equal(rt, script.ToolCalls[i].ID, call.ID)
			assert.Equal(rt, script.ToolCalls[i].Name, call.Name)
			assert.Equal(rt, script.ToolCalls[i].Arguments, call.Arguments)
		}
	})
}

// TestProperty_SplitSizes_RoundTrips checks that fragments never split a rune
// and always concatenate back to the input.
func TestProperty_SplitSizes_RoundTrips(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "s")

		frags := SplitSizes(s, func() int { return rapid.IntRange(-1, 5).Draw(rt, "size") })

		var joined string
		for _, frag := range frags {
			require.NotEmpty(rt, frag)
			require.True(rt, len([]rune(frag)) <= 5)
			joined += frag
		}
		assert.Equal(rt, s, joined)
	})
}
