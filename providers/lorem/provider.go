// Package lorem generates synthetic vendor stream transcripts from lorem
// ipsum text. Transcripts are byte-accurate OpenAI, Anthropic and Cohere
// SSE streams whose text and tool-call arguments are cut at arbitrary chunk
// boundaries, so decoders can be exercised without API keys.
package lorem

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	loremgen "github.com/bozaro/golorem"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Provider is a mock LLM vendor that scripts lorem ipsum answers and renders
// them in any supported wire grammar.
type Provider struct {
	generator *loremgen.Lorem
	rng       *rand.Rand
	logger    *zap.Logger
}

// NewProvider creates a lorem provider. seed fixes the chunk boundaries
// chosen by RandomSplitter.
func NewProvider(seed uint64, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		generator: loremgen.New(),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:    logger,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() llmstream.ProviderID {
	return llmstream.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-cutoff"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// Request describes the answer to script.
type Request struct {
	Model    string
	Words    int      // approximate visible answer length
	Thinking bool     // also script reasoning text
	Tools    []string // tool names to call, in order
}

// Script is the ground truth a transcript encodes. A correct decoder
// reproduces Text, Reasoning and every ToolCall's Arguments exactly.
type Script struct {
	Model        string
	Text         string
	Reasoning    string
	ToolCalls    []llmstream.ToolCall
	FinishReason llmstream.FinishReason
	Usage        llmstream.Usage
}

// Script generates a scripted answer for req.
func (p *Provider) Script(req Request) Script {
	words := req.Words
	if words <= 0 {
		words = 20
	}

	script := Script{
		Model:        req.Model,
		FinishReason: llmstream.FinishReasonEndTurn,
	}

	script.Text = p.generateTextWords(words)
	if isCutoffModel(req.Model) {
		script.Text = truncateWords(script.Text, words)
		script.FinishReason = llmstream.FinishReasonLength
	}
	if req.Thinking {
		script.Reasoning = p.generateTextWords(max(words/2, 5))
	}

	for i, name := range req.Tools {
		index := i
		script.ToolCalls = append(script.ToolCalls, llmstream.ToolCall{
			ID:        fmt.Sprintf("call_%s_%d", name, i),
			Index:     &index,
			Name:      name,
			Arguments: p.toolArguments(name),
		})
	}
	if len(script.ToolCalls) > 0 && script.FinishReason == llmstream.FinishReasonEndTurn {
		script.FinishReason = llmstream.FinishReasonToolCalls
	}

	output := len(strings.Fields(script.Text)) + len(strings.Fields(script.Reasoning))
	script.Usage = llmstream.Usage{
		PromptTokens:     12,
		CompletionTokens: output,
		TotalTokens:      12 + output,
	}

	p.logger.Debug("scripted lorem answer",
		zap.String("model", req.Model),
		zap.Int("words", output),
		zap.Int("tool_calls", len(script.ToolCalls)))
	return script
}

// toolArguments builds a JSON argument object for a mock tool.
func (p *Provider) toolArguments(name string) string {
	var args string
	switch name {
	case "search":
		args, _ = sjson.Set(args, "query", p.generator.Sentence(3, 6))
		args, _ = sjson.Set(args, "max_results", 10)
	case "bash":
		args, _ = sjson.Set(args, "command", "echo '"+p.generator.Sentence(2, 4)+"'")
	case "text_editor":
		args, _ = sjson.Set(args, "command", "str_replace")
		args, _ = sjson.Set(args, "file_path", "/path/to/file.txt")
		args, _ = sjson.Set(args, "old_str", p.generator.Sentence(2, 4))
		args, _ = sjson.Set(args, "new_str", p.generator.Sentence(2, 4))
	default:
		args, _ = sjson.Set(args, "data", "mock input for "+name)
		args, _ = sjson.Set(args, "notes.0", p.generator.Sentence(3, 8))
	}
	return args
}

// generateTextWords generates lorem ipsum text with approximately targetWords words.
func (p *Provider) generateTextWords(targetWords int) string {
	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		sentence := p.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		wordCount += len(strings.Fields(sentence))
	}

	return strings.TrimSpace(sb.String())
}

// isCutoffModel returns true if the model should simulate a max_tokens cutoff.
func isCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

// Splitter cuts a string into the fragments a vendor would stream.
// Concatenating the fragments must give back the input.
type Splitter func(s string) []string

// Whole streams every string as a single fragment.
func Whole(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// RandomSplitter cuts strings into fragments of 1 to maxChunk runes, never
// splitting a rune.
func (p *Provider) RandomSplitter(maxChunk int) Splitter {
	if maxChunk < 1 {
		maxChunk = 1
	}
	return func(s string) []string {
		return SplitSizes(s, func() int { return 1 + p.rng.IntN(maxChunk) })
	}
}

// SplitSizes cuts s into fragments whose rune counts come from next.
// Non-positive sizes are treated as 1.
func SplitSizes(s string, next func() int) []string {
	var out []string
	for s != "" {
		n := max(next(), 1)
		end := 0
		for i := 0; i < n && end < len(s); i++ {
			_, size := utf8.DecodeRuneInString(s[end:])
			end += size
		}
		out = append(out, s[:end])
		s = s[end:]
	}
	return out
}
