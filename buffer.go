package llmstream

import "strings"

// TextBuffer holds the visible answer text and the reasoning text of one
// assistant message while it streams.
type TextBuffer struct {
	content   strings.Builder
	reasoning strings.Builder
}

// AppendContent appends visible answer text
func (b *TextBuffer) AppendContent(s string) {
	b.content.WriteString(s)
}

// AppendReasoning appends thinking/reasoning text
func (b *TextBuffer) AppendReasoning(s string) {
	b.reasoning.WriteString(s)
}

// Empty returns true if neither buffer holds text
func (b *TextBuffer) Empty() bool {
	return b.content.Len() == 0 && b.reasoning.Len() == 0
}

// Flush returns both buffers and clears them.
func (b *TextBuffer) Flush() (content, reasoning string) {
	content = b.content.String()
	reasoning = b.reasoning.String()
	b.content.Reset()
	b.reasoning.Reset()
	return content, reasoning
}
