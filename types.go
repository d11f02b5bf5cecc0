package llmstream

// Role identifies the author of a Message.
type Role string

// Known message roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// PartKind indicates what a MessagePart carries.
type PartKind string

// Part kind constants
const (
	PartKindText      PartKind = "text"
	PartKindReasoning PartKind = "reasoning" // thinking / tool plan text
)

// MessagePart is one typed fragment of a message, kept in arrival order.
// Vendors that interleave visible text and reasoning in a single event
// (Cohere) report both fragments here so consumers can render them in order.
type MessagePart struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text"`
}

// ToolCall is a model-requested invocation of a caller-supplied function.
//
// While streaming, Arguments holds the argument text received so far. Once the
// call is finalized it is the exact in-order concatenation of every fragment
// the vendor sent for it. Arguments is NOT parsed or validated: vendors are
// allowed to emit partial JSON when a stream is cut short, and consumers decide
// what to do with it.
type ToolCall struct {
	// ID is the vendor-assigned call identifier (e.g., "call_abc", "toolu_01...")
	// Empty when the vendor has not sent one yet.
	ID string `json:"id,omitempty"`

	// Index is the vendor-assigned position of the call within the message.
	// OpenAI and Cohere send it on every delta; Anthropic uses the content block index.
	Index *int `json:"index,omitempty"`

	// Name is the function name
	Name string `json:"name,omitempty"`

	// Arguments is the raw JSON argument text
	Arguments string `json:"arguments"`
}

// Key returns the accumulator identity of the call: Index when present, else ID.
func (tc ToolCall) Key() ToolCallKey {
	if tc.Index != nil {
		return IndexKey(*tc.Index)
	}
	return IDKey(tc.ID)
}

// Message is a vendor-agnostic chat message (or message delta while streaming).
//
// Optional text fields are pointers so that "absent" and "empty" can be told
// apart: an incremental delta that only carries reasoning has a nil Content.
type Message struct {
	// Role is the author of the message
	Role Role `json:"role"`

	// Content is the visible answer text
	Content *string `json:"content,omitempty"`

	// ReasoningContent is the model's thinking/reasoning text
	ReasoningContent *string `json:"reasoning_content,omitempty"`

	// ToolCalls lists finalized tool invocations (only on tool-call messages)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Parts lists typed fragments in arrival order (Cohere-style vendors only)
	Parts []MessagePart `json:"parts,omitempty"`
}

// Text returns the content or an empty string
func (m *Message) Text() string {
	if m == nil || m.Content == nil {
		return ""
	}
	return *m.Content
}

// Reasoning returns the reasoning content or an empty string
func (m *Message) Reasoning() string {
	if m == nil || m.ReasoningContent == nil {
		return ""
	}
	return *m.ReasoningContent
}

// HasToolCalls returns true if the message carries at least one tool call
func (m *Message) HasToolCalls() bool {
	return m != nil && len(m.ToolCalls) > 0
}

// IsEmpty returns true if the message carries no text, reasoning, tool calls or parts
func (m *Message) IsEmpty() bool {
	if m == nil {
		return true
	}
	return m.Text() == "" && m.Reasoning() == "" && len(m.ToolCalls) == 0 && len(m.Parts) == 0
}

// stringPtrOrNil returns nil for the empty string so that absent fields stay absent.
func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
