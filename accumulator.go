package llmstream

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// ToolCallKey identifies an in-progress tool call. Vendors key tool-call deltas
// either by position (OpenAI/Cohere index, Anthropic block index) or by call ID.
type ToolCallKey struct {
	index    int
	hasIndex bool
	id       string
}

// IndexKey returns a key for a positional tool call
func IndexKey(index int) ToolCallKey {
	return ToolCallKey{index: index, hasIndex: true}
}

// IDKey returns a key for a tool call identified only by its ID
func IDKey(id string) ToolCallKey {
	return ToolCallKey{id: id}
}

// String returns a readable form for logs ("#0", "id:call_abc")
func (k ToolCallKey) String() string {
	if k.hasIndex {
		return fmt.Sprintf("#%d", k.index)
	}
	return "id:" + k.id
}

// toolCallEntry is one open accumulator slot
type toolCallEntry struct {
	call ToolCall
	args strings.Builder
	seq  int
}

// finalizedCall remembers the open order of a closed call
type finalizedCall struct {
	call ToolCall
	seq  int
}

// ToolCallAccumulator reassembles tool-call arguments fragmented across frames.
//
// It is owned by exactly one decoder and is not safe for concurrent use.
// Fragments for a key are concatenated in arrival order with no parsing,
// trimming or reordering, so Close returns exactly what the vendor sent.
type ToolCallAccumulator struct {
	open      map[ToolCallKey]*toolCallEntry
	finalized []finalizedCall
	nextSeq   int
}

// NewToolCallAccumulator creates an empty accumulator
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{
		open: make(map[ToolCallKey]*toolCallEntry),
	}
}

// Open starts a new entry for key seeded with the call's ID, index and name.
// Any Arguments on the seed are the first fragment.
//
// Opening a key that is already open merges the seed into the existing entry
// (missing ID/name are filled, seed arguments are appended) instead of
// discarding buffered arguments.
func (a *ToolCallAccumulator) Open(key ToolCallKey, seed ToolCall) {
	if entry, ok := a.open[key]; ok {
		mergeSeed(&entry.call, seed)
		entry.args.WriteString(seed.Arguments)
		return
	}

	entry := &toolCallEntry{call: seed, seq: a.nextSeq}
	entry.call.Arguments = ""
	entry.args.WriteString(seed.Arguments)
	a.nextSeq++
	a.open[key] = entry
}

// Append adds an argument fragment to an open entry.
// Returns false (and does nothing) if key was never opened: vendors sometimes
// send a delta before or without a start, which is ignored rather than fatal.
func (a *ToolCallAccumulator) Append(key ToolCallKey, fragment string) bool {
	entry, ok := a.open[key]
	if !ok {
		return false
	}
	entry.args.WriteString(fragment)
	return true
}

// Upsert opens key with seed if needed, otherwise merges seed metadata and
// appends fragment. Used by vendors whose start and delta frames share a shape.
func (a *ToolCallAccumulator) Upsert(key ToolCallKey, seed ToolCall, fragment string) {
	if entry, ok := a.open[key]; ok {
		mergeSeed(&entry.call, seed)
		entry.args.WriteString(fragment)
		return
	}
	seed.Arguments = fragment
	a.Open(key, seed)
}

// Close finalizes the entry for key and returns the completed call.
func (a *ToolCallAccumulator) Close(key ToolCallKey) (ToolCall, bool) {
	entry, ok := a.open[key]
	if !ok {
		return ToolCall{}, false
	}
	delete(a.open, key)

	call := entry.call
	call.Arguments = entry.args.String()
	a.finalized = append(a.finalized, finalizedCall{call: call, seq: entry.seq})
	return call, true
}

// CloseAll force-finalizes every open entry and returns all finalized calls
// (including those closed earlier) in the order they were opened.
// Nothing the accumulator ever saw is dropped.
func (a *ToolCallAccumulator) CloseAll() []ToolCall {
	keys := lo.Keys(a.open)
	slices.SortFunc(keys, func(x, y ToolCallKey) int {
		return cmp.Compare(a.open[x].seq, a.open[y].seq)
	})
	for _, key := range keys {
		a.Close(key)
	}

	slices.SortStableFunc(a.finalized, func(x, y finalizedCall) int {
		return cmp.Compare(x.seq, y.seq)
	})
	return lo.Map(a.finalized, func(f finalizedCall, _ int) ToolCall {
		return f.call
	})
}

// Has reports whether key is currently open
func (a *ToolCallAccumulator) Has(key ToolCallKey) bool {
	_, ok := a.open[key]
	return ok
}

// Pending returns the number of open entries
func (a *ToolCallAccumulator) Pending() int {
	return len(a.open)
}

// Len returns the number of calls seen so far (open and finalized)
func (a *ToolCallAccumulator) Len() int {
	return len(a.open) + len(a.finalized)
}

// mergeSeed fills identity fields that were missing from an earlier frame.
func mergeSeed(dst *ToolCall, seed ToolCall) {
	if dst.ID == "" {
		dst.ID = seed.ID
	}
	if dst.Name == "" {
		dst.Name = seed.Name
	}
	if dst.Index == nil && seed.Index != nil {
		idx := *seed.Index
		dst.Index = &idx
	}
}
