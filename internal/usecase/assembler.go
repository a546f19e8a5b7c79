package usecase

import (
	"encoding/json"
	"sort"
	"strings"

	"sous-chef/internal/domain"
)

// maxToolCallSlots bounds the number of tool-call accumulators a single
// response may allocate. Fragments with indices beyond the bound are
// dropped to prevent memory exhaustion from malformed streams.
const maxToolCallSlots = 50

// callAccumulator collects the fragments of one tool call. The map key
// (the fragment index) is the only stable identity during streaming: name
// and ID are set once by whichever fragment carries them, argument text is
// append-only in arrival order.
type callAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// deltaAssembler reconstructs complete text and complete tool calls from a
// sequence of partial fragments, one at a time, with no lookahead. Each
// streamed turn owns its own assembler; there is no shared state.
type deltaAssembler struct {
	text  strings.Builder
	calls map[int]*callAccumulator
	usage domain.Usage
	done  bool
}

func newDeltaAssembler() *deltaAssembler {
	return &deltaAssembler{calls: make(map[int]*callAccumulator)}
}

// feed merges one fragment and returns the stream events it produced, in
// order. Free text becomes a token event immediately; tool-call fragments
// only accumulate and surface at finalize.
func (a *deltaAssembler) feed(delta domain.StreamDelta) []domain.StreamEvent {
	var events []domain.StreamEvent

	if delta.Content != "" {
		a.text.WriteString(delta.Content)
		events = append(events, domain.StreamEvent{
			Type:  domain.StreamToken,
			Token: delta.Content,
		})
	}

	for _, tc := range delta.ToolCalls {
		if tc.Index < 0 || tc.Index >= maxToolCallSlots {
			continue
		}
		acc, ok := a.calls[tc.Index]
		if !ok {
			acc = &callAccumulator{}
			a.calls[tc.Index] = acc
		}
		if tc.ID != "" {
			acc.id = tc.ID
		}
		if tc.Name != "" && acc.name == "" {
			acc.name = tc.Name
		}
		acc.args.WriteString(tc.Arguments)
	}

	if delta.Usage != nil {
		a.usage = *delta.Usage
	}
	if delta.Done {
		a.done = true
	}

	return events
}

// finalize returns the accumulated text and one ToolCall per index, in
// ascending index order. Argument text that never parses as JSON is passed
// through as-is; the round controller applies the empty-mapping fallback.
// The bool reports whether the stream carried a done marker: false means
// the backend cut the stream short and the reconstruction may be partial.
func (a *deltaAssembler) finalize() (string, []domain.ToolCall, domain.Usage, bool) {
	if len(a.calls) == 0 {
		return a.text.String(), nil, a.usage, a.done
	}

	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]domain.ToolCall, 0, len(indices))
	for _, idx := range indices {
		acc := a.calls[idx]
		calls = append(calls, domain.ToolCall{
			ID:        acc.id,
			Name:      acc.name,
			Arguments: json.RawMessage(acc.args.String()),
		})
	}

	return a.text.String(), calls, a.usage, a.done
}
