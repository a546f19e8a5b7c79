package domain

// ToolInvocation records one executed tool call: the resolved argument
// mapping (empty when the serialized arguments never parsed), the opaque
// result value, and any metadata tags the executor attached. Invocations
// accumulate in call order across all rounds of a turn and are never
// deduplicated.
type ToolInvocation struct {
	Name      string            `json:"name"`
	Arguments map[string]any    `json:"arguments"`
	Result    any               `json:"result"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TurnResult is the single outward-facing shape of one conversational turn.
// Both the model-driven path and the fallback path produce it; callers
// cannot tell from the shape alone which path ran.
type TurnResult struct {
	Content   string            `json:"content"`
	ToolCalls []ToolInvocation  `json:"tool_calls"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Usage     *Usage            `json:"usage,omitempty"`
}

// MergeMetadata folds kv pairs into the result's metadata, allocating on
// first use. Later writes win on key collision.
func (r *TurnResult) MergeMetadata(kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]string, len(kv))
	}
	for k, v := range kv {
		r.Metadata[k] = v
	}
}
