// Package tokens implements token counting for context budgeting.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"

	"sous-chef/internal/domain"
)

// perMessageOverhead approximates the wrapper tokens each chat message
// costs on OpenAI-style backends.
const perMessageOverhead = 4

// Counter estimates token counts using tiktoken. When the encoding for the
// configured model cannot be resolved (unknown model, missing BPE data),
// it degrades to a bytes/4 heuristic rather than failing the turn.
type Counter struct {
	enc *tiktoken.Tiktoken // nil = heuristic mode
}

// NewCounter creates a counter for the given model name.
func NewCounter(model string) *Counter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return &Counter{}
		}
	}
	return &Counter{enc: enc}
}

// Count implements domain.TokenCounter.
func (c *Counter) Count(text string) int {
	if c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages implements domain.TokenCounter.
func (c *Counter) CountMessages(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead + c.Count(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.Count(tc.Name) + c.Count(string(tc.Arguments))
		}
	}
	return total
}

var _ domain.TokenCounter = (*Counter)(nil)
