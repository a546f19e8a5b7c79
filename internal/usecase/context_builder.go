package usecase

import (
	"strings"
	"time"

	"sous-chef/internal/domain"
)

// ContextBuilder assembles the conversation state for model calls: the
// system prompt (with preference and inventory sections), followed by the
// truncated thread history. Truncation happens once, at load time; the
// round controller only ever appends afterwards.
type ContextBuilder struct {
	systemPrompt string
	model        string
	maxMessages  int
	tokenBudget  int
	counter      domain.TokenCounter // optional, nil = message-count only
}

// NewContextBuilder creates a context builder. tokenBudget of 0 disables
// token-based trimming; counter may be nil.
func NewContextBuilder(systemPrompt, model string, maxMessages, tokenBudget int, counter domain.TokenCounter) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		model:        model,
		maxMessages:  maxMessages,
		tokenBudget:  tokenBudget,
		counter:      counter,
	}
}

// Seed builds the initial conversation state for a turn: system prompt plus
// truncated history. The caller appends the new user message.
func (cb *ContextBuilder) Seed(preferences, inventory string, history []domain.Message) []domain.Message {
	var sb strings.Builder
	sb.WriteString(cb.systemPrompt)
	if preferences != "" {
		sb.WriteString("\n\n## User preferences\n")
		sb.WriteString(preferences)
	}
	if inventory != "" {
		sb.WriteString("\n\n## Kitchen inventory\n")
		sb.WriteString(inventory)
	}

	hist := cb.truncateHistory(history)

	messages := make([]domain.Message, 0, 1+len(hist))
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   sb.String(),
		Timestamp: time.Now(),
	})
	return append(messages, hist...)
}

// Request wraps the current state and tool schemas into a ChatRequest.
func (cb *ContextBuilder) Request(state []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	return domain.ChatRequest{
		Model:    cb.model,
		Messages: state,
		Tools:    tools,
	}
}

// truncateHistory drops the oldest messages until both the message-count
// cap and the token budget hold. Messages are dropped in atomic groups so
// an assistant tool-call message and its tool results are never split.
func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	groups := groupMessages(history)

	overBudget := func(kept [][]domain.Message, total int) bool {
		if cb.maxMessages > 0 && total > cb.maxMessages {
			return true
		}
		if cb.tokenBudget > 0 && cb.counter != nil {
			tokens := 0
			for _, g := range kept {
				tokens += cb.counter.CountMessages(g)
			}
			return tokens > cb.tokenBudget
		}
		return false
	}

	// Keep groups from the end until a budget is exceeded.
	var kept [][]domain.Message
	total := 0
	for i := len(groups) - 1; i >= 0; i-- {
		candidate := append([][]domain.Message{groups[i]}, kept...)
		if overBudget(candidate, total+len(groups[i])) && total > 0 {
			break
		}
		kept = candidate
		total += len(groups[i])
	}

	result := make([]domain.Message, 0, total)
	for _, g := range kept {
		result = append(result, g...)
	}
	return result
}

// groupMessages partitions messages into atomic groups. An assistant
// message with tool calls and its immediately following tool result
// messages form a single group; everything else is an individual group.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && len(msg.ToolCalls) > 0 {
			group := []domain.Message{msg}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == domain.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
		} else {
			groups = append(groups, []domain.Message{msg})
			i++
		}
	}
	return groups
}
