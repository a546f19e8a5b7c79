package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"sous-chef/internal/domain"
)

// FallbackNotice is appended to every matcher-produced answer so degraded
// operation is observable, never a silent substitution.
const FallbackNotice = "\n\nNote: I'm running without my reasoning engine " +
	"right now, so I can only do basic lookups."

// fallbackIntro is rendered when no intent matcher triggers.
const fallbackIntro = "Hi! I'm sous-chef, currently in offline mode. I can " +
	"still check your kitchen inventory (\"what's in my fridge\"), find " +
	"recipes (\"recipes with chicken\"), or list items that are about to " +
	"expire."

// intentRule pairs a set of trigger phrases with a handler. Rules are tried
// in priority order over the lowercased message; the first rule with any
// trigger present wins and short-circuits the cascade.
type intentRule struct {
	name     string
	triggers []string
	handle   func(ctx context.Context, f *Fallback, msg string) (string, []domain.ToolInvocation)
}

// Fallback is the deterministic responder used when no model backend is
// reachable. It invokes tools directly through the registry, bypassing the
// round controller entirely.
type Fallback struct {
	tools  domain.ToolExecutor
	logger *slog.Logger
	rules  []intentRule
}

// NewFallback creates the responder with the standard rule cascade.
func NewFallback(tools domain.ToolExecutor, logger *slog.Logger) *Fallback {
	f := &Fallback{tools: tools, logger: logger}
	f.rules = []intentRule{
		{
			// Must precede the inventory rule: "what's expiring in my
			// fridge" should hit this one.
			name:     "expiring",
			triggers: []string{"expir", "going bad", "spoil", "use up"},
			handle:   handleExpiring,
		},
		{
			name:     "inventory",
			triggers: []string{"fridge", "pantry", "inventory", "what do i have", "on hand"},
			handle:   handleInventory,
		},
		{
			name:     "recipes",
			triggers: []string{"recipe", "cook", "dinner idea", "what can i make"},
			handle:   handleRecipes,
		},
		{
			name:     "mealplan",
			triggers: []string{"meal plan", "plan my week", "plan meals", "weekly plan"},
			handle:   handleMealPlan,
		},
		{
			name:     "shopping",
			triggers: []string{"shopping list", "groceries", "grocery list"},
			handle:   handleShopping,
		},
	}
	return f
}

// Respond produces a TurnResult for the message without any model backend.
// The result has the same shape as a model-driven one.
func (f *Fallback) Respond(ctx context.Context, userID, message string) *domain.TurnResult {
	lowered := strings.ToLower(message)
	ctx = domain.ContextWithUser(ctx, userID)

	for _, rule := range f.rules {
		if !triggered(lowered, rule.triggers) {
			continue
		}
		f.logger.Debug("fallback intent matched", "intent", rule.name)
		content, invocations := rule.handle(ctx, f, message)
		if invocations == nil {
			invocations = []domain.ToolInvocation{}
		}
		result := &domain.TurnResult{
			Content:   content + FallbackNotice,
			ToolCalls: invocations,
			Metadata:  map[string]string{"mode": "fallback", "intent": rule.name},
		}
		for _, inv := range invocations {
			result.MergeMetadata(inv.Metadata)
		}
		return result
	}

	return &domain.TurnResult{
		Content:   fallbackIntro,
		ToolCalls: []domain.ToolInvocation{},
		Metadata:  map[string]string{"mode": "fallback"},
	}
}

func triggered(lowered string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(lowered, t) {
			return true
		}
	}
	return false
}

// invoke executes a tool through the registry and records the invocation.
func (f *Fallback) invoke(ctx context.Context, name string, args map[string]any) (*domain.ToolResult, domain.ToolInvocation) {
	params, err := json.Marshal(args)
	if err != nil {
		params = json.RawMessage("{}")
	}
	res := f.tools.Execute(ctx, name, params)
	inv := domain.ToolInvocation{
		Name:      name,
		Arguments: args,
		Result:    res.Content,
		Metadata:  res.Metadata,
	}
	return res, inv
}

// --- rendered tool result shapes ---

type inventoryPayload struct {
	Count int                    `json:"count"`
	Items []domain.InventoryItem `json:"items"`
}

type recipesPayload struct {
	Count   int             `json:"count"`
	Recipes []domain.Recipe `json:"recipes"`
}

// --- handlers ---

func handleInventory(ctx context.Context, f *Fallback, _ string) (string, []domain.ToolInvocation) {
	res, inv := f.invoke(ctx, "inventory_list", map[string]any{})
	invs := []domain.ToolInvocation{inv}
	if res.IsError {
		return "I couldn't reach your inventory just now.", invs
	}

	var payload inventoryPayload
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil || payload.Count == 0 {
		return "Your inventory is empty — nothing on hand yet.", invs
	}

	names := make([]string, 0, len(payload.Items))
	for _, item := range payload.Items {
		names = append(names, item.Name)
	}
	return fmt.Sprintf("You have %d item(s) on hand: %s.",
		payload.Count, strings.Join(names, ", ")), invs
}

func handleExpiring(ctx context.Context, f *Fallback, _ string) (string, []domain.ToolInvocation) {
	res, inv := f.invoke(ctx, "inventory_list", map[string]any{"expiring_within_days": 3})
	invs := []domain.ToolInvocation{inv}
	if res.IsError {
		return "I couldn't check expiry dates just now.", invs
	}

	var payload inventoryPayload
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil || payload.Count == 0 {
		return "Good news — nothing is expiring in the next few days.", invs
	}

	names := make([]string, 0, len(payload.Items))
	for _, item := range payload.Items {
		names = append(names, item.Name)
	}
	return fmt.Sprintf("%d item(s) expire within 3 days: %s. Consider using them soon.",
		payload.Count, strings.Join(names, ", ")), invs
}

func handleRecipes(ctx context.Context, f *Fallback, msg string) (string, []domain.ToolInvocation) {
	res, inv := f.invoke(ctx, "recipe_search", map[string]any{"query": msg, "limit": 5})
	invs := []domain.ToolInvocation{inv}
	if res.IsError {
		return "I couldn't search recipes just now.", invs
	}

	var payload recipesPayload
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil || payload.Count == 0 {
		return "I didn't find any matching recipes. Try naming an ingredient.", invs
	}

	names := make([]string, 0, len(payload.Recipes))
	for _, r := range payload.Recipes {
		names = append(names, r.Name)
	}
	return fmt.Sprintf("I found %d recipe(s): %s.",
		payload.Count, strings.Join(names, ", ")), invs
}

func handleMealPlan(_ context.Context, _ *Fallback, _ string) (string, []domain.ToolInvocation) {
	// Planning needs back-and-forth the offline cascade can't do; ask a
	// clarifying follow-up instead of guessing.
	return "I can set up a meal plan, but I need specifics while offline: " +
		"tell me a day and a recipe name, e.g. \"plan lasagna for monday\".", nil
}

func handleShopping(ctx context.Context, f *Fallback, _ string) (string, []domain.ToolInvocation) {
	res, inv := f.invoke(ctx, "shopping_list", map[string]any{})
	invs := []domain.ToolInvocation{inv}
	if res.IsError {
		return "Tell me which recipes to shop for, e.g. " +
			"\"shopping list for lasagna\".", invs
	}
	return "Here's your shopping list: " + res.Content, invs
}
