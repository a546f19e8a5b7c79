package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/tracer"
)

const maxShoppingRecipes = 15

// ShoppingListTool builds a shopping list for a set of recipes, subtracting
// whatever the user already has in their inventory.
type ShoppingListTool struct {
	recipes   RecipeBackend
	inventory InventoryBackend
	logger    *slog.Logger
}

// NewShoppingListTool creates a shopping list tool over the given backends.
func NewShoppingListTool(recipes RecipeBackend, inventory InventoryBackend, logger *slog.Logger) *ShoppingListTool {
	return &ShoppingListTool{recipes: recipes, inventory: inventory, logger: logger}
}

func (t *ShoppingListTool) Name() string { return "shopping_list" }
func (t *ShoppingListTool) Description() string {
	return "Build a shopping list for the given recipes. Ingredients already " +
		"in the user's inventory are listed separately as on hand."
}

func (t *ShoppingListTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"recipes": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Exact names of recipes to shop for"
				}
			},
			"required": ["recipes"]
		}`),
	}
}

type shoppingListParams struct {
	Recipes []string `json:"recipes"`
}

type shoppingListResult struct {
	Recipes []string `json:"recipes"`
	ToBuy   []string `json:"to_buy"`
	OnHand  []string `json:"on_hand"`
}

func (t *ShoppingListTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.shopping_list", t.logger, params,
		func(ctx context.Context, span trace.Span, p shoppingListParams) (any, error) {
			userID, err := userFromContext(ctx)
			if err != nil {
				return nil, err
			}
			if len(p.Recipes) == 0 {
				return nil, fmt.Errorf("'recipes' must name at least one recipe")
			}
			if len(p.Recipes) > maxShoppingRecipes {
				return nil, fmt.Errorf("too many recipes: %d (max %d)", len(p.Recipes), maxShoppingRecipes)
			}

			found, err := t.recipes.ByNames(ctx, p.Recipes)
			if err != nil {
				return nil, fmt.Errorf("look up recipes: %w", err)
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("none of the recipes were found. Use recipe_search to find exact names")
			}

			items, err := t.inventory.List(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("load inventory: %w", err)
			}
			onHand := make(map[string]bool, len(items))
			for _, item := range items {
				onHand[strings.ToLower(item.Name)] = true
			}

			needed := make(map[string]bool)
			have := make(map[string]bool)
			names := make([]string, 0, len(found))
			for _, r := range found {
				names = append(names, r.Name)
				for _, ing := range r.Ingredients {
					key := strings.ToLower(strings.TrimSpace(ing))
					if key == "" {
						continue
					}
					if onHand[key] {
						have[key] = true
					} else {
						needed[key] = true
					}
				}
			}

			span.SetAttributes(tracer.IntAttr("shopping.to_buy", len(needed)))
			t.logger.Debug("shopping list built", "user", userID, "recipes", len(found), "to_buy", len(needed))
			return shoppingListResult{
				Recipes: names,
				ToBuy:   sortedKeys(needed),
				OnHand:  sortedKeys(have),
			}, nil
		},
	)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
