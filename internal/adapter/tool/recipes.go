package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/tracer"
)

const (
	defaultRecipeLimit = 5
	maxRecipeLimit     = 25
	maxQueryLen        = 512
)

// RecipeSearchTool finds stored recipes by free-text query and tags.
type RecipeSearchTool struct {
	backend RecipeBackend
	logger  *slog.Logger
}

// NewRecipeSearchTool creates a recipe search tool backed by the given store.
func NewRecipeSearchTool(backend RecipeBackend, logger *slog.Logger) *RecipeSearchTool {
	return &RecipeSearchTool{backend: backend, logger: logger}
}

func (t *RecipeSearchTool) Name() string { return "recipe_search" }
func (t *RecipeSearchTool) Description() string {
	return "Search the recipe collection by ingredient, dish name, or cuisine. " +
		"Returns matching recipes with ingredients and nutrition facts."
}

func (t *RecipeSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Free-text search: an ingredient, dish name, or cuisine"
				},
				"tags": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Optional tags to filter by, e.g. vegetarian, quick"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum number of recipes to return (default 5, max 25)"
				}
			},
			"required": ["query"]
		}`),
	}
}

type recipeSearchParams struct {
	Query string   `json:"query"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

type recipeSearchResult struct {
	Count   int             `json:"count"`
	Recipes []domain.Recipe `json:"recipes"`
}

func (t *RecipeSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.recipe_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p recipeSearchParams) (any, error) {
			query := strings.TrimSpace(p.Query)
			if err := ValidateAll(
				RequireField("query", query),
				ValidateMaxLength("query", query, maxQueryLen),
			); err != nil {
				return nil, err
			}
			limit := p.Limit
			if limit <= 0 {
				limit = defaultRecipeLimit
			}
			if limit > maxRecipeLimit {
				limit = maxRecipeLimit
			}
			span.SetAttributes(tracer.IntAttr("recipe.limit", limit))

			recipes, err := t.backend.Search(ctx, query, p.Tags, limit)
			if err != nil {
				return nil, err
			}
			if recipes == nil {
				recipes = []domain.Recipe{}
			}
			t.logger.Debug("recipe search", "query", query, "hits", len(recipes))
			return recipeSearchResult{Count: len(recipes), Recipes: recipes}, nil
		},
	)
}
