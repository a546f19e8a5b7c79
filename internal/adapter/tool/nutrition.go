package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/trace"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/tracer"
)

// NutritionSummaryTool totals calories and macros across a set of recipes,
// for example the meals planned for one day.
type NutritionSummaryTool struct {
	recipes RecipeBackend
	logger  *slog.Logger
}

// NewNutritionSummaryTool creates a nutrition tool over the recipe backend.
func NewNutritionSummaryTool(recipes RecipeBackend, logger *slog.Logger) *NutritionSummaryTool {
	return &NutritionSummaryTool{recipes: recipes, logger: logger}
}

func (t *NutritionSummaryTool) Name() string { return "nutrition_summary" }
func (t *NutritionSummaryTool) Description() string {
	return "Sum calories, protein, carbs, and fat across the given recipes. " +
		"Useful for checking a day's planned meals against dietary goals."
}

func (t *NutritionSummaryTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"recipes": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Exact names of recipes to total"
				},
				"servings": {
					"type": "integer",
					"description": "Multiply the totals by this serving count (default 1)"
				}
			},
			"required": ["recipes"]
		}`),
	}
}

type nutritionParams struct {
	Recipes  []string `json:"recipes"`
	Servings int      `json:"servings,omitempty"`
}

type recipeNutrition struct {
	Name     string  `json:"name"`
	Calories int     `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type nutritionResult struct {
	Recipes       []recipeNutrition `json:"recipes"`
	Servings      int               `json:"servings"`
	TotalCalories int               `json:"total_calories"`
	TotalProteinG float64           `json:"total_protein_g"`
	TotalCarbsG   float64           `json:"total_carbs_g"`
	TotalFatG     float64           `json:"total_fat_g"`
}

func (t *NutritionSummaryTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.nutrition_summary", t.logger, params,
		func(ctx context.Context, span trace.Span, p nutritionParams) (any, error) {
			if len(p.Recipes) == 0 {
				return nil, fmt.Errorf("'recipes' must name at least one recipe")
			}
			servings := p.Servings
			if servings <= 0 {
				servings = 1
			}
			if err := ValidateRange("servings", servings, 1, 20); err != nil {
				return nil, err
			}

			found, err := t.recipes.ByNames(ctx, p.Recipes)
			if err != nil {
				return nil, fmt.Errorf("look up recipes: %w", err)
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("none of the recipes were found. Use recipe_search to find exact names")
			}

			res := nutritionResult{Servings: servings, Recipes: make([]recipeNutrition, 0, len(found))}
			for _, r := range found {
				res.Recipes = append(res.Recipes, recipeNutrition{
					Name:     r.Name,
					Calories: r.Calories,
					ProteinG: r.ProteinG,
					CarbsG:   r.CarbsG,
					FatG:     r.FatG,
				})
				res.TotalCalories += r.Calories * servings
				res.TotalProteinG += r.ProteinG * float64(servings)
				res.TotalCarbsG += r.CarbsG * float64(servings)
				res.TotalFatG += r.FatG * float64(servings)
			}
			res.TotalProteinG = round1(res.TotalProteinG)
			res.TotalCarbsG = round1(res.TotalCarbsG)
			res.TotalFatG = round1(res.TotalFatG)

			span.SetAttributes(tracer.IntAttr("nutrition.total_calories", res.TotalCalories))
			return res, nil
		},
	)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
