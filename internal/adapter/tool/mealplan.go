package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/tracer"
)

const (
	maxPlanEntries      = 21 // three meals a day for a week
	maxPlanWritesPerMin = 10
)

var weekDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// MealPlanCreateTool persists a weekly meal plan assembled by the model.
// Writes are rate limited; a looping model cannot flood the plan table.
type MealPlanCreateTool struct {
	plans       MealPlanBackend
	recipes     RecipeBackend
	logger      *slog.Logger
	rateLimiter *RateLimiter
}

// NewMealPlanCreateTool creates a meal plan tool. The recipe backend is used
// to reject plans that reference recipes that do not exist.
func NewMealPlanCreateTool(plans MealPlanBackend, recipes RecipeBackend, logger *slog.Logger) *MealPlanCreateTool {
	return &MealPlanCreateTool{
		plans:       plans,
		recipes:     recipes,
		logger:      logger,
		rateLimiter: NewRateLimiter(maxPlanWritesPerMin, time.Minute),
	}
}

func (t *MealPlanCreateTool) Name() string { return "mealplan_create" }
func (t *MealPlanCreateTool) Description() string {
	return "Save a weekly meal plan: a list of (day, meal, recipe) entries " +
		"for the week starting on the given date. Recipes must exist in the collection."
}

func (t *MealPlanCreateTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"week_start": {
					"type": "string",
					"description": "ISO date (YYYY-MM-DD) of the Monday the plan starts on"
				},
				"entries": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"day": {
								"type": "string",
								"enum": ["monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"]
							},
							"meal": {
								"type": "string",
								"enum": ["breakfast", "lunch", "dinner"]
							},
							"recipe": {
								"type": "string",
								"description": "Exact name of a recipe in the collection"
							}
						},
						"required": ["day", "recipe"]
					}
				}
			},
			"required": ["week_start", "entries"]
		}`),
	}
}

type mealPlanParams struct {
	WeekStart string                 `json:"week_start"`
	Entries   []domain.MealPlanEntry `json:"entries"`
}

type mealPlanResult struct {
	ID        string `json:"id"`
	WeekStart string `json:"week_start"`
	Entries   int    `json:"entries"`
	Message   string `json:"message"`
}

func (t *MealPlanCreateTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.mealplan_create", t.logger, params,
		func(ctx context.Context, span trace.Span, p mealPlanParams) (any, error) {
			userID, err := userFromContext(ctx)
			if err != nil {
				return nil, err
			}
			if !t.rateLimiter.Allow() {
				return nil, fmt.Errorf("meal plan write rate limit reached, try again shortly")
			}
			if err := t.validate(p); err != nil {
				return nil, err
			}
			if err := t.checkRecipesExist(ctx, p.Entries); err != nil {
				return nil, err
			}

			plan := &domain.MealPlan{
				UserID:    userID,
				WeekStart: p.WeekStart,
				Entries:   p.Entries,
			}
			if err := t.plans.Create(ctx, plan); err != nil {
				return nil, err
			}

			span.SetAttributes(tracer.IntAttr("mealplan.entries", len(plan.Entries)))
			t.logger.Info("meal plan created", "user", userID, "plan", plan.ID, "entries", len(plan.Entries))
			return mealPlanResult{
				ID:        plan.ID,
				WeekStart: plan.WeekStart,
				Entries:   len(plan.Entries),
				Message:   fmt.Sprintf("Meal plan for week of %s saved with %d entries.", plan.WeekStart, len(plan.Entries)),
			}, nil
		},
	)
}

func (t *MealPlanCreateTool) validate(p mealPlanParams) error {
	if err := RequireField("week_start", p.WeekStart); err != nil {
		return err
	}
	if _, err := time.Parse("2006-01-02", p.WeekStart); err != nil {
		return fmt.Errorf("invalid week_start %q: want YYYY-MM-DD", p.WeekStart)
	}
	if len(p.Entries) == 0 {
		return fmt.Errorf("'entries' must contain at least one entry")
	}
	if len(p.Entries) > maxPlanEntries {
		return fmt.Errorf("too many entries: %d (max %d)", len(p.Entries), maxPlanEntries)
	}
	for i, e := range p.Entries {
		if err := ValidateAll(
			ValidateEnum(fmt.Sprintf("entries[%d].day", i), strings.ToLower(e.Day), weekDays...),
			RequireField(fmt.Sprintf("entries[%d].day", i), e.Day),
			RequireField(fmt.Sprintf("entries[%d].recipe", i), e.Recipe),
			ValidateEnum(fmt.Sprintf("entries[%d].meal", i), strings.ToLower(e.Meal), "breakfast", "lunch", "dinner"),
		); err != nil {
			return err
		}
	}
	return nil
}

func (t *MealPlanCreateTool) checkRecipesExist(ctx context.Context, entries []domain.MealPlanEntry) error {
	names := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := strings.ToLower(e.Recipe)
		if !seen[key] {
			seen[key] = true
			names = append(names, e.Recipe)
		}
	}

	found, err := t.recipes.ByNames(ctx, names)
	if err != nil {
		return fmt.Errorf("look up recipes: %w", err)
	}
	have := make(map[string]bool, len(found))
	for _, r := range found {
		have[strings.ToLower(r.Name)] = true
	}
	var missing []string
	for _, n := range names {
		if !have[strings.ToLower(n)] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown recipe(s): %s. Use recipe_search to find exact names", joinComma(missing))
	}
	return nil
}
