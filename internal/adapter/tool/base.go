package tool

import (
	"context"

	"sous-chef/internal/domain"
)

// RecipeBackend abstracts recipe lookup for the recipe-facing tools.
type RecipeBackend interface {
	Search(ctx context.Context, query string, tags []string, limit int) ([]domain.Recipe, error)
	ByNames(ctx context.Context, names []string) ([]domain.Recipe, error)
}

// InventoryBackend abstracts a user's stock of ingredients.
type InventoryBackend interface {
	List(ctx context.Context, userID string) ([]domain.InventoryItem, error)
	ExpiringForUser(ctx context.Context, userID string, days int) ([]domain.InventoryItem, error)
}

// MealPlanBackend persists weekly meal plans.
type MealPlanBackend interface {
	Create(ctx context.Context, plan *domain.MealPlan) error
}

// userFromContext extracts the acting user. Tools always run underneath an
// orchestrator turn, which sets it; a missing user is a wiring bug surfaced
// to the model as an error result.
func userFromContext(ctx context.Context) (string, error) {
	userID := domain.UserFromContext(ctx)
	if userID == "" {
		return "", domain.NewDomainError("tool", domain.ErrInvalidInput, "no user in context")
	}
	return userID, nil
}
