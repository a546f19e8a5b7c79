package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sous-chef/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecipeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := &domain.Recipe{
		Name:        "Carbonara",
		Cuisine:     "italian",
		Ingredients: []string{"spaghetti", "eggs", "pancetta"},
		PrepMinutes: 25,
		Calories:    600,
		ProteinG:    25.5,
		Tags:        []string{"quick"},
	}
	require.NoError(t, s.AddRecipe(ctx, r))
	require.NotEmpty(t, r.ID)

	got, err := s.RecipeByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carbonara", got.Name)
	assert.Equal(t, []string{"spaghetti", "eggs", "pancetta"}, got.Ingredients)
	assert.InDelta(t, 25.5, got.ProteinG, 0.001)
}

func TestRecipeByIDNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.RecipeByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrRecipeNotFound)
}

func TestRecipeSearchMatchesNameCuisineIngredients(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddRecipe(ctx, &domain.Recipe{
		Name: "Lentil Soup", Ingredients: []string{"lentils", "carrot"}, Tags: []string{"vegetarian"},
	}))
	require.NoError(t, s.AddRecipe(ctx, &domain.Recipe{
		Name: "Beef Stew", Cuisine: "french", Ingredients: []string{"beef", "carrot"},
	}))

	byName, err := s.Search(ctx, "lentil", nil, 10)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Lentil Soup", byName[0].Name)

	byCuisine, err := s.Search(ctx, "french", nil, 10)
	require.NoError(t, err)
	require.Len(t, byCuisine, 1)

	byIngredient, err := s.Search(ctx, "carrot", nil, 10)
	require.NoError(t, err)
	assert.Len(t, byIngredient, 2)

	tagged, err := s.Search(ctx, "carrot", []string{"vegetarian"}, 10)
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "Lentil Soup", tagged[0].Name)
}

func TestRecipeSearchLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"Soup A", "Soup B", "Soup C"} {
		require.NoError(t, s.AddRecipe(ctx, &domain.Recipe{Name: name, Ingredients: []string{"water"}}))
	}

	out, err := s.Search(ctx, "soup", nil, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRecipeByNamesCaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddRecipe(ctx, &domain.Recipe{Name: "Carbonara", Ingredients: []string{"eggs"}}))

	out, err := s.ByNames(ctx, []string{"carbonara", "Missing Dish"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Carbonara", out[0].Name)
}

func TestInventoryScopingAndExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(240 * time.Hour)
	require.NoError(t, s.UpsertItem(ctx, &domain.InventoryItem{UserID: "u1", Name: "yogurt", Quantity: 1, ExpiresAt: &soon}))
	require.NoError(t, s.UpsertItem(ctx, &domain.InventoryItem{UserID: "u1", Name: "rice", Quantity: 2}))
	require.NoError(t, s.UpsertItem(ctx, &domain.InventoryItem{UserID: "u2", Name: "milk", Quantity: 1, ExpiresAt: &soon}))
	require.NoError(t, s.UpsertItem(ctx, &domain.InventoryItem{UserID: "u1", Name: "frozen peas", Quantity: 1, ExpiresAt: &later}))

	all, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	expiring, err := s.ExpiringForUser(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "yogurt", expiring[0].Name)

	// Digest scan crosses users.
	global, err := s.ExpiringWithin(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, global, 2)
}

func TestMealPlanRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan := &domain.MealPlan{
		UserID:    "u1",
		WeekStart: "2026-09-07",
		Entries: []domain.MealPlanEntry{
			{Day: "monday", Meal: "dinner", Recipe: "Carbonara"},
		},
	}
	require.NoError(t, s.Create(ctx, plan))
	require.NotEmpty(t, plan.ID)

	plans, err := s.PlansForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "2026-09-07", plans[0].WeekStart)
	require.Len(t, plans[0].Entries, 1)
	assert.Equal(t, "Carbonara", plans[0].Entries[0].Recipe)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three", "four"} {
		require.NoError(t, s.AppendMessage(ctx, "t1", domain.Message{
			Role: domain.RoleUser, Content: content,
		}))
	}
	require.NoError(t, s.AppendMessage(ctx, "other", domain.Message{
		Role: domain.RoleUser, Content: "foreign thread",
	}))

	// Most recent 3, oldest-first.
	msgs, err := s.History(ctx, "t1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "four", msgs[2].Content)
}

func TestHistoryPreservesToolCalls(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, "t1", domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: "recipe_search", Arguments: []byte(`{"query":"soup"}`)},
		},
	}))

	msgs, err := s.History(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "recipe_search", msgs[0].ToolCalls[0].Name)
}

func TestPreferencesUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	none, err := s.PreferencesFor(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.SavePreferences(ctx, &domain.Preferences{
		UserID: "u1", Dietary: "vegetarian", HouseholdSize: 2,
	}))
	require.NoError(t, s.SavePreferences(ctx, &domain.Preferences{
		UserID: "u1", Dietary: "vegan", HouseholdSize: 2,
	}))

	got, err := s.PreferencesFor(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "vegan", got.Dietary)
}

func TestLoaderRendersContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loader := NewLoader(s)

	prefs, err := loader.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, prefs)

	require.NoError(t, s.SavePreferences(ctx, &domain.Preferences{
		UserID: "u1", Dietary: "vegetarian", Dislikes: "olives", HouseholdSize: 3,
	}))
	prefs, err = loader.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, prefs, "Diet: vegetarian")
	assert.Contains(t, prefs, "Dislikes: olives")
	assert.Contains(t, prefs, "Household size: 3")

	expires := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertItem(ctx, &domain.InventoryItem{
		UserID: "u1", Name: "yogurt", Quantity: 2, Unit: "cups", ExpiresAt: &expires,
	}))
	summary, err := loader.InventorySummary(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, summary, "yogurt: 2 cups")
	assert.Contains(t, summary, "expires 2026-09-03")
}

func TestLoaderSummaryCapsItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loader := NewLoader(s)

	for i := 0; i < summaryItemCap+5; i++ {
		require.NoError(t, s.UpsertItem(ctx, &domain.InventoryItem{
			UserID: "u1", Name: string(rune('a'+i%26)) + "-item", Quantity: 1,
		}))
	}
	summary, err := loader.InventorySummary(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, summary, "more items")
}
