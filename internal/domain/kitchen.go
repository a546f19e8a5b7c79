package domain

import "time"

// Recipe is a stored recipe with its ingredient list and nutrition facts.
type Recipe struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Cuisine     string    `json:"cuisine,omitempty"`
	Ingredients []string  `json:"ingredients"`
	Steps       string    `json:"steps,omitempty"`
	PrepMinutes int       `json:"prep_minutes,omitempty"`
	Calories    int       `json:"calories,omitempty"`
	ProteinG    float64   `json:"protein_g,omitempty"`
	CarbsG      float64   `json:"carbs_g,omitempty"`
	FatG        float64   `json:"fat_g,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// InventoryItem is one item a user has on hand. ExpiresAt is nil for
// non-perishables.
type InventoryItem struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Quantity  float64    `json:"quantity"`
	Unit      string     `json:"unit,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MealPlanEntry assigns a recipe to a day slot.
type MealPlanEntry struct {
	Day    string `json:"day"`
	Meal   string `json:"meal,omitempty"` // breakfast/lunch/dinner
	Recipe string `json:"recipe"`
}

// MealPlan is a week of planned meals for a user.
type MealPlan struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	WeekStart string          `json:"week_start"` // ISO date
	Entries   []MealPlanEntry `json:"entries"`
	CreatedAt time.Time       `json:"created_at"`
}

// Preferences captures a user's standing dietary profile.
type Preferences struct {
	UserID        string    `json:"user_id"`
	Dietary       string    `json:"dietary,omitempty"`  // e.g. "vegetarian"
	Dislikes      string    `json:"dislikes,omitempty"` // comma-separated
	HouseholdSize int       `json:"household_size,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
