package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sous-chef/internal/domain"
)

// Create persists a meal plan, assigning its ID and creation time.
func (s *Store) Create(ctx context.Context, plan *domain.MealPlan) error {
	if plan.ID == "" {
		plan.ID = newID()
	}
	plan.CreatedAt = time.Now().UTC()
	entriesJSON, err := json.Marshal(plan.Entries)
	if err != nil {
		return fmt.Errorf("marshal plan entries: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO meal_plans (id, user_id, week_start, entries, created_at) VALUES (?, ?, ?, ?, ?)",
		plan.ID, plan.UserID, plan.WeekStart, string(entriesJSON),
		plan.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// PlansForUser returns a user's meal plans, most recent week first.
func (s *Store) PlansForUser(ctx context.Context, userID string, limit int) ([]domain.MealPlan, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, week_start, entries, created_at FROM meal_plans "+
			"WHERE user_id = ? ORDER BY week_start DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.MealPlan
	for rows.Next() {
		var p domain.MealPlan
		var entriesStr, createdStr string
		if err := rows.Scan(&p.ID, &p.UserID, &p.WeekStart, &entriesStr, &createdStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(entriesStr), &p.Entries); err != nil {
			return nil, fmt.Errorf("unmarshal plan entries: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
