package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sous-chef/internal/domain"
)

const recipeColumns = "id, name, cuisine, ingredients, steps, prep_minutes, calories, protein_g, carbs_g, fat_g, tags, created_at"

// AddRecipe inserts a recipe, assigning an ID when none is set.
func (s *Store) AddRecipe(ctx context.Context, r *domain.Recipe) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	ingJSON, err := json.Marshal(r.Ingredients)
	if err != nil {
		return fmt.Errorf("marshal ingredients: %w", err)
	}
	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO recipes ("+recipeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.Name, r.Cuisine, string(ingJSON), r.Steps, r.PrepMinutes,
		r.Calories, r.ProteinG, r.CarbsG, r.FatG, string(tagsJSON),
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// Search matches the query against recipe names, cuisines, and ingredient
// lists, then filters by tags. Matching is case-insensitive substring.
func (s *Store) Search(ctx context.Context, query string, tags []string, limit int) ([]domain.Recipe, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recipeColumns+" FROM recipes "+
			"WHERE lower(name) LIKE ? OR lower(cuisine) LIKE ? OR lower(ingredients) LIKE ? "+
			"ORDER BY name",
		pattern, pattern, pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		if !hasAllTags(r.Tags, tags) {
			continue
		}
		out = append(out, *r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// ByNames returns recipes whose names match (case-insensitive) any of the
// given names. Missing names are simply absent from the result.
func (s *Store) ByNames(ctx context.Context, names []string) ([]domain.Recipe, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		placeholders[i] = "?"
		args[i] = strings.ToLower(strings.TrimSpace(n))
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recipeColumns+" FROM recipes WHERE lower(name) IN ("+strings.Join(placeholders, ", ")+") ORDER BY name",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// RecipeByID fetches a single recipe.
func (s *Store) RecipeByID(ctx context.Context, id string) (*domain.Recipe, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recipeColumns+" FROM recipes WHERE id = ?", id)
	r, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecipeNotFound
	}
	return r, err
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[strings.ToLower(t)] = true
	}
	for _, t := range want {
		if !set[strings.ToLower(t)] {
			return false
		}
	}
	return true
}

func scanRecipe(row scanner) (*domain.Recipe, error) {
	var r domain.Recipe
	var ingStr, tagsStr, createdStr string
	if err := row.Scan(&r.ID, &r.Name, &r.Cuisine, &ingStr, &r.Steps, &r.PrepMinutes,
		&r.Calories, &r.ProteinG, &r.CarbsG, &r.FatG, &tagsStr, &createdStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ingStr), &r.Ingredients); err != nil {
		return nil, fmt.Errorf("unmarshal ingredients: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsStr), &r.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}
