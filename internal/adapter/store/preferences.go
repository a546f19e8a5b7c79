package store

import (
	"context"
	"database/sql"
	"time"

	"sous-chef/internal/domain"
)

// SavePreferences upserts a user's dietary profile.
func (s *Store) SavePreferences(ctx context.Context, p *domain.Preferences) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO preferences (user_id, dietary, dislikes, household_size, updated_at) "+
			"VALUES (?, ?, ?, ?, ?) "+
			"ON CONFLICT(user_id) DO UPDATE SET dietary = excluded.dietary, "+
			"dislikes = excluded.dislikes, household_size = excluded.household_size, "+
			"updated_at = excluded.updated_at",
		p.UserID, p.Dietary, p.Dislikes, p.HouseholdSize,
		p.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// PreferencesFor returns the stored profile, or nil when none is on file.
func (s *Store) PreferencesFor(ctx context.Context, userID string) (*domain.Preferences, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT user_id, dietary, dislikes, household_size, updated_at FROM preferences WHERE user_id = ?",
		userID)
	var p domain.Preferences
	var updatedStr string
	if err := row.Scan(&p.UserID, &p.Dietary, &p.Dislikes, &p.HouseholdSize, &updatedStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &p, nil
}
