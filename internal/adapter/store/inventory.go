package store

import (
	"context"
	"database/sql"
	"time"

	"sous-chef/internal/domain"
)

const inventoryColumns = "id, user_id, name, quantity, unit, expires_at, updated_at"

// UpsertItem inserts or replaces an inventory item, assigning an ID when
// none is set.
func (s *Store) UpsertItem(ctx context.Context, item *domain.InventoryItem) error {
	if item.ID == "" {
		item.ID = newID()
	}
	item.UpdatedAt = time.Now().UTC()
	var expires any
	if item.ExpiresAt != nil {
		expires = item.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO inventory ("+inventoryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		item.ID, item.UserID, item.Name, item.Quantity, item.Unit, expires,
		item.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// List returns a user's inventory ordered by name.
func (s *Store) List(ctx context.Context, userID string) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+inventoryColumns+" FROM inventory WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ExpiringForUser returns a user's items expiring within days, soonest first.
func (s *Store) ExpiringForUser(ctx context.Context, userID string, days int) ([]domain.InventoryItem, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, days)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+inventoryColumns+" FROM inventory "+
			"WHERE user_id = ? AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at",
		userID, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ExpiringWithin returns items across all users expiring within days, for
// the periodic expiry digest.
func (s *Store) ExpiringWithin(ctx context.Context, days int) ([]domain.InventoryItem, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, days)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+inventoryColumns+" FROM inventory "+
			"WHERE expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at",
		cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// DeleteItem removes one inventory item.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM inventory WHERE id = ?", id)
	return err
}

func collectItems(rows *sql.Rows) ([]domain.InventoryItem, error) {
	defer rows.Close()
	var items []domain.InventoryItem
	for rows.Next() {
		var item domain.InventoryItem
		var expires sql.NullString
		var updatedStr string
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Quantity,
			&item.Unit, &expires, &updatedStr); err != nil {
			return nil, err
		}
		if expires.Valid {
			t, err := time.Parse(time.RFC3339Nano, expires.String)
			if err == nil {
				item.ExpiresAt = &t
			}
		}
		item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		items = append(items, item)
	}
	return items, rows.Err()
}
