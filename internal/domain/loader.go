package domain

import "context"

// ContextLoader supplies the standing context for a turn: user preferences,
// a short inventory summary, and the prior messages of the thread. All
// methods are pure reads. Preferences and InventorySummary return empty
// strings when nothing is on file; History returns messages oldest-first,
// capped at limit.
type ContextLoader interface {
	Preferences(ctx context.Context, userID string) (string, error)
	InventorySummary(ctx context.Context, userID string) (string, error)
	History(ctx context.Context, threadID string, limit int) ([]Message, error)
}
