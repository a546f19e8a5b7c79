package store

import (
	"context"
	"fmt"
	"strings"

	"sous-chef/internal/domain"
)

// summaryItemCap keeps the inventory summary small enough to live in the
// system prompt without crowding out the conversation.
const summaryItemCap = 25

// Loader implements domain.ContextLoader over the store, rendering stored
// rows into the compact text blocks the prompt builder expects.
type Loader struct {
	store *Store
}

// NewLoader creates a context loader over the given store.
func NewLoader(store *Store) *Loader {
	return &Loader{store: store}
}

var _ domain.ContextLoader = (*Loader)(nil)

// Preferences renders the user's dietary profile as a short text block, or
// "" when nothing is on file.
func (l *Loader) Preferences(ctx context.Context, userID string) (string, error) {
	p, err := l.store.PreferencesFor(ctx, userID)
	if err != nil {
		return "", domain.WrapOp("load preferences", err)
	}
	if p == nil {
		return "", nil
	}
	var b strings.Builder
	if p.Dietary != "" {
		fmt.Fprintf(&b, "Diet: %s\n", p.Dietary)
	}
	if p.Dislikes != "" {
		fmt.Fprintf(&b, "Dislikes: %s\n", p.Dislikes)
	}
	if p.HouseholdSize > 0 {
		fmt.Fprintf(&b, "Household size: %d\n", p.HouseholdSize)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// InventorySummary renders up to summaryItemCap items as one line each,
// noting how many were omitted.
func (l *Loader) InventorySummary(ctx context.Context, userID string) (string, error) {
	items, err := l.store.List(ctx, userID)
	if err != nil {
		return "", domain.WrapOp("load inventory", err)
	}
	if len(items) == 0 {
		return "", nil
	}

	shown := items
	if len(shown) > summaryItemCap {
		shown = shown[:summaryItemCap]
	}
	var b strings.Builder
	for _, item := range shown {
		b.WriteString("- ")
		b.WriteString(item.Name)
		if item.Quantity > 0 {
			fmt.Fprintf(&b, ": %g", item.Quantity)
			if item.Unit != "" {
				b.WriteString(" " + item.Unit)
			}
		}
		if item.ExpiresAt != nil {
			fmt.Fprintf(&b, " (expires %s)", item.ExpiresAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	if omitted := len(items) - len(shown); omitted > 0 {
		fmt.Fprintf(&b, "(and %d more items)\n", omitted)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// History returns the thread's recent messages oldest-first.
func (l *Loader) History(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	return l.store.History(ctx, threadID, limit)
}
