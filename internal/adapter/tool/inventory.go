package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/tracer"
)

const maxExpiryWindowDays = 90

// InventoryListTool reports what the user currently has on hand, optionally
// narrowed to items close to their expiry date.
type InventoryListTool struct {
	backend InventoryBackend
	logger  *slog.Logger
}

// NewInventoryListTool creates an inventory tool backed by the given store.
func NewInventoryListTool(backend InventoryBackend, logger *slog.Logger) *InventoryListTool {
	return &InventoryListTool{backend: backend, logger: logger}
}

func (t *InventoryListTool) Name() string { return "inventory_list" }
func (t *InventoryListTool) Description() string {
	return "List the ingredients the user has in their kitchen, with quantities " +
		"and expiry dates. Can filter to items expiring within a number of days."
}

func (t *InventoryListTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"expiring_within_days": {
					"type": "integer",
					"description": "Only return items expiring within this many days (1-90)"
				}
			}
		}`),
	}
}

type inventoryListParams struct {
	ExpiringWithinDays int `json:"expiring_within_days,omitempty"`
}

type inventoryListResult struct {
	Count int                    `json:"count"`
	Items []domain.InventoryItem `json:"items"`
}

func (t *InventoryListTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.inventory_list", t.logger, params,
		func(ctx context.Context, span trace.Span, p inventoryListParams) (any, error) {
			userID, err := userFromContext(ctx)
			if err != nil {
				return nil, err
			}

			var items []domain.InventoryItem
			if p.ExpiringWithinDays > 0 {
				if err := ValidateRange("expiring_within_days", p.ExpiringWithinDays, 1, maxExpiryWindowDays); err != nil {
					return nil, err
				}
				span.SetAttributes(tracer.IntAttr("inventory.window_days", p.ExpiringWithinDays))
				items, err = t.backend.ExpiringForUser(ctx, userID, p.ExpiringWithinDays)
			} else {
				items, err = t.backend.List(ctx, userID)
			}
			if err != nil {
				return nil, err
			}
			if items == nil {
				items = []domain.InventoryItem{}
			}
			t.logger.Debug("inventory listed", "user", userID, "items", len(items))
			return inventoryListResult{Count: len(items), Items: items}, nil
		},
	)
}
