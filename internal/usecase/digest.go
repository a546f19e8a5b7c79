package usecase

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"sous-chef/internal/domain"
)

// ExpiryLister reports inventory items (across all users) that expire
// within the given number of days.
type ExpiryLister interface {
	ExpiringWithin(ctx context.Context, days int) ([]domain.InventoryItem, error)
}

// ExpiryDigest periodically scans the inventory for items nearing expiry
// and logs a digest. Downstream notification delivery is out of scope for
// the engine; the log line is the integration point.
type ExpiryDigest struct {
	inventory  ExpiryLister
	withinDays int
	logger     *slog.Logger
	cron       *cron.Cron
}

// NewExpiryDigest creates a digest scheduler. withinDays <= 0 defaults to 3.
func NewExpiryDigest(inventory ExpiryLister, withinDays int, logger *slog.Logger) *ExpiryDigest {
	if withinDays <= 0 {
		withinDays = 3
	}
	return &ExpiryDigest{
		inventory:  inventory,
		withinDays: withinDays,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start registers the job with the given cron schedule and begins running.
func (d *ExpiryDigest) Start(schedule string) error {
	_, err := d.cron.AddFunc(schedule, func() {
		d.Run(context.Background())
	})
	if err != nil {
		return domain.WrapOp("schedule expiry digest", err)
	}
	d.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (d *ExpiryDigest) Stop() {
	<-d.cron.Stop().Done()
}

// Run executes one digest pass. Exposed for tests and manual triggering.
func (d *ExpiryDigest) Run(ctx context.Context) {
	items, err := d.inventory.ExpiringWithin(ctx, d.withinDays)
	if err != nil {
		d.logger.Warn("expiry digest scan failed", "error", err)
		return
	}
	if len(items) == 0 {
		d.logger.Debug("expiry digest: nothing expiring", "within_days", d.withinDays)
		return
	}
	for _, item := range items {
		d.logger.Info("inventory item expiring soon",
			"user", item.UserID,
			"item", item.Name,
			"expires_at", item.ExpiresAt,
		)
	}
}
