package ports

import (
	"context"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// Storage persists cycle verdicts, window settlements, and governor events.
// All writes are idempotent upserts keyed by timestamp + asset so replays
// reconcile instead of duplicating.
type Storage interface {
	// SaveCycle upserts one decision-cycle record.
	SaveCycle(ctx context.Context, rec domain.CycleRecord) error

	// SaveWindowResult upserts the settlement record for a window.
	SaveWindowResult(ctx context.Context, res domain.WindowResult) error

	// SavePriceSnapshot records the per-source prices observed in a cycle.
	SavePriceSnapshot(ctx context.Context, asset string, at time.Time, ticks []domain.PriceTick) error

	// SaveHeartbeatEvent appends a governor transition.
	SaveHeartbeatEvent(ctx context.Context, asset string, ev domain.HeartbeatEvent) error

	// WindowResults returns settled windows in the given range, oldest first.
	WindowResults(ctx context.Context, asset string, from, to time.Time) ([]domain.WindowResult, error)

	// Close releases the underlying database.
	Close() error
}
