package ports

import (
	"context"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// Notifier surfaces decisions and safety alerts to the operator. The console
// implementation prints compact lines per cycle and a table per session.
type Notifier interface {
	// CycleVerdict reports one decision cycle.
	CycleVerdict(ctx context.Context, rec domain.CycleRecord) error

	// WindowSettled reports a window settlement and running session stats.
	WindowSettled(ctx context.Context, res domain.WindowResult, stats domain.SessionStats) error

	// Alert reports a condition an operator must act on, such as a failed
	// boundary cancel-all or live trading being disabled.
	Alert(ctx context.Context, subject, detail string) error

	// SessionSummary renders the end-of-run table.
	SessionSummary(ctx context.Context, stats domain.SessionStats) error
}
