package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/adapters/notify"
	"github.com/youming-ai/orakel-sub002/internal/adapters/storage"
	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// runHistory prints stored window results for the last n days.
func runHistory(store *storage.SQLiteStorage, notifier *notify.Console, asset string, days int) {
	if days <= 0 {
		days = 1
	}
	ctx := context.Background()
	to := time.Now().UTC()
	from := to.Add(-time.Duration(days) * 24 * time.Hour)

	results, err := store.WindowResults(ctx, asset, from, to)
	if err != nil {
		slog.Error("failed to read window results", "err", err)
		return
	}
	notifier.PrintHistory(results)

	recs, err := store.CycleRecords(ctx, asset, from, to)
	if err != nil {
		slog.Error("failed to read cycle records", "err", err)
		return
	}

	entries := 0
	for _, rec := range recs {
		if rec.Action == domain.ActionEnter {
			entries++
		}
	}
	slog.Info("history", "asset", asset, "days", days, "cycles", len(recs), "entries", entries)
}
