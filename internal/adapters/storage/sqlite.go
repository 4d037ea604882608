package storage

// sqlite.go — session persistence for the decision loop.
//
// Layout:
//   - `verdicts`: one row per decision cycle, upsert keyed (asset, at_ms) so
//     a replayed cycle reconciles instead of duplicating.
//   - `window_results`: one row per window, keyed (asset, window_open_ms).
//   - `price_snapshots`: the per-source prices observed each cycle; a NULL
//     price records a feed outage, which is itself signal.
//   - `heartbeat_events`: append-only governor transitions.
//   - Timestamps are unix milliseconds so reconciliation keys compare
//     exactly; DATETIME text round-trips depend on driver formatting.
//   - Prune at startup keeps the file small.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
    asset             TEXT    NOT NULL,
    at_ms             INTEGER NOT NULL,
    window_open_ms    INTEGER NOT NULL,
    spot_price        REAL,
    oracle_price      REAL,
    oracle_source     TEXT    NOT NULL DEFAULT '',
    operator_price    REAL,
    regime            TEXT    NOT NULL,
    regime_reason     TEXT    NOT NULL DEFAULT '',
    regime_confidence REAL    NOT NULL DEFAULT 0,
    action            TEXT    NOT NULL,
    side              TEXT    NOT NULL DEFAULT '',
    phase             TEXT    NOT NULL DEFAULT '',
    strength          TEXT    NOT NULL DEFAULT '',
    edge              REAL,
    reason            TEXT    NOT NULL DEFAULT '',
    model_up          REAL,
    market_up         REAL,
    PRIMARY KEY (asset, at_ms)
);

CREATE TABLE IF NOT EXISTS window_results (
    asset           TEXT    NOT NULL,
    window_open_ms  INTEGER NOT NULL,
    window_close_ms INTEGER NOT NULL,
    open_price      REAL,
    close_price     REAL,
    settled_side    TEXT,
    entered         INTEGER NOT NULL DEFAULT 0,
    side            TEXT    NOT NULL DEFAULT '',
    entry_price     REAL    NOT NULL DEFAULT 0,
    size            REAL    NOT NULL DEFAULT 0,
    pnl             REAL    NOT NULL DEFAULT 0,
    outcome         TEXT    NOT NULL,
    PRIMARY KEY (asset, window_open_ms)
);

CREATE TABLE IF NOT EXISTS price_snapshots (
    asset         TEXT    NOT NULL,
    at_ms         INTEGER NOT NULL,
    source        TEXT    NOT NULL,
    price         REAL,
    updated_at_ms INTEGER,
    PRIMARY KEY (asset, at_ms, source)
);

CREATE TABLE IF NOT EXISTS heartbeat_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    asset       TEXT    NOT NULL,
    at_ms       INTEGER NOT NULL,
    kind        TEXT    NOT NULL,
    detail      TEXT    NOT NULL DEFAULT '',
    failures    INTEGER NOT NULL DEFAULT 0,
    attempt     INTEGER NOT NULL DEFAULT 0,
    open_orders INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_verdicts_at ON verdicts(at_ms DESC);
CREATE INDEX IF NOT EXISTS idx_results_at  ON window_results(window_open_ms DESC);
CREATE INDEX IF NOT EXISTS idx_snap_at     ON price_snapshots(at_ms DESC);
CREATE INDEX IF NOT EXISTS idx_hb_at       ON heartbeat_events(at_ms DESC);
`

const (
	retentionVerdicts  = 14 * 24 * time.Hour
	retentionSnapshots = 7 * 24 * time.Hour
	retentionEvents    = 30 * 24 * time.Hour
	retentionResults   = 90 * 24 * time.Hour
)

// SQLiteStorage implements ports.Storage on SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path, applies the
// schema, and prunes old rows.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveCycle upserts one decision-cycle record.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, rec domain.CycleRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts
			(asset, at_ms, window_open_ms, spot_price, oracle_price, oracle_source,
			 operator_price, regime, regime_reason, regime_confidence,
			 action, side, phase, strength, edge, reason, model_up, market_up)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset, at_ms) DO UPDATE SET
			window_open_ms    = excluded.window_open_ms,
			spot_price        = excluded.spot_price,
			oracle_price      = excluded.oracle_price,
			oracle_source     = excluded.oracle_source,
			operator_price    = excluded.operator_price,
			regime            = excluded.regime,
			regime_reason     = excluded.regime_reason,
			regime_confidence = excluded.regime_confidence,
			action            = excluded.action,
			side              = excluded.side,
			phase             = excluded.phase,
			strength          = excluded.strength,
			edge              = excluded.edge,
			reason            = excluded.reason,
			model_up          = excluded.model_up,
			market_up         = excluded.market_up
	`,
		rec.Asset,
		rec.At.UTC().UnixMilli(),
		rec.WindowOpen.UTC().UnixMilli(),
		rec.SpotPrice,
		rec.OraclePrice,
		string(rec.OracleSource),
		rec.OperatorPrice,
		string(rec.Regime),
		rec.RegimeReason,
		rec.RegimeConfidence,
		string(rec.Action),
		string(rec.Side),
		string(rec.Phase),
		string(rec.Strength),
		rec.Edge,
		rec.Reason,
		rec.ModelUp,
		rec.MarketUp,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: upsert: %w", err)
	}
	return nil
}

// SaveWindowResult upserts the settlement record for a window.
func (s *SQLiteStorage) SaveWindowResult(ctx context.Context, res domain.WindowResult) error {
	var settled *string
	if res.SettledSide != nil {
		v := string(*res.SettledSide)
		settled = &v
	}
	entered := 0
	if res.Entered {
		entered = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO window_results
			(asset, window_open_ms, window_close_ms, open_price, close_price,
			 settled_side, entered, side, entry_price, size, pnl, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset, window_open_ms) DO UPDATE SET
			window_close_ms = excluded.window_close_ms,
			open_price      = excluded.open_price,
			close_price     = excluded.close_price,
			settled_side    = excluded.settled_side,
			entered         = excluded.entered,
			side            = excluded.side,
			entry_price     = excluded.entry_price,
			size            = excluded.size,
			pnl             = excluded.pnl,
			outcome         = excluded.outcome
	`,
		res.Asset,
		res.WindowOpen.UTC().UnixMilli(),
		res.WindowClose.UTC().UnixMilli(),
		res.OpenPrice,
		res.ClosePrice,
		settled,
		entered,
		string(res.Side),
		res.EntryPrice,
		res.Size,
		res.PnL,
		string(res.Outcome),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveWindowResult: upsert: %w", err)
	}
	return nil
}

// SavePriceSnapshot records the per-source prices observed in one cycle.
func (s *SQLiteStorage) SavePriceSnapshot(ctx context.Context, asset string, at time.Time, ticks []domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePriceSnapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_snapshots (asset, at_ms, source, price, updated_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset, at_ms, source) DO UPDATE SET
			price         = excluded.price,
			updated_at_ms = excluded.updated_at_ms
	`)
	if err != nil {
		return fmt.Errorf("storage.SavePriceSnapshot: prepare: %w", err)
	}
	defer stmt.Close()

	atMs := at.UTC().UnixMilli()
	for _, t := range ticks {
		if t.Source == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, asset, atMs, string(t.Source), t.Price, t.UpdatedAt); err != nil {
			return fmt.Errorf("storage.SavePriceSnapshot: upsert %s: %w", t.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SavePriceSnapshot: commit: %w", err)
	}
	return nil
}

// SaveHeartbeatEvent appends one governor transition.
func (s *SQLiteStorage) SaveHeartbeatEvent(ctx context.Context, asset string, ev domain.HeartbeatEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat_events (asset, at_ms, kind, detail, failures, attempt, open_orders)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		asset,
		ev.At.UTC().UnixMilli(),
		string(ev.Kind),
		ev.Detail,
		ev.Failures,
		ev.Attempt,
		ev.OpenOrders,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveHeartbeatEvent: insert: %w", err)
	}
	return nil
}

// WindowResults returns settled windows for the asset in [from, to], oldest
// first.
func (s *SQLiteStorage) WindowResults(ctx context.Context, asset string, from, to time.Time) ([]domain.WindowResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT window_open_ms, window_close_ms, open_price, close_price,
		       settled_side, entered, side, entry_price, size, pnl, outcome
		FROM window_results
		WHERE asset = ? AND window_open_ms BETWEEN ? AND ?
		ORDER BY window_open_ms ASC
	`, asset, from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("storage.WindowResults: query: %w", err)
	}
	defer rows.Close()

	var out []domain.WindowResult
	for rows.Next() {
		var res domain.WindowResult
		var openMs, closeMs int64
		var openPrice, closePrice sql.NullFloat64
		var settledSide sql.NullString
		var entered int
		var side, outcome string

		if err := rows.Scan(
			&openMs, &closeMs, &openPrice, &closePrice, &settledSide,
			&entered, &side, &res.EntryPrice, &res.Size, &res.PnL, &outcome,
		); err != nil {
			return nil, fmt.Errorf("storage.WindowResults: scan row: %w", err)
		}

		res.Asset = asset
		res.WindowOpen = time.UnixMilli(openMs).UTC()
		res.WindowClose = time.UnixMilli(closeMs).UTC()
		if openPrice.Valid {
			res.OpenPrice = &openPrice.Float64
		}
		if closePrice.Valid {
			res.ClosePrice = &closePrice.Float64
		}
		if settledSide.Valid {
			settled := domain.Side(settledSide.String)
			res.SettledSide = &settled
		}
		res.Entered = entered == 1
		res.Side = domain.Side(side)
		res.Outcome = domain.WindowOutcome(outcome)
		out = append(out, res)
	}
	return out, rows.Err()
}

// CycleRecords returns verdicts for the asset in [from, to], oldest first.
// Not part of ports.Storage; the history command reads it off the concrete
// type.
func (s *SQLiteStorage) CycleRecords(ctx context.Context, asset string, from, to time.Time) ([]domain.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at_ms, window_open_ms, spot_price, oracle_price, oracle_source,
		       operator_price, regime, regime_reason, regime_confidence,
		       action, side, phase, strength, edge, reason, model_up, market_up
		FROM verdicts
		WHERE asset = ? AND at_ms BETWEEN ? AND ?
		ORDER BY at_ms ASC
	`, asset, from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("storage.CycleRecords: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleRecord
	for rows.Next() {
		var rec domain.CycleRecord
		var atMs, openMs int64
		var spot, oracle, operator, edge, modelUp, marketUp sql.NullFloat64
		var oracleSrc, regime, action, side, phase, strength string

		if err := rows.Scan(
			&atMs, &openMs, &spot, &oracle, &oracleSrc, &operator,
			&regime, &rec.RegimeReason, &rec.RegimeConfidence,
			&action, &side, &phase, &strength, &edge, &rec.Reason,
			&modelUp, &marketUp,
		); err != nil {
			return nil, fmt.Errorf("storage.CycleRecords: scan row: %w", err)
		}

		rec.Asset = asset
		rec.At = time.UnixMilli(atMs).UTC()
		rec.WindowOpen = time.UnixMilli(openMs).UTC()
		if spot.Valid {
			rec.SpotPrice = &spot.Float64
		}
		if oracle.Valid {
			rec.OraclePrice = &oracle.Float64
		}
		rec.OracleSource = domain.TickSource(oracleSrc)
		if operator.Valid {
			rec.OperatorPrice = &operator.Float64
		}
		rec.Regime = domain.Regime(regime)
		rec.Action = domain.Action(action)
		rec.Side = domain.Side(side)
		rec.Phase = domain.Phase(phase)
		rec.Strength = domain.Strength(strength)
		if edge.Valid {
			rec.Edge = &edge.Float64
		}
		if modelUp.Valid {
			rec.ModelUp = &modelUp.Float64
		}
		if marketUp.Valid {
			rec.MarketUp = &marketUp.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld removes aged rows to keep the database small. Errors are ignored;
// pruning is best effort.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM verdicts WHERE at_ms < ?`, now.Add(-retentionVerdicts).UnixMilli())
	s.db.ExecContext(ctx, `DELETE FROM price_snapshots WHERE at_ms < ?`, now.Add(-retentionSnapshots).UnixMilli())
	s.db.ExecContext(ctx, `DELETE FROM heartbeat_events WHERE at_ms < ?`, now.Add(-retentionEvents).UnixMilli())
	s.db.ExecContext(ctx, `DELETE FROM window_results WHERE window_open_ms < ?`, now.Add(-retentionResults).UnixMilli())
}
