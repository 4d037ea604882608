package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youming-ai/orakel-sub002/internal/adapters/storage"
	"github.com/youming-ai/orakel-sub002/internal/domain"
)

var testWindowOpen = time.Date(2024, 4, 25, 12, 0, 0, 0, time.UTC)

func makeCycleRecord(at time.Time, action domain.Action) domain.CycleRecord {
	spot := 50012.5
	edge := 0.07
	modelUp := 0.62
	marketUp := 0.55
	return domain.CycleRecord{
		At:               at,
		Asset:            "btc",
		WindowOpen:       testWindowOpen,
		SpotPrice:        &spot,
		OracleSource:     domain.SourceOracleWS,
		Regime:           domain.RegimeTrendUp,
		RegimeReason:     "price_above_ref_rising",
		RegimeConfidence: 0.71,
		Action:           action,
		Side:             domain.SideUp,
		Phase:            domain.PhaseEarly,
		Strength:         domain.StrengthGood,
		Edge:             &edge,
		ModelUp:          &modelUp,
		MarketUp:         &marketUp,
	}
}

func makeWindowResult(open time.Time, outcome domain.WindowOutcome) domain.WindowResult {
	openPrice := 50000.0
	closePrice := 50100.0
	settled := domain.SideUp
	return domain.WindowResult{
		Asset:       "btc",
		WindowOpen:  open,
		WindowClose: open.Add(15 * time.Minute),
		OpenPrice:   &openPrice,
		ClosePrice:  &closePrice,
		SettledSide: &settled,
		Entered:     true,
		Side:        domain.SideUp,
		EntryPrice:  0.55,
		Size:        10,
		PnL:         8.18,
		Outcome:     outcome,
	}
}

func TestSQLiteStorage_CycleUpsertKeepsSingleRow(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	at := testWindowOpen.Add(3 * time.Minute)

	require.NoError(t, db.SaveCycle(ctx, makeCycleRecord(at, domain.ActionEnter)))

	// A replayed cycle reconciles instead of duplicating.
	replay := makeCycleRecord(at, domain.ActionNoTrade)
	replay.Reason = "side_already_entered"
	require.NoError(t, db.SaveCycle(ctx, replay))

	recs, err := db.CycleRecords(ctx, "btc", testWindowOpen, testWindowOpen.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, domain.ActionNoTrade, rec.Action)
	assert.Equal(t, "side_already_entered", rec.Reason)
	assert.Equal(t, at, rec.At)
	assert.Equal(t, testWindowOpen, rec.WindowOpen)
	require.NotNil(t, rec.SpotPrice)
	assert.Equal(t, 50012.5, *rec.SpotPrice)
	assert.Nil(t, rec.OraclePrice) // was never observed
	require.NotNil(t, rec.Edge)
	assert.Equal(t, 0.07, *rec.Edge)
	assert.Equal(t, domain.RegimeTrendUp, rec.Regime)
	assert.Equal(t, domain.PhaseEarly, rec.Phase)
}

func TestSQLiteStorage_WindowResultRoundTrip(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	second := testWindowOpen.Add(15 * time.Minute)

	// Saved newest first; read back oldest first.
	require.NoError(t, db.SaveWindowResult(ctx, makeWindowResult(second, domain.OutcomeLoss)))
	require.NoError(t, db.SaveWindowResult(ctx, makeWindowResult(testWindowOpen, domain.OutcomeWin)))

	results, err := db.WindowResults(ctx, "btc", testWindowOpen, testWindowOpen.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, testWindowOpen, first.WindowOpen)
	assert.Equal(t, domain.OutcomeWin, first.Outcome)
	require.NotNil(t, first.SettledSide)
	assert.Equal(t, domain.SideUp, *first.SettledSide)
	assert.Equal(t, 50000.0, *first.OpenPrice)
	assert.Equal(t, 50100.0, *first.ClosePrice)
	assert.True(t, first.Entered)
	assert.Equal(t, 0.55, first.EntryPrice)
	assert.InDelta(t, 8.18, first.PnL, 1e-9)

	assert.Equal(t, second, results[1].WindowOpen)
	assert.Equal(t, domain.OutcomeLoss, results[1].Outcome)
}

func TestSQLiteStorage_WindowResultUpsert(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	skip := domain.WindowResult{
		Asset:       "btc",
		WindowOpen:  testWindowOpen,
		WindowClose: testWindowOpen.Add(15 * time.Minute),
		Outcome:     domain.OutcomeSkip,
	}
	require.NoError(t, db.SaveWindowResult(ctx, skip))
	require.NoError(t, db.SaveWindowResult(ctx, makeWindowResult(testWindowOpen, domain.OutcomeWin)))

	results, err := db.WindowResults(ctx, "btc", testWindowOpen, testWindowOpen)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeWin, results[0].Outcome)
	assert.True(t, results[0].Entered)
}

func TestSQLiteStorage_WindowResults_FiltersAssetAndRange(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.SaveWindowResult(ctx, makeWindowResult(testWindowOpen, domain.OutcomeWin)))

	eth := makeWindowResult(testWindowOpen, domain.OutcomeLoss)
	eth.Asset = "eth"
	require.NoError(t, db.SaveWindowResult(ctx, eth))

	results, err := db.WindowResults(ctx, "btc", testWindowOpen, testWindowOpen)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "btc", results[0].Asset)

	// Outside the range.
	results, err = db.WindowResults(ctx, "btc", testWindowOpen.Add(time.Minute), testWindowOpen.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteStorage_SnapshotsAndEvents(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	at := testWindowOpen.Add(3 * time.Minute)

	ticks := []domain.PriceTick{
		domain.NewTick(50012.5, at, domain.SourceExchangeWS),
		domain.NewTick(50010.0, at.Add(-2*time.Second), domain.SourceOracleWS),
		{Source: domain.SourceOperatorWS}, // outage: no price yet
	}
	require.NoError(t, db.SavePriceSnapshot(ctx, "btc", at, ticks))
	// Same cycle replayed upserts cleanly.
	require.NoError(t, db.SavePriceSnapshot(ctx, "btc", at, ticks))

	require.NoError(t, db.SaveHeartbeatEvent(ctx, "btc", domain.HeartbeatEvent{
		At:         at,
		Kind:       domain.HeartbeatReconnect,
		Detail:     "reconnect in 5s",
		Failures:   3,
		Attempt:    1,
		OpenOrders: 1,
	}))
}

func TestSQLiteStorage_EmptySnapshotIsNoop(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.SavePriceSnapshot(context.Background(), "btc", testWindowOpen, nil))
}
