package domain

import "time"

// TickSource identifies which feed produced a price observation.
type TickSource string

const (
	SourceExchangeWS    TickSource = "exchange_ws"
	SourceOracleWS      TickSource = "oracle_ws"
	SourceOracleRPC     TickSource = "oracle_rpc"
	SourceOperatorWS    TickSource = "operator_ws"
	SourceMissingConfig TickSource = "missing_config"
)

// PriceTick is an immutable snapshot of the latest observation from one feed.
// Price and UpdatedAt stay nil until the feed has produced at least one value;
// readers always get a complete copy, never a partially written update.
type PriceTick struct {
	Price     *float64
	UpdatedAt *int64 // epoch millis
	Source    TickSource
}

// NewTick builds a tick with both fields populated.
func NewTick(price float64, at time.Time, source TickSource) PriceTick {
	ms := at.UnixMilli()
	return PriceTick{Price: &price, UpdatedAt: &ms, Source: source}
}

// MissingConfigTick is returned when a feed has no endpoint or address
// configured: an explicit marker instead of attempted I/O.
func MissingConfigTick() PriceTick {
	return PriceTick{Source: SourceMissingConfig}
}

// HasPrice reports whether the tick carries a usable price.
func (t PriceTick) HasPrice() bool {
	return t.Price != nil
}

// Age returns how old the observation is. Ticks without a timestamp are
// treated as infinitely old.
func (t PriceTick) Age(now time.Time) time.Duration {
	if t.UpdatedAt == nil {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(time.UnixMilli(*t.UpdatedAt))
}

// FresherThan reports whether the tick is younger than ttl. Staleness policy
// belongs to the reader; feeds themselves never expire their last value.
func (t PriceTick) FresherThan(now time.Time, ttl time.Duration) bool {
	return t.HasPrice() && t.Age(now) < ttl
}

// FeedStats counts what a stream client saw on the wire. Dropped covers
// malformed and filtered frames, which are discarded without error.
type FeedStats struct {
	Received   uint64
	Dropped    uint64
	Reconnects uint64
}
