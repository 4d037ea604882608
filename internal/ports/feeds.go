package ports

import "github.com/youming-ai/orakel-sub002/internal/domain"

// PriceFeed is the read side of one resilient stream client. Last never
// blocks and returns the most recent decoded tick; staleness policy is the
// caller's via the tick's UpdatedAt.
type PriceFeed interface {
	Last() domain.PriceTick
	Stats() domain.FeedStats

	// Close is terminal: tears down the connection and guarantees no further
	// reconnect attempts.
	Close()
}
