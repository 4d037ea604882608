package ports

import (
	"context"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// OracleReader is the request/response fallback for the on-chain oracle.
type OracleReader interface {
	// FetchPrice returns the aggregator's latest answer, trying candidate
	// endpoints in order. It never returns an error: on total failure it
	// returns the last cached result, and with nothing cached an empty tick.
	// knownDecimals skips the decimals lookup when the caller already has it.
	FetchPrice(ctx context.Context, aggregator string, knownDecimals *uint8) domain.PriceTick
}
