package ports

import (
	"context"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// OrderExecutor places, cancels, and keeps alive real orders on the CLOB.
type OrderExecutor interface {
	// PostHeartbeat sends the order-liveness signal, carrying the opaque
	// session id returned by the previous call (empty on the first), and
	// returns the next session id. Transport and protocol failures are
	// returned, never swallowed: the heartbeat governor's retry ladder
	// depends on seeing them.
	PostHeartbeat(ctx context.Context, sessionID string) (string, error)

	// PlaceOrder signs and submits an order. GTD orders carry an expiration
	// and depend on the heartbeat; FAK orders fill immediately or die.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// CancelOrder cancels a specific order by its CLOB order ID.
	CancelOrder(ctx context.Context, clobOrderID string) error

	// CancelAll cancels every resting order for this wallet.
	CancelAll(ctx context.Context) error

	// GetOpenOrders returns the currently resting orders.
	GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error)

	// GetBalance returns the available USDC balance.
	GetBalance(ctx context.Context) (float64, error)
}
