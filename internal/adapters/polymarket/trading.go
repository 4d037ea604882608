package polymarket

// trading.go — order execution and liveness heartbeat via the CLOB API.
//
// Implements ports.OrderExecutor using AuthClient for L1/L2 auth. Orders
// are BUY limit bids only: direction is expressed by choosing the Up or
// Down token, so selling the opposite token is never needed.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// USDC.e on Polygon, the CLOB collateral token.
const usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth *AuthClient
	rpc  *ethclient.Client
}

// NewTradingClient creates a TradingClient. rpcURL is a Polygon endpoint
// used for the on-chain balance check.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{auth: auth, rpc: rpc}, nil
}

// PostHeartbeat sends the order-liveness signal. The CLOB cancels resting
// GTD orders when beats stop arriving, so errors here are returned as-is
// for the governor's failure ladder to count.
func (tc *TradingClient) PostHeartbeat(ctx context.Context, sessionID string) (string, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return "", fmt.Errorf("heartbeat: creds: %w", err)
	}

	body := heartbeatRequest{SessionID: sessionID}
	var resp heartbeatResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/heartbeat", body, &resp); err != nil {
		return "", fmt.Errorf("heartbeat: %w", err)
	}

	next := resp.SessionID
	if next == "" {
		// Server omitted the id; keep carrying the previous one.
		next = sessionID
	}
	return next, nil
}

// PlaceOrder signs and submits a BUY limit order to the CLOB.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: creds: %w", err)
	}

	var expiresAt int64
	switch req.Kind {
	case domain.OrderKindGTD:
		if req.ExpiresAt.IsZero() {
			return domain.PlacedOrder{}, fmt.Errorf("place order: GTD without expiration")
		}
		expiresAt = req.ExpiresAt.Unix()
	case domain.OrderKindFAK:
		expiresAt = 0
	default:
		return domain.PlacedOrder{}, fmt.Errorf("place order: unknown kind %q", req.Kind)
	}

	signed, err := tc.auth.buildSignedOrder(req.TokenID, req.Price, req.Size, expiresAt, req.NegRisk)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: sign: %w", err)
	}

	creds, err := tc.auth.credentials()
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     creds.APIKey,
		OrderType: string(req.Kind),
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		CLOBOrderID: resp.OrderID,
		Status:      resp.Status,
		TakenAmount: parseMicroUSDC(resp.TakingAmount),
		MadeAmount:  parseMicroUSDC(resp.MakingAmount),
	}, nil
}

// CancelOrder cancels a single order by its CLOB order ID.
func (tc *TradingClient) CancelOrder(ctx context.Context, clobOrderID string) error {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("cancel order: creds: %w", err)
	}

	path := "/order/" + clobOrderID
	if err := tc.auth.doL2(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", clobOrderID, err)
	}
	return nil
}

// CancelAll cancels all open orders for this wallet.
func (tc *TradingClient) CancelAll(ctx context.Context) error {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("cancel all: creds: %w", err)
	}

	if err := tc.auth.doL2(ctx, http.MethodDelete, "/orders", nil, nil); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	return nil
}

// GetOpenOrders returns the currently resting orders from the CLOB.
func (tc *TradingClient) GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("get orders: creds: %w", err)
	}

	var resp clobOrdersResponse
	if err := tc.auth.doL2(ctx, http.MethodGet, "/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	orders := make([]domain.OpenOrder, 0, len(resp.Data))
	for _, o := range resp.Data {
		orders = append(orders, mapOpenOrder(o))
	}
	return orders, nil
}

// GetBalance returns the on-chain USDC.e balance of the wallet.
func (tc *TradingClient) GetBalance(ctx context.Context) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("get balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("get balance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("get balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return bal, nil
}
