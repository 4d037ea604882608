package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/youming-ai/orakel-sub002/config"
	"github.com/youming-ai/orakel-sub002/internal/adapters/polymarket"
	"github.com/youming-ai/orakel-sub002/internal/ports"
)

// setupLive authenticates against the CLOB and verifies funding before any
// order can be placed. It returns nil when the operator aborts during the
// countdown; hard failures exit the process.
func setupLive(ctx context.Context, cfg *config.Config) ports.OrderExecutor {
	slog.Info("=== LIVE TRADING MODE (REAL MONEY) ===",
		"asset", cfg.Asset.Name,
		"order_size", cfg.Strategy.OrderSizeUSDC,
	)

	fmt.Printf("\n⚠️  LIVE TRADING MODE — REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Asset: %s | Order size: $%.2f per window\n",
		cfg.Asset.Name, cfg.Strategy.OrderSizeUSDC)
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	abort := time.NewTimer(5 * time.Second)
	defer abort.Stop()
	select {
	case <-abort.C:
	case <-ctx.Done():
		return nil
	}

	key := cfg.PrivateKey()
	if key == "" {
		slog.Error("live mode requires POLY_PRIVATE_KEY in the environment")
		os.Exit(1)
	}

	auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, key)
	if err != nil {
		slog.Error("failed to create auth client", "err", err)
		os.Exit(1)
	}

	if err := auth.EnsureCreds(ctx); err != nil {
		slog.Error("failed to derive API credentials — check POLY_PRIVATE_KEY", "err", err)
		os.Exit(1)
	}
	slog.Info("live: authenticated with CLOB", "address", auth.Address())

	rpcURL := "https://polygon-rpc.com"
	if len(cfg.Oracle.RPCEndpoints) > 0 {
		rpcURL = cfg.Oracle.RPCEndpoints[0]
	}

	trading, err := polymarket.NewTradingClient(auth, rpcURL)
	if err != nil {
		slog.Error("failed to create trading client", "err", err)
		os.Exit(1)
	}

	balance, err := trading.GetBalance(ctx)
	if err != nil {
		slog.Error("failed to read CLOB balance", "err", err)
		os.Exit(1)
	}
	slog.Info("live: CLOB balance", "usdc", fmt.Sprintf("$%.2f", balance))

	if balance < cfg.Strategy.OrderSizeUSDC*2 {
		slog.Error("insufficient CLOB balance",
			"balance", fmt.Sprintf("$%.2f", balance),
			"required", fmt.Sprintf("$%.2f", cfg.Strategy.OrderSizeUSDC*2))
		os.Exit(1)
	}

	return trading
}
