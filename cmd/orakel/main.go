package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/youming-ai/orakel-sub002/config"
	"github.com/youming-ai/orakel-sub002/internal/adapters/binance"
	"github.com/youming-ai/orakel-sub002/internal/adapters/chainlink"
	"github.com/youming-ai/orakel-sub002/internal/adapters/notify"
	"github.com/youming-ai/orakel-sub002/internal/adapters/polymarket"
	"github.com/youming-ai/orakel-sub002/internal/adapters/storage"
	"github.com/youming-ai/orakel-sub002/internal/adapters/stream"
	"github.com/youming-ai/orakel-sub002/internal/application/engine"
	"github.com/youming-ai/orakel-sub002/internal/application/heartbeat"
	"github.com/youming-ai/orakel-sub002/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	live := flag.Bool("live", false, "place real CLOB orders (default: paper)")
	once := flag.Bool("once", false, "run one decision cycle and exit")
	history := flag.Bool("history", false, "print stored results and exit")
	days := flag.Int("days", 1, "lookback in days for -history")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("orakel starting",
		"asset", cfg.Asset.Name,
		"symbol", cfg.Asset.Symbol,
		"interval", cfg.CycleInterval(),
		"live", *live,
		"once", *once,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*verbose)

	if *history {
		runHistory(store, notifier, cfg.Asset.Name, *days)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var executor ports.OrderExecutor
	if *live {
		executor = setupLive(ctx, cfg)
		if executor == nil {
			slog.Info("live startup aborted")
			return
		}
	}

	market := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	candles := binance.NewClient(cfg.API.ExchangeREST)
	oracleRPC := chainlink.NewQueryClient(cfg.Oracle.RPCEndpoints, 0)

	exchange := stream.NewExchangeFeed(cfg.Feeds.ExchangeWS, cfg.Asset.Symbol)
	exchange.Start(ctx)
	defer exchange.Close()

	operator := stream.NewOperatorFeed(cfg.Feeds.OperatorWS, cfg.Asset.Symbol)
	operator.Start(ctx)
	defer operator.Close()

	var oracle ports.PriceFeed = stream.NewMissing()
	if cfg.Oracle.Aggregator != "" {
		feed := chainlink.NewLogFeed(cfg.Feeds.OracleWS, cfg.Oracle.Aggregator, cfg.Oracle.Decimals)
		feed.Start(ctx)
		defer feed.Close()
		oracle = feed
	} else {
		slog.Warn("oracle aggregator not configured; oracle feed disabled")
	}

	var decimals *uint8
	if cfg.Oracle.Decimals > 0 {
		d := cfg.Oracle.Decimals
		decimals = &d
	}

	eng := engine.New(
		engine.Config{
			Asset:          cfg.Asset.Name,
			Symbol:         cfg.Asset.Symbol,
			Aggregator:     cfg.Oracle.Aggregator,
			OracleDecimals: decimals,
			OrderSize:      cfg.Strategy.OrderSizeUSDC,
			CycleInterval:  cfg.CycleInterval(),
			CandleLookback: cfg.Strategy.CandleLookback,
			Live:           *live,
			Once:           *once,
		},
		engine.Feeds{Exchange: exchange, Oracle: oracle, Operator: operator},
		oracleRPC,
		candles,
		market,
		market,
		executor,
		heartbeat.New(executor),
		store,
		notifier,
	)

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("orakel stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
