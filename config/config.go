package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the trader.
type Config struct {
	Asset    AssetConfig    `yaml:"asset"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Strategy StrategyConfig `yaml:"strategy"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// AssetConfig names the market being traded.
type AssetConfig struct {
	Name   string `yaml:"name"`   // lowercase ticker used in market slugs, e.g. "btc"
	Symbol string `yaml:"symbol"` // exchange pair, e.g. "BTCUSDT"
}

// FeedsConfig holds the websocket endpoints. Empty values select each
// adapter's production default; oracle_ws must be an EVM node that supports
// eth_subscribe.
type FeedsConfig struct {
	ExchangeWS string `yaml:"exchange_ws"`
	OperatorWS string `yaml:"operator_ws"`
	OracleWS   string `yaml:"oracle_ws"`
}

// OracleConfig points at the on-chain price aggregator.
type OracleConfig struct {
	Aggregator   string   `yaml:"aggregator"` // AnswerUpdated emitter, hex address; empty disables oracle reads
	Decimals     uint8    `yaml:"decimals"`   // 0 = resolve on chain once and cache
	RPCEndpoints []string `yaml:"rpc_endpoints"`
}

// StrategyConfig controls sizing and cadence.
type StrategyConfig struct {
	OrderSizeUSDC        float64 `yaml:"order_size_usdc"`
	CycleIntervalSeconds int     `yaml:"cycle_interval_seconds"`
	CandleLookback       int     `yaml:"candle_lookback"`
}

// APIConfig contains the REST base URLs.
type APIConfig struct {
	CLOBBase     string `yaml:"clob_base"`
	GammaBase    string `yaml:"gamma_base"`
	ExchangeREST string `yaml:"exchange_rest"`
}

// StorageConfig controls where session data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the configuration used when no file is given: BTC on the
// production endpoints, paper-sized orders.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path and the .env file if one exists.
// Environment variables override YAML values for the keys that map.
func Load(path string) (*Config, error) {
	// Silently skip a missing .env.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CycleInterval returns the decision cadence as a time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Strategy.CycleIntervalSeconds) * time.Second
}

// PrivateKey returns the signing key for live trading. It is only ever read
// from the environment so it cannot end up in a committed YAML file.
func (c *Config) PrivateKey() string {
	return os.Getenv("POLY_PRIVATE_KEY")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	// A private node goes first; the built-in public endpoints stay as fallback.
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.Oracle.RPCEndpoints = append([]string{v}, cfg.Oracle.RPCEndpoints...)
	}
}

func setDefaults(cfg *Config) {
	if cfg.Asset.Name == "" {
		cfg.Asset.Name = "btc"
	}
	if cfg.Asset.Symbol == "" {
		cfg.Asset.Symbol = "BTCUSDT"
	}
	if cfg.Oracle.Aggregator == "" && cfg.Asset.Name == "btc" {
		// Chainlink BTC/USD on Polygon.
		cfg.Oracle.Aggregator = "0xc907E116054Ad103354f2D350FD2514433D57F6f"
	}
	if cfg.Strategy.OrderSizeUSDC <= 0 {
		cfg.Strategy.OrderSizeUSDC = 10
	}
	if cfg.Strategy.CycleIntervalSeconds <= 0 {
		cfg.Strategy.CycleIntervalSeconds = 5
	}
	if cfg.Strategy.CandleLookback <= 0 {
		cfg.Strategy.CandleLookback = 60
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.ExchangeREST == "" {
		cfg.API.ExchangeREST = "https://api.binance.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "orakel.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
