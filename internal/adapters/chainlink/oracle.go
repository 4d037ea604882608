package chainlink

// oracle.go — Chainlink aggregator reads over JSON-RPC with endpoint
// failover. The read path is two eth_calls: decimals() once per aggregator
// (cached), then latestRoundData() on every refresh.
//
// The client never returns an error: total failure degrades to the last
// cached tick, and staleness is the caller's signal.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

const (
	// Hard minimum between on-chain refetches per aggregator. Within this
	// window callers get the cached tick with no network traffic.
	minFetchInterval = 2 * time.Second

	// Per-request deadline. Two requests max per candidate endpoint, so a
	// fully dead endpoint costs at most twice this.
	defaultRequestTimeout = 1500 * time.Millisecond
)

// Public Polygon RPC endpoints tried after any configured ones.
var defaultEndpoints = []string{
	"https://polygon-rpc.com",
	"https://polygon-bor-rpc.publicnode.com",
	"https://rpc.ankr.com/polygon",
}

var aggregatorABI abi.ABI

func init() {
	var err error
	aggregatorABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "decimals",
			"type": "function",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		},
		{
			"name": "latestRoundData",
			"type": "function",
			"inputs": [],
			"outputs": [
				{"name": "roundId", "type": "uint80"},
				{"name": "answer", "type": "int256"},
				{"name": "startedAt", "type": "uint256"},
				{"name": "updatedAt", "type": "uint256"},
				{"name": "answeredInRound", "type": "uint80"}
			]
		}
	]`))
	if err != nil {
		panic("aggregator abi parse: " + err.Error())
	}
}

type cacheEntry struct {
	decimals  *uint8
	last      domain.PriceTick
	fetchedAt time.Time
}

// QueryClient implements ports.OracleReader over a failover list of JSON-RPC
// endpoints. The endpoint that last succeeded is tried first on the next
// fetch.
type QueryClient struct {
	endpoints   []string
	timeout     time.Duration
	minInterval time.Duration

	mu        sync.Mutex
	clients   map[string]*ethclient.Client
	preferred string // sticky endpoint, empty until first success
	cache     map[string]*cacheEntry
}

// NewQueryClient builds a client over the configured candidates plus the
// built-in defaults, order-preserving and deduplicated. timeout bounds each
// RPC request; 0 selects the default.
func NewQueryClient(candidates []string, timeout time.Duration) *QueryClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	seen := make(map[string]struct{})
	var endpoints []string
	for _, e := range append(append([]string{}, candidates...), defaultEndpoints...) {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		endpoints = append(endpoints, e)
	}
	return &QueryClient{
		endpoints:   endpoints,
		timeout:     timeout,
		minInterval: minFetchInterval,
		clients:     make(map[string]*ethclient.Client),
		cache:       make(map[string]*cacheEntry),
	}
}

// FetchPrice returns the aggregator's latest answer as a tick. knownDecimals
// seeds the decimals cache when the config already carries the value. A blank
// aggregator yields a missing_config tick with no I/O.
func (qc *QueryClient) FetchPrice(ctx context.Context, aggregator string, knownDecimals *uint8) domain.PriceTick {
	if strings.TrimSpace(aggregator) == "" {
		return domain.MissingConfigTick()
	}
	key := strings.ToLower(aggregator)

	// One in-flight fetch per client: callers racing the throttle serialize
	// here and the losers get the winner's fresh cache entry.
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.cache[key]
	if !ok {
		entry = &cacheEntry{last: domain.PriceTick{Source: domain.SourceOracleRPC}}
		qc.cache[key] = entry
	}
	if entry.decimals == nil && knownDecimals != nil {
		d := *knownDecimals
		entry.decimals = &d
	}
	if time.Since(entry.fetchedAt) < qc.minInterval {
		return entry.last
	}

	addr := common.HexToAddress(aggregator)
	for _, endpoint := range qc.ordered() {
		tick, err := qc.fetchFrom(ctx, endpoint, addr, entry)
		if err != nil {
			slog.Debug("oracle: endpoint failed", "endpoint", endpoint, "error", err)
			// The cached decimals may have come from this endpoint; a
			// fresh node must re-resolve them.
			entry.decimals = nil
			continue
		}
		entry.last = tick
		entry.fetchedAt = time.Now()
		qc.preferred = endpoint
		return tick
	}

	// Every candidate failed: arm the throttle and serve the stale tick.
	entry.fetchedAt = time.Now()
	slog.Warn("oracle: all endpoints failed, serving cached tick",
		"aggregator", key, "has_price", entry.last.HasPrice())
	return entry.last
}

// Close releases every dialed RPC connection.
func (qc *QueryClient) Close() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	for _, c := range qc.clients {
		c.Close()
	}
	qc.clients = make(map[string]*ethclient.Client)
}

// ordered returns the candidates with the sticky preferred endpoint first.
func (qc *QueryClient) ordered() []string {
	if qc.preferred == "" {
		return qc.endpoints
	}
	out := make([]string, 0, len(qc.endpoints))
	out = append(out, qc.preferred)
	for _, e := range qc.endpoints {
		if e != qc.preferred {
			out = append(out, e)
		}
	}
	return out
}

func (qc *QueryClient) fetchFrom(ctx context.Context, endpoint string, aggregator common.Address, entry *cacheEntry) (domain.PriceTick, error) {
	client, err := qc.clientFor(ctx, endpoint)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("dial: %w", err)
	}

	if entry.decimals == nil {
		dec, err := qc.readDecimals(ctx, client, aggregator)
		if err != nil {
			return domain.PriceTick{}, fmt.Errorf("decimals: %w", err)
		}
		entry.decimals = &dec
	}

	answer, updatedAt, err := qc.readLatestRound(ctx, client, aggregator)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("latestRoundData: %w", err)
	}

	price := ScaleAnswer(answer, *entry.decimals)
	return domain.NewTick(price, time.Unix(updatedAt, 0), domain.SourceOracleRPC), nil
}

// clientFor lazily dials an endpoint and caches the connection for reuse.
func (qc *QueryClient) clientFor(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	if c, ok := qc.clients[endpoint]; ok {
		return c, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, qc.timeout)
	defer cancel()
	c, err := ethclient.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, err
	}
	qc.clients[endpoint] = c
	return c, nil
}

func (qc *QueryClient) readDecimals(ctx context.Context, client *ethclient.Client, aggregator common.Address) (uint8, error) {
	callData, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, qc.timeout)
	defer cancel()
	out, err := client.CallContract(callCtx, ethereum.CallMsg{To: &aggregator, Data: callData}, nil)
	if err != nil {
		return 0, err
	}

	vals, err := aggregatorABI.Unpack("decimals", out)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("empty decimals result")
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", vals[0])
	}
	return dec, nil
}

func (qc *QueryClient) readLatestRound(ctx context.Context, client *ethclient.Client, aggregator common.Address) (*big.Int, int64, error) {
	callData, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return nil, 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, qc.timeout)
	defer cancel()
	out, err := client.CallContract(callCtx, ethereum.CallMsg{To: &aggregator, Data: callData}, nil)
	if err != nil {
		return nil, 0, err
	}

	vals, err := aggregatorABI.Unpack("latestRoundData", out)
	if err != nil {
		return nil, 0, err
	}
	if len(vals) < 5 {
		return nil, 0, fmt.Errorf("short latestRoundData result: %d values", len(vals))
	}
	answer, ok := vals[1].(*big.Int)
	if !ok || answer == nil {
		return nil, 0, fmt.Errorf("unexpected answer type %T", vals[1])
	}
	updated, ok := vals[3].(*big.Int)
	if !ok || updated == nil {
		return nil, 0, fmt.Errorf("unexpected updatedAt type %T", vals[3])
	}
	return answer, updated.Int64(), nil
}
