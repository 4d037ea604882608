package binance

// klines.go — 1-minute candle source over the exchange REST API. The trade
// WebSocket carries the live price; klines carry the indicator history with
// real volume, which the trade stream alone cannot reconstruct after a
// restart.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

const (
	defaultRESTBase = "https://api.binance.com"

	// Weight budget is 6000/min and a klines call costs 2; 5/s keeps us far
	// under it even sharing the IP with other consumers.
	klinesRatePerSec = 5

	maxKlinesLimit = 1000

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client fetches candles with rate limiting and retries. It implements
// ports.CandleProvider.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient builds a candle client. An empty base selects the production API.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultRESTBase
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    strings.TrimRight(base, "/"),
		limiter: rate.NewLimiter(klinesRatePerSec, 2),
	}
}

// RecentCandles returns the most recent 1-minute candles for symbol, oldest
// first. The last candle is the still-forming minute.
func (c *Client) RecentCandles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > maxKlinesLimit {
		return nil, fmt.Errorf("binance.RecentCandles: limit %d out of range", limit)
	}
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1m&limit=%d",
		c.base, strings.ToUpper(symbol), limit)

	// Rows are JSON arrays mixing numbers and quoted decimals:
	// [openTime, "open", "high", "low", "close", "volume", ...]
	var rows [][]json.RawMessage
	if err := c.get(ctx, url, &rows); err != nil {
		return nil, fmt.Errorf("binance.RecentCandles: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("binance.RecentCandles: short kline row (%d fields)", len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("binance.RecentCandles: open time: %w", err)
		}
		vals := make([]float64, 5)
		for i := 1; i <= 5; i++ {
			v, err := quotedFloat(row[i])
			if err != nil {
				return nil, fmt.Errorf("binance.RecentCandles: field %d: %w", i, err)
			}
			vals[i-1] = v
		}
		candles = append(candles, domain.Candle{
			OpenAt: time.UnixMilli(openMs).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return candles, nil
}

func quotedFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// get runs a GET with rate limiting and capped exponential backoff.
func (c *Client) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("binance: retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
