package stream

// binance.go — exchange spot-trade feed. The stream name rides in the URL
// path, so no subscribe payload is sent after the dial.

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

const binanceWSBase = "wss://stream.binance.com:9443/ws"

type binanceTrade struct {
	Event     string `json:"e"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"` // epoch millis
}

// NewExchangeFeed streams raw spot trades for a symbol (e.g. "BTCUSDT").
// baseURL overrides the production endpoint; empty means the default.
func NewExchangeFeed(baseURL, symbol string) *Client {
	if baseURL == "" {
		baseURL = binanceWSBase
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/" + strings.ToLower(symbol) + "@trade"
	return New(Options{
		Name:     "exchange",
		Source:   domain.SourceExchangeWS,
		Endpoint: func() (string, error) { return endpoint, nil },
		Decode:   decodeBinanceTrade,
	})
}

// decodeBinanceTrade accepts only trade events; anything else on the socket
// (subscription acks, other event kinds) is dropped.
func decodeBinanceTrade(msg []byte) (domain.PriceTick, bool) {
	var t binanceTrade
	if err := json.Unmarshal(msg, &t); err != nil || t.Event != "trade" {
		return domain.PriceTick{}, false
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil || price <= 0 {
		return domain.PriceTick{}, false
	}
	return domain.NewTick(price, time.UnixMilli(t.TradeTime), domain.SourceExchangeWS), true
}
