package stream

// rtds.go — market-operator real-time data socket. One subscribe action after
// connect; the server expects a literal "ping" text frame as keep-alive.

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

const (
	rtdsDefaultURL   = "wss://ws-live-data.polymarket.com"
	rtdsPingInterval = 5 * time.Second

	rtdsPriceTopic = "crypto_prices"
	rtdsUpdateType = "update"
)

type rtdsSubscription struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"`
}

type rtdsSubscribe struct {
	Action        string             `json:"action"`
	Subscriptions []rtdsSubscription `json:"subscriptions"`
}

type rtdsEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type rtdsPrice struct {
	Symbol    string  `json:"symbol"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"` // epoch millis
}

// NewOperatorFeed streams the operator's reference price for a symbol
// (e.g. "btcusdt"). url overrides the production endpoint; empty means the
// default.
func NewOperatorFeed(url, symbol string) *Client {
	if url == "" {
		url = rtdsDefaultURL
	}
	sym := strings.ToLower(symbol)
	filters, _ := json.Marshal([]string{sym})
	return New(Options{
		Name:     "operator",
		Source:   domain.SourceOperatorWS,
		Endpoint: func() (string, error) { return url, nil },
		Subscribe: func() any {
			return rtdsSubscribe{
				Action: "subscribe",
				Subscriptions: []rtdsSubscription{{
					Topic:   rtdsPriceTopic,
					Type:    rtdsUpdateType,
					Filters: string(filters),
				}},
			}
		},
		Decode:       decodeRTDSPrice(sym),
		PingInterval: rtdsPingInterval,
		PingPayload:  []byte("ping"),
	})
}

// decodeRTDSPrice unwraps crypto_prices update envelopes. The payload may be
// a single update or a batch; the newest entry for our symbol wins.
func decodeRTDSPrice(symbol string) DecodeFunc {
	return func(msg []byte) (domain.PriceTick, bool) {
		var env rtdsEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			return domain.PriceTick{}, false
		}
		if env.Topic != rtdsPriceTopic || env.Type != rtdsUpdateType {
			return domain.PriceTick{}, false
		}

		var batch []rtdsPrice
		trimmed := strings.TrimSpace(string(env.Payload))
		if strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal(env.Payload, &batch); err != nil {
				return domain.PriceTick{}, false
			}
		} else {
			var one rtdsPrice
			if err := json.Unmarshal(env.Payload, &one); err != nil {
				return domain.PriceTick{}, false
			}
			batch = []rtdsPrice{one}
		}

		for i := len(batch) - 1; i >= 0; i-- {
			p := batch[i]
			if !strings.EqualFold(p.Symbol, symbol) || p.Value <= 0 {
				continue
			}
			at := time.UnixMilli(p.Timestamp)
			if p.Timestamp <= 0 {
				at = time.Now()
			}
			return domain.NewTick(p.Value, at, domain.SourceOperatorWS), true
		}
		return domain.PriceTick{}, false
	}
}
