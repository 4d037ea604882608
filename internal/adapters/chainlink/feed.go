package chainlink

// feed.go — AnswerUpdated log subscription over an Ethereum WSS endpoint.
// This is the push-side twin of the polling QueryClient: same event, delivered
// by eth_subscribe instead of eth_call.

import (
	"bytes"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/youming-ai/orakel-sub002/internal/adapters/stream"
	"github.com/youming-ai/orakel-sub002/internal/domain"
)

type logNotification struct {
	Method string `json:"method"`
	Params struct {
		Result types.Log `json:"result"`
	} `json:"params"`
}

const defaultWSEndpoint = "wss://polygon-bor-rpc.publicnode.com"

// NewLogFeed returns a stream client following the aggregator's AnswerUpdated
// events. wsURL overrides the production endpoint, empty means the default;
// decimals scales raw answers, 0 selects the 8-decimal USD default.
func NewLogFeed(wsURL, aggregator string, decimals uint8) *stream.Client {
	if wsURL == "" {
		wsURL = defaultWSEndpoint
	}
	if decimals == 0 {
		decimals = DefaultDecimals
	}
	addr := common.HexToAddress(aggregator)
	return stream.New(stream.Options{
		Name:     "oracle",
		Source:   domain.SourceOracleWS,
		Endpoint: func() (string, error) { return wsURL, nil },
		Subscribe: func() any {
			return map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"method":  "eth_subscribe",
				"params": []any{"logs", map[string]any{
					"address": addr.Hex(),
					"topics":  []string{AnswerUpdatedTopic.Hex()},
				}},
			}
		},
		// Drops the subscription ack and any other non-notification reply
		// before the full JSON parse.
		Filter: func(msg []byte) bool {
			return bytes.Contains(msg, []byte(`"eth_subscription"`))
		},
		Decode: decodeAnswerUpdated(decimals),
	})
}

// decodeAnswerUpdated pulls the signed answer from topics[1] and the round's
// updatedAt (seconds) from the data word.
func decodeAnswerUpdated(decimals uint8) stream.DecodeFunc {
	return func(msg []byte) (domain.PriceTick, bool) {
		var note logNotification
		if err := json.Unmarshal(msg, &note); err != nil || note.Method != "eth_subscription" {
			return domain.PriceTick{}, false
		}
		lg := note.Params.Result
		if len(lg.Topics) < 2 || lg.Topics[0] != AnswerUpdatedTopic {
			return domain.PriceTick{}, false
		}
		price := ScaleAnswer(SignedAnswer(lg.Topics[1]), decimals)

		at := time.Now()
		if len(lg.Data) >= 32 {
			if sec := new(big.Int).SetBytes(lg.Data[:32]); sec.IsInt64() && sec.Int64() > 0 {
				at = time.Unix(sec.Int64(), 0)
			}
		}
		return domain.NewTick(price, at, domain.SourceOracleWS), true
	}
}
