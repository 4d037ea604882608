package chainlink

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the scale of the USD aggregators this bot reads. It
// applies until a decimals() call says otherwise.
const DefaultDecimals uint8 = 8

// AnswerUpdatedTopic is the log topic of
// AnswerUpdated(int256 indexed current, uint256 indexed roundId, uint256 updatedAt).
var AnswerUpdatedTopic = crypto.Keccak256Hash([]byte("AnswerUpdated(int256,uint256,uint256)"))

// SignedAnswer interprets a 32-byte topic word as a two's-complement int256.
// Aggregator answers are signed on chain even though prices are positive.
func SignedAnswer(word common.Hash) *big.Int {
	return math.S256(new(big.Int).SetBytes(word.Bytes()))
}

// ScaleAnswer converts a raw aggregator answer to a float price using the
// aggregator's decimals, without intermediate float rounding.
func ScaleAnswer(raw *big.Int, decimals uint8) float64 {
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}
