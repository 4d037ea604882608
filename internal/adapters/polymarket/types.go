package polymarket

import "encoding/json"

// Raw API DTOs, package-internal. Conversion to domain entities lives in
// mapping.go.

// --- CLOB API ---

// orderBookRequest is one element of the POST /books batch body.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse is one book in the POST /books batch response.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw is a raw price level (strings for precision).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// clobOrderRequest is the JSON body of POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"` // GTD or FAK
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// clobOpenOrder is one resting order from GET /orders.
type clobOpenOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

type clobOrdersResponse struct {
	Data       []clobOpenOrder `json:"data"`
	NextCursor string          `json:"next_cursor"`
}

// heartbeatRequest carries the previous session id; empty on the first beat.
type heartbeatRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// heartbeatResponse returns the next opaque session id to carry forward.
type heartbeatResponse struct {
	SessionID string `json:"session_id"`
}

// --- Gamma API ---

// gammaMarket is the slug-lookup response entry. Gamma encodes the token and
// outcome arrays as JSON strings inside the JSON document.
type gammaMarket struct {
	ConditionID  string      `json:"conditionId"`
	Slug         string      `json:"slug"`
	Question     string      `json:"question"`
	Outcomes     string      `json:"outcomes"`     // e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs string      `json:"clobTokenIds"` // e.g. "[\"123\",\"456\"]"
	NegRisk      bool        `json:"negRisk"`
	TickSize     json.Number `json:"orderPriceMinTickSize"`
	EndDateISO   string      `json:"endDateIso"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`
}

type gammaMarketsResponse []gammaMarket
