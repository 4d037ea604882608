package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

const defaultTickSize = 0.01

// mapWindowMarket converts a Gamma slug-lookup entry into the window-market
// descriptor. The Up token comes first unless the outcomes array says
// otherwise.
func mapWindowMarket(gm gammaMarket) (domain.WindowMarket, error) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.WindowMarket{}, fmt.Errorf("parse clobTokenIds: %w", err)
	}
	if len(tokenIDs) < 2 {
		return domain.WindowMarket{}, fmt.Errorf("expected 2 tokens, got %d", len(tokenIDs))
	}

	up, down := tokenIDs[0], tokenIDs[1]
	var outcomes []string
	if gm.Outcomes != "" {
		if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err == nil &&
			len(outcomes) >= 2 && strings.EqualFold(strings.TrimSpace(outcomes[0]), "down") {
			up, down = down, up
		}
	}

	tick := defaultTickSize
	if v, err := gm.TickSize.Float64(); err == nil && v > 0 {
		tick = v
	}

	return domain.WindowMarket{
		Slug:        gm.Slug,
		ConditionID: gm.ConditionID,
		UpTokenID:   up,
		DownTokenID: down,
		NegRisk:     gm.NegRisk,
		TickSize:    tick,
	}, nil
}

// mapOrderBooks converts the /books batch response to tokenID → OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries converts raw levels and sorts them: ascending for asks,
// descending for bids, so index 0 is always the best level.
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// mapOpenOrder converts a resting CLOB order. Open-order sizes are share
// counts in plain decimal, unlike the micro-unit amounts on placements.
func mapOpenOrder(o clobOpenOrder) domain.OpenOrder {
	price, _ := strconv.ParseFloat(o.Price, 64)
	size, _ := strconv.ParseFloat(o.OriginalSize, 64)
	matched, _ := strconv.ParseFloat(o.SizeMatched, 64)
	return domain.OpenOrder{
		CLOBOrderID:  o.ID,
		TokenID:      o.AssetID,
		Price:        price,
		OriginalSize: size,
		SizeMatched:  matched,
	}
}

// parseMicroUSDC converts a micro-USDC amount string (e.g. "1000000") to
// USDC.
func parseMicroUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v / 1_000_000
}

// parseEndDate tries the date layouts Gamma is known to emit.
func parseEndDate(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
