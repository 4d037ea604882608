package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// --- fixtures ---

const gammaWindowMarket = `[{
	"conditionId": "0xc0ffee",
	"slug": "btc-updown-15m-1714003200",
	"question": "Bitcoin Up or Down - May 1, 12:00AM ET",
	"outcomes": "[\"Up\",\"Down\"]",
	"clobTokenIds": "[\"1111\",\"2222\"]",
	"negRisk": true,
	"orderPriceMinTickSize": 0.001,
	"endDateIso": "2024-05-01T00:15:00Z",
	"active": true,
	"closed": false
}]`

func testWindow() domain.Window {
	open := time.Unix(1714003200, 0).UTC()
	return domain.Window{Asset: "btc", OpenAt: open, CloseAt: open.Add(domain.WindowLength)}
}

// --- ResolveWindowMarket ---

func TestResolveWindowMarket_MapsGammaEntry(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, gammaWindowMarket)
	}))
	defer srv.Close()

	c := NewClient("http://unused", srv.URL)
	wm, err := c.ResolveWindowMarket(context.Background(), testWindow())
	require.NoError(t, err)

	assert.Equal(t, "slug=btc-updown-15m-1714003200&limit=1", gotQuery)
	assert.Equal(t, "0xc0ffee", wm.ConditionID)
	assert.Equal(t, "1111", wm.UpTokenID)
	assert.Equal(t, "2222", wm.DownTokenID)
	assert.True(t, wm.NegRisk)
	assert.InDelta(t, 0.001, wm.TickSize, 1e-12)
}

func TestResolveWindowMarket_DownFirstSwapsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{
			"conditionId": "0xc0ffee",
			"slug": "btc-updown-15m-1714003200",
			"outcomes": "[\"Down\",\"Up\"]",
			"clobTokenIds": "[\"1111\",\"2222\"]"
		}]`)
	}))
	defer srv.Close()

	c := NewClient("http://unused", srv.URL)
	wm, err := c.ResolveWindowMarket(context.Background(), testWindow())
	require.NoError(t, err)

	assert.Equal(t, "2222", wm.UpTokenID)
	assert.Equal(t, "1111", wm.DownTokenID)
	// Tick size missing in the payload falls back to the default.
	assert.InDelta(t, defaultTickSize, wm.TickSize, 1e-12)
}

func TestResolveWindowMarket_NoMarketForSlug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewClient("http://unused", srv.URL)
	_, err := c.ResolveWindowMarket(context.Background(), testWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no market for slug btc-updown-15m-1714003200")
}

func TestResolveWindowMarket_SingleTokenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"conditionId": "0x1", "slug": "s", "clobTokenIds": "[\"1111\"]"}]`)
	}))
	defer srv.Close()

	c := NewClient("http://unused", srv.URL)
	_, err := c.ResolveWindowMarket(context.Background(), testWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 tokens")
}

// --- FetchOrderBooks ---

func TestFetchOrderBooks_SortsAndFiltersLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/books", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		// Bids and asks arrive unsorted, with one zero-size level.
		fmt.Fprint(w, `[{
			"asset_id": "1111",
			"bids": [{"price":"0.52","size":"10"},{"price":"0.55","size":"100"},{"price":"0.54","size":"0"}],
			"asks": [{"price":"0.60","size":"5"},{"price":"0.57","size":"40"}]
		}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "http://unused")
	books, err := c.FetchOrderBooks(context.Background(), []string{"1111"})
	require.NoError(t, err)
	require.Contains(t, books, "1111")

	book := books["1111"]
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 2)
	assert.InDelta(t, 0.55, book.Bids[0].Price, 1e-9) // best bid first
	assert.InDelta(t, 0.57, book.Asks[0].Price, 1e-9) // best ask first
}

func TestFetchOrderBooks_SplitsIntoBatches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body []orderBookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.LessOrEqual(t, len(body), booksBatchSize)

		resp := make([]orderBookResponse, len(body))
		for i, req := range body {
			resp[i] = orderBookResponse{
				AssetID: req.TokenID,
				Bids:    []bookEntryRaw{{Price: "0.5", Size: "1"}},
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	tokenIDs := make([]string, 45)
	for i := range tokenIDs {
		tokenIDs[i] = fmt.Sprintf("tok-%d", i)
	}

	c := NewClient(srv.URL, "http://unused")
	books, err := c.FetchOrderBooks(context.Background(), tokenIDs)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load()) // 20 + 20 + 5
	assert.Len(t, books, 45)
}

func TestFetchOrderBooks_EmptyInputNoCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "http://unused")
	books, err := c.FetchOrderBooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestFetchOrderBooks_BatchErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "http://unused")
	_, err := c.FetchOrderBooks(context.Background(), []string{"1111", "2222"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 400")
}

func TestSplitBatches(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	batches := splitBatches(ids, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Len(t, splitBatches(ids, 10), 1)
}
