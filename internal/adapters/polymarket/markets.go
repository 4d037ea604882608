package polymarket

// markets.go — market discovery and book reads.
//
// ResolveWindowMarket maps a 15-minute window to its CLOB market via the
// Gamma slug convention. FetchOrderBooks reads the batch /books endpoint;
// batches run concurrently and the token-bucket limiter paces them without
// an explicit semaphore.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	booksPath        = "/books"
	booksBatchSize   = 20 // max token_ids per /books request
)

// ResolveWindowMarket looks up the market for a window by slug and returns
// its condition id, UP/DOWN token ids, and tick size.
func (c *Client) ResolveWindowMarket(ctx context.Context, w domain.Window) (domain.WindowMarket, error) {
	slug := w.Slug()
	url := fmt.Sprintf("%s%s?slug=%s&limit=1", c.gammaBase, gammaMarketsPath, slug)

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
		return domain.WindowMarket{}, fmt.Errorf("gamma.ResolveWindowMarket: %w", err)
	}
	if len(resp) == 0 {
		return domain.WindowMarket{}, fmt.Errorf("gamma.ResolveWindowMarket: no market for slug %s", slug)
	}

	wm, err := mapWindowMarket(resp[0])
	if err != nil {
		return domain.WindowMarket{}, fmt.Errorf("gamma.ResolveWindowMarket: %s: %w", slug, err)
	}

	if end := parseEndDate(resp[0].EndDateISO); !end.IsZero() && !end.Equal(w.CloseAt) {
		slog.Debug("gamma: market end date differs from window close",
			"slug", slug, "end", end, "close", w.CloseAt)
	}

	slog.Debug("window market resolved",
		"slug", slug, "condition", wm.ConditionID, "tick", wm.TickSize)
	return wm, nil
}

// FetchOrderBooks returns the order books for the given token ids, batching
// the /books endpoint and running batches concurrently.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, booksBatchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := c.fetchBooksBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var firstErr error

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchOrderBooks batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// splitBatches chunks tokenIDs into slices of at most size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = booksBatchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := i + size
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch POSTs one /books batch.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	url := c.clobBase + booksPath
	if err := c.post(ctx, c.booksLimiter, url, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}
