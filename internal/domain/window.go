package domain

import (
	"fmt"
	"time"
)

// WindowLength is the fixed market cadence. Phase thresholds and the
// probability blend are tuned against it.
const WindowLength = 15 * time.Minute

// Window is one 15-minute up/down market window for an asset.
type Window struct {
	Asset   string    // lowercase ticker, e.g. "btc"
	OpenAt  time.Time // inclusive, aligned to WindowLength (UTC)
	CloseAt time.Time // exclusive, OpenAt + WindowLength
}

// CurrentWindow returns the window containing now.
func CurrentWindow(asset string, now time.Time) Window {
	open := now.UTC().Truncate(WindowLength)
	return Window{Asset: asset, OpenAt: open, CloseAt: open.Add(WindowLength)}
}

// Next returns the window immediately after w.
func (w Window) Next() Window {
	return Window{Asset: w.Asset, OpenAt: w.CloseAt, CloseAt: w.CloseAt.Add(WindowLength)}
}

// Contains reports whether now falls inside [OpenAt, CloseAt).
func (w Window) Contains(now time.Time) bool {
	now = now.UTC()
	return !now.Before(w.OpenAt) && now.Before(w.CloseAt)
}

// Remaining returns time until close, clamped at zero.
func (w Window) Remaining(now time.Time) time.Duration {
	d := w.CloseAt.Sub(now.UTC())
	if d < 0 {
		return 0
	}
	return d
}

// RemainingMinutes returns the fractional minutes until close.
func (w Window) RemainingMinutes(now time.Time) float64 {
	return w.Remaining(now).Minutes()
}

// Slug derives the deterministic market identifier used for discovery.
func (w Window) Slug() string {
	return fmt.Sprintf("%s-updown-15m-%d", w.Asset, w.OpenAt.Unix())
}

// SettleSide resolves the window outcome from the oracle open and close
// prices. The market rules award ties to UP.
func SettleSide(openPrice, closePrice float64) Side {
	if closePrice >= openPrice {
		return SideUp
	}
	return SideDown
}

// WindowMarket is the exchange-side identity of one window's market.
type WindowMarket struct {
	Slug        string
	ConditionID string
	UpTokenID   string // "Up"/"Yes" outcome token
	DownTokenID string // "Down"/"No" outcome token
	NegRisk     bool
	TickSize    float64 // price increment, e.g. 0.01 or 0.001
}
