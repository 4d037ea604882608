package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// Console implements ports.Notifier on a single writer: one compact line per
// decision cycle, one per settlement, a boxed report at session end.
type Console struct {
	out     io.Writer
	verbose bool
}

// NewConsole returns a notifier printing to stdout.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter returns a notifier printing to w. Used by tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// CycleVerdict prints the per-cycle decision line.
func (c *Console) CycleVerdict(_ context.Context, rec domain.CycleRecord) error {
	remaining := rec.WindowOpen.Add(domain.WindowLength).Sub(rec.At).Minutes()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %4.1fm left | spot %s | oracle %s (%s)",
		rec.At.Format("15:04:05"), rec.Asset, remaining,
		fmtPrice(rec.SpotPrice), fmtPrice(rec.OraclePrice), sourceLabel(rec.OracleSource))
	fmt.Fprintf(&sb, " | %s %.2f", rec.Regime, rec.RegimeConfidence)

	if rec.Action == domain.ActionEnter {
		fmt.Fprintf(&sb, " | ENTER %s %s edge %s model %s mkt %s [%s]",
			rec.Side, rec.Phase, fmtSigned(rec.Edge),
			fmtProb(rec.ModelUp), fmtProb(rec.MarketUp), rec.Strength)
	} else {
		fmt.Fprintf(&sb, " | NO_TRADE (%s)", rec.Reason)
	}

	if c.verbose && rec.RegimeReason != "" {
		fmt.Fprintf(&sb, " [%s]", rec.RegimeReason)
	}

	fmt.Fprintln(c.out, sb.String())
	return nil
}

// WindowSettled prints the settlement line plus the running session record.
func (c *Console) WindowSettled(_ context.Context, res domain.WindowResult, stats domain.SessionStats) error {
	w := domain.Window{Asset: res.Asset, OpenAt: res.WindowOpen, CloseAt: res.WindowClose}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] settled %s %s → %s %s",
		res.WindowClose.Format("15:04:05"), w.Slug(),
		fmtPrice(res.OpenPrice), fmtPrice(res.ClosePrice), fmtSide(res.SettledSide))

	if res.Entered {
		fmt.Fprintf(&sb, " | %s %s $%.2f @ %.2f pnl %+.2f",
			res.Outcome, res.Side, res.Size, res.EntryPrice, res.PnL)
	} else {
		sb.WriteString(" | SKIP")
	}

	fmt.Fprintf(&sb, " | session %dW-%dL-%dS pnl %+.2f",
		stats.Wins, stats.Losses, stats.Skips, stats.TotalPnL)

	fmt.Fprintln(c.out, sb.String())
	return nil
}

// Alert prints an operator-attention line.
func (c *Console) Alert(_ context.Context, subject, detail string) error {
	fmt.Fprintf(c.out, "!! ALERT %s: %s\n", subject, detail)
	return nil
}

// SessionSummary prints the end-of-run report.
func (c *Console) SessionSummary(_ context.Context, stats domain.SessionStats) error {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║               SESSION SUMMARY                ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════╝\n\n")

	uptime := time.Since(stats.StartedAt).Truncate(time.Second)
	fmt.Fprintf(c.out, "  Started:    %s (up %s)\n",
		stats.StartedAt.Format("2006-01-02 15:04:05 MST"), uptime)
	fmt.Fprintf(c.out, "  Cycles:     %d\n", stats.CyclesRun)
	fmt.Fprintf(c.out, "  Windows:    %d (%d entered, %d skipped)\n",
		stats.Windows, stats.Entered, stats.Skips)
	fmt.Fprintf(c.out, "  Record:     %dW-%dL (win rate %.0f%%)\n",
		stats.Wins, stats.Losses, stats.WinRate()*100)
	fmt.Fprintf(c.out, "  Total P&L:  %+.2f USDC\n", stats.TotalPnL)
	fmt.Fprintf(c.out, "  Heartbeats: %d sent, %d failed\n",
		stats.HeartbeatsSent, stats.HeartbeatFails)
	fmt.Fprintln(c.out)
	return nil
}

// PrintHistory renders stored window results, oldest first. Not part of
// ports.Notifier; the history command calls it on the concrete type.
func (c *Console) PrintHistory(results []domain.WindowResult) {
	if len(results) == 0 {
		fmt.Fprintln(c.out, "\n  No window results stored for that range.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Window", "Open", "Close", "Settled", "Side", "Entry", "Size$", "PnL$", "Outcome")

	var stats domain.SessionStats
	for _, res := range results {
		stats.RecordWindow(res)

		side, entry, size, pnl := "-", "-", "-", "-"
		if res.Entered {
			side = string(res.Side)
			entry = fmt.Sprintf("%.2f", res.EntryPrice)
			size = fmt.Sprintf("%.2f", res.Size)
			pnl = fmt.Sprintf("%+.2f", res.PnL)
		}

		table.Append(
			res.WindowOpen.Format("01-02 15:04"),
			fmtPrice(res.OpenPrice),
			fmtPrice(res.ClosePrice),
			fmtSide(res.SettledSide),
			side, entry, size, pnl,
			string(res.Outcome),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "\n  %d windows: %dW-%dL-%dS | win rate %.0f%% | total P&L %+.2f USDC\n\n",
		stats.Windows, stats.Wins, stats.Losses, stats.Skips,
		stats.WinRate()*100, stats.TotalPnL)
}

// --- formatting helpers ---

func fmtPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func fmtProb(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *p)
}

func fmtSigned(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%+.3f", *p)
}

func fmtSide(s *domain.Side) string {
	if s == nil {
		return "-"
	}
	return string(*s)
}

func sourceLabel(src domain.TickSource) string {
	if src == "" {
		return "none"
	}
	return string(src)
}
