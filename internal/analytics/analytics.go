// Package analytics computes performance metrics from closed trade
// outcomes.
//
// It provides:
//   - Win rate, total P&L, average P&L
//   - Maximum drawdown (absolute and percentage)
//   - Sharpe ratio (annualized against a 252 trading-day year)
//   - Profit factor (gross profits / gross losses)
//   - Average hold time, min/max hold minutes
//   - Per-template breakdown
//   - Human-readable formatted report
//
// All functions are stateless and work on slices of trade.Outcome.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/onebar-systems/onebar/internal/trade"
)

// PerformanceReport holds all computed performance metrics.
type PerformanceReport struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percentage (0-100)

	TotalPnLUSD   float64
	AveragePnLUSD float64
	GrossProfitUSD float64
	GrossLossUSD   float64

	MaxDrawdownUSD float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	ProfitFactor   float64

	AverageHoldMinutes float64
	MaxHoldMinutes     int
	MinHoldMinutes     int

	TemplateReports map[string]*TemplateReport
}

// TemplateReport holds per-template performance metrics.
type TemplateReport struct {
	TemplateID         string
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	TotalPnLUSD        float64
	AveragePnLUSD      float64
	AverageHoldMinutes float64
}

// EquityCurvePoint represents a point on the equity curve.
type EquityCurvePoint struct {
	Date     time.Time
	Equity   float64
	Drawdown float64
}

// Analyze computes the full performance report from a slice of closed
// trade outcomes. startEquityUSD is the starting account equity.
// Returns an empty report (not nil) if no trades are provided.
func Analyze(outcomes []trade.Outcome, startEquityUSD float64) *PerformanceReport {
	report := &PerformanceReport{
		TemplateReports: make(map[string]*TemplateReport),
	}

	if len(outcomes) == 0 {
		return report
	}

	sorted := make([]trade.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	var totalHoldMinutes float64
	var pnls []float64
	report.MinHoldMinutes = math.MaxInt32

	for _, t := range sorted {
		pnl := toFloat(t.ActualPnL)
		pnls = append(pnls, pnl)
		report.TotalTrades++
		report.TotalPnLUSD += pnl

		if pnl > 0 {
			report.WinningTrades++
			report.GrossProfitUSD += pnl
		} else if pnl < 0 {
			report.LosingTrades++
			report.GrossLossUSD += math.Abs(pnl)
		}

		holdMinutes := holdMinutesForTrade(t)
		totalHoldMinutes += float64(holdMinutes)
		if holdMinutes > report.MaxHoldMinutes {
			report.MaxHoldMinutes = holdMinutes
		}
		if holdMinutes < report.MinHoldMinutes {
			report.MinHoldMinutes = holdMinutes
		}

		tr, ok := report.TemplateReports[t.TemplateID]
		if !ok {
			tr = &TemplateReport{TemplateID: t.TemplateID}
			report.TemplateReports[t.TemplateID] = tr
		}
		tr.TotalTrades++
		tr.TotalPnLUSD += pnl
		tr.AverageHoldMinutes += float64(holdMinutes)
		if pnl > 0 {
			tr.WinningTrades++
		} else if pnl < 0 {
			tr.LosingTrades++
		}
	}

	if report.TotalTrades == 0 {
		report.MinHoldMinutes = 0
		return report
	}

	report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades) * 100
	report.AveragePnLUSD = report.TotalPnLUSD / float64(report.TotalTrades)
	report.AverageHoldMinutes = totalHoldMinutes / float64(report.TotalTrades)

	if report.GrossLossUSD > 0 {
		report.ProfitFactor = report.GrossProfitUSD / report.GrossLossUSD
	} else if report.GrossProfitUSD > 0 {
		report.ProfitFactor = math.Inf(1)
	}

	equity := startEquityUSD
	peak := equity
	for _, pnl := range pnls {
		equity += pnl
		if equity > peak {
			peak = equity
		}
		dd := peak - equity
		if dd > report.MaxDrawdownUSD {
			report.MaxDrawdownUSD = dd
			if peak > 0 {
				report.MaxDrawdownPct = (dd / peak) * 100
			}
		}
	}

	report.SharpeRatio = computeSharpeRatio(pnls)

	for _, tr := range report.TemplateReports {
		if tr.TotalTrades > 0 {
			tr.WinRate = float64(tr.WinningTrades) / float64(tr.TotalTrades) * 100
			tr.AveragePnLUSD = tr.TotalPnLUSD / float64(tr.TotalTrades)
			tr.AverageHoldMinutes = tr.AverageHoldMinutes / float64(tr.TotalTrades)
		}
	}

	return report
}

// EquityCurve generates the equity curve from outcomes sorted by exit time.
func EquityCurve(outcomes []trade.Outcome, startEquityUSD float64) []EquityCurvePoint {
	if len(outcomes) == 0 {
		return nil
	}

	sorted := make([]trade.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	equity := startEquityUSD
	peak := equity
	points := make([]EquityCurvePoint, 0, len(sorted)+1)

	points = append(points, EquityCurvePoint{Date: sorted[0].EntryTime, Equity: equity})

	for _, t := range sorted {
		equity += toFloat(t.ActualPnL)
		if equity > peak {
			peak = equity
		}
		dd := peak - equity
		points = append(points, EquityCurvePoint{Date: t.ExitTime, Equity: equity, Drawdown: dd})
	}

	return points
}

// FormatReport returns a human-readable text summary of the performance report.
func FormatReport(report *PerformanceReport) string {
	if report == nil || report.TotalTrades == 0 {
		return "No closed trades to analyze."
	}

	var b strings.Builder

	b.WriteString("═══════════════════════════════════════════════════\n")
	b.WriteString("              PERFORMANCE REPORT\n")
	b.WriteString("═══════════════════════════════════════════════════\n\n")

	b.WriteString("── TRADE SUMMARY ──\n")
	fmt.Fprintf(&b, "  Total trades:    %d\n", report.TotalTrades)
	fmt.Fprintf(&b, "  Winning trades:  %d (%.1f%%)\n", report.WinningTrades, report.WinRate)
	fmt.Fprintf(&b, "  Losing trades:   %d\n", report.LosingTrades)
	b.WriteString("\n")

	b.WriteString("── PROFIT & LOSS ──\n")
	fmt.Fprintf(&b, "  Total P&L:       $%.2f\n", report.TotalPnLUSD)
	fmt.Fprintf(&b, "  Average P&L:     $%.2f\n", report.AveragePnLUSD)
	fmt.Fprintf(&b, "  Gross profit:    $%.2f\n", report.GrossProfitUSD)
	fmt.Fprintf(&b, "  Gross loss:      $%.2f\n", report.GrossLossUSD)
	fmt.Fprintf(&b, "  Profit factor:   %.2f\n", report.ProfitFactor)
	b.WriteString("\n")

	b.WriteString("── RISK METRICS ──\n")
	fmt.Fprintf(&b, "  Max drawdown:    $%.2f (%.2f%%)\n", report.MaxDrawdownUSD, report.MaxDrawdownPct)
	fmt.Fprintf(&b, "  Sharpe ratio:    %.2f\n", report.SharpeRatio)
	b.WriteString("\n")

	b.WriteString("── HOLD TIME ──\n")
	fmt.Fprintf(&b, "  Average:         %.1f min\n", report.AverageHoldMinutes)
	fmt.Fprintf(&b, "  Min:             %d min\n", report.MinHoldMinutes)
	fmt.Fprintf(&b, "  Max:             %d min\n", report.MaxHoldMinutes)
	b.WriteString("\n")

	if len(report.TemplateReports) > 1 {
		b.WriteString("── TEMPLATE BREAKDOWN ──\n")
		for _, tr := range report.TemplateReports {
			fmt.Fprintf(&b, "  [%s]\n", tr.TemplateID)
			fmt.Fprintf(&b, "    Trades: %d | Win rate: %.1f%% | P&L: $%.2f | Avg hold: %.1f min\n",
				tr.TotalTrades, tr.WinRate, tr.TotalPnLUSD, tr.AverageHoldMinutes)
		}
		b.WriteString("\n")
	}

	b.WriteString("═══════════════════════════════════════════════════\n")

	return b.String()
}

// ────────────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────────────

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func holdMinutesForTrade(t trade.Outcome) int {
	minutes := int(t.ExitTime.Sub(t.EntryTime).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return minutes
}

// computeSharpeRatio calculates the annualized Sharpe ratio from a
// slice of per-trade P&L values. Assumes zero risk-free rate and 252
// trading days per year.
func computeSharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}

	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		diff := p - mean
		variance += diff * diff
	}
	variance /= float64(len(pnls) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}

	return (mean / stdDev) * math.Sqrt(252)
}
