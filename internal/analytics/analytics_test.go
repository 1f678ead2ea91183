package analytics

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/onebar-systems/onebar/internal/trade"
)

func makeOutcome(id, templateID string, entryPrice, exitPrice float64, qty int, holdMinutes int) trade.Outcome {
	entry := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(time.Duration(holdMinutes) * time.Minute)
	pnl := float64(qty) * (exitPrice - entryPrice)
	return trade.Outcome{
		TradeID:    id,
		TemplateID: templateID,
		EntryTime:  entry,
		ExitTime:   exit,
		EntryPrice: decimal.NewFromFloat(entryPrice),
		ExitPrice:  decimal.NewFromFloat(exitPrice),
		ActualPnL:  decimal.NewFromFloat(pnl),
		Win:        pnl > 0,
	}
}

func TestAnalyze_EmptyTrades(t *testing.T) {
	report := Analyze(nil, 50000)
	if report == nil {
		t.Fatal("expected non-nil report")
	}
	if report.TotalTrades != 0 {
		t.Errorf("expected 0 trades, got %d", report.TotalTrades)
	}
	if report.WinRate != 0 {
		t.Errorf("expected 0 win rate, got %.2f", report.WinRate)
	}
}

func TestAnalyze_AllWins(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5010, 1, 5),
		makeOutcome("2", "K1", 5000, 5020, 1, 3),
		makeOutcome("3", "K1", 5000, 5008, 1, 7),
	}

	report := Analyze(outcomes, 50000)

	if report.TotalTrades != 3 {
		t.Errorf("expected 3 trades, got %d", report.TotalTrades)
	}
	if report.WinningTrades != 3 {
		t.Errorf("expected 3 winning trades, got %d", report.WinningTrades)
	}
	if report.LosingTrades != 0 {
		t.Errorf("expected 0 losing trades, got %d", report.LosingTrades)
	}
	if report.WinRate != 100 {
		t.Errorf("expected 100%% win rate, got %.2f%%", report.WinRate)
	}
	// 10 + 20 + 8 = 38
	if report.TotalPnLUSD != 38 {
		t.Errorf("expected TotalPnLUSD=38, got %.2f", report.TotalPnLUSD)
	}
	if report.MaxDrawdownUSD != 0 {
		t.Errorf("expected 0 drawdown for all wins, got %.2f", report.MaxDrawdownUSD)
	}
}

func TestAnalyze_AllLosses(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 4990, 1, 5),
		makeOutcome("2", "K1", 5000, 4980, 1, 3),
	}

	report := Analyze(outcomes, 50000)

	if report.WinRate != 0 {
		t.Errorf("expected 0%% win rate, got %.2f%%", report.WinRate)
	}
	if report.TotalPnLUSD != -30 {
		t.Errorf("expected TotalPnLUSD=-30, got %.2f", report.TotalPnLUSD)
	}
	if report.MaxDrawdownUSD != 30 {
		t.Errorf("expected MaxDrawdownUSD=30, got %.2f", report.MaxDrawdownUSD)
	}
	if report.ProfitFactor != 0 {
		t.Errorf("expected ProfitFactor=0 (no profits), got %.2f", report.ProfitFactor)
	}
}

func TestAnalyze_MixedTrades(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5020, 1, 5),  // +20
		makeOutcome("2", "K1", 5000, 4990, 1, 3),  // -10
		makeOutcome("3", "K1", 5000, 5015, 1, 7),  // +15
		makeOutcome("4", "K1", 5000, 4985, 1, 2),  // -15
	}

	report := Analyze(outcomes, 50000)

	if report.TotalTrades != 4 {
		t.Errorf("expected 4 trades, got %d", report.TotalTrades)
	}
	if report.WinningTrades != 2 {
		t.Errorf("expected 2 wins, got %d", report.WinningTrades)
	}
	if report.WinRate != 50 {
		t.Errorf("expected 50%% win rate, got %.2f%%", report.WinRate)
	}
	if report.TotalPnLUSD != 10 {
		t.Errorf("expected TotalPnLUSD=10, got %.2f", report.TotalPnLUSD)
	}
	if report.GrossProfitUSD != 35 {
		t.Errorf("expected GrossProfitUSD=35, got %.2f", report.GrossProfitUSD)
	}
	if report.GrossLossUSD != 25 {
		t.Errorf("expected GrossLossUSD=25, got %.2f", report.GrossLossUSD)
	}
	if math.Abs(report.ProfitFactor-1.4) > 0.01 {
		t.Errorf("expected ProfitFactor=1.4, got %.2f", report.ProfitFactor)
	}
}

func TestAnalyze_MaxDrawdown(t *testing.T) {
	// Sequence: +10, -20, -10, +50
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5010, 1, 1),
		makeOutcome("2", "K1", 5000, 4980, 1, 2),
		makeOutcome("3", "K1", 5000, 4990, 1, 3),
		makeOutcome("4", "K1", 5000, 5050, 1, 4),
	}

	report := Analyze(outcomes, 50000)

	if report.MaxDrawdownUSD != 30 {
		t.Errorf("expected MaxDrawdownUSD=30, got %.2f", report.MaxDrawdownUSD)
	}
}

func TestAnalyze_SharpeRatio_ZeroVariance(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5010, 1, 1),
		makeOutcome("2", "K1", 5000, 5010, 1, 2),
		makeOutcome("3", "K1", 5000, 5010, 1, 3),
	}

	report := Analyze(outcomes, 50000)

	if report.SharpeRatio != 0 {
		t.Errorf("expected Sharpe=0 for zero stddev, got %.2f", report.SharpeRatio)
	}
}

func TestAnalyze_SharpeRatio_Varied(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5020, 1, 1),
		makeOutcome("2", "K1", 5000, 4990, 1, 2),
		makeOutcome("3", "K1", 5000, 5030, 1, 3),
		makeOutcome("4", "K1", 5000, 4995, 1, 4),
	}

	report := Analyze(outcomes, 50000)

	if report.SharpeRatio <= 0 {
		t.Errorf("expected positive Sharpe for net positive returns, got %.2f", report.SharpeRatio)
	}
}

func TestAnalyze_TemplateBreakdown(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5010, 1, 5),
		makeOutcome("2", "K1", 5000, 5020, 1, 3),
		makeOutcome("3", "K2", 5000, 5005, 1, 7),
		makeOutcome("4", "K2", 5000, 4990, 1, 4),
	}

	report := Analyze(outcomes, 50000)

	if len(report.TemplateReports) != 2 {
		t.Errorf("expected 2 template reports, got %d", len(report.TemplateReports))
	}

	k1 := report.TemplateReports["K1"]
	if k1 == nil {
		t.Fatal("missing K1 report")
	}
	if k1.TotalTrades != 2 {
		t.Errorf("expected 2 K1 trades, got %d", k1.TotalTrades)
	}
	if k1.WinRate != 100 {
		t.Errorf("expected 100%% win rate for K1, got %.2f%%", k1.WinRate)
	}

	k2 := report.TemplateReports["K2"]
	if k2 == nil {
		t.Fatal("missing K2 report")
	}
	if k2.TotalTrades != 2 {
		t.Errorf("expected 2 K2 trades, got %d", k2.TotalTrades)
	}
	if k2.WinRate != 50 {
		t.Errorf("expected 50%% win rate for K2, got %.2f%%", k2.WinRate)
	}
}

func TestAnalyze_AverageHoldTime(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5010, 1, 4),
		makeOutcome("2", "K1", 5000, 5020, 1, 6),
		makeOutcome("3", "K1", 5000, 5005, 1, 8),
	}

	report := Analyze(outcomes, 50000)

	if math.Abs(report.AverageHoldMinutes-6.0) > 0.1 {
		t.Errorf("expected AverageHoldMinutes=6.0, got %.1f", report.AverageHoldMinutes)
	}
	if report.MinHoldMinutes != 4 {
		t.Errorf("expected MinHoldMinutes=4, got %d", report.MinHoldMinutes)
	}
	if report.MaxHoldMinutes != 8 {
		t.Errorf("expected MaxHoldMinutes=8, got %d", report.MaxHoldMinutes)
	}
}

func TestEquityCurve(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5010, 1, 1), // +10
		makeOutcome("2", "K1", 5000, 4990, 1, 2),  // -10
		makeOutcome("3", "K1", 5000, 5020, 1, 3),  // +20
	}

	curve := EquityCurve(outcomes, 50000)
	if len(curve) == 0 {
		t.Fatal("expected non-empty equity curve")
	}

	if curve[0].Equity != 50000 {
		t.Errorf("expected first point equity=50000, got %.2f", curve[0].Equity)
	}

	last := curve[len(curve)-1]
	if last.Equity != 50020 {
		t.Errorf("expected last equity=50020, got %.2f", last.Equity)
	}
}

func TestFormatReport_EmptyTrades(t *testing.T) {
	report := Analyze(nil, 50000)
	formatted := FormatReport(report)
	if !strings.Contains(formatted, "No closed trades") {
		t.Errorf("expected 'No closed trades' message, got: %s", formatted)
	}
}

func TestFormatReport_WithTrades(t *testing.T) {
	outcomes := []trade.Outcome{
		makeOutcome("1", "K1", 5000, 5010, 1, 5),
		makeOutcome("2", "K2", 5000, 4990, 1, 3),
	}

	report := Analyze(outcomes, 50000)
	formatted := FormatReport(report)

	if !strings.Contains(formatted, "PERFORMANCE REPORT") {
		t.Error("expected report header")
	}
	if !strings.Contains(formatted, "Total trades") {
		t.Error("expected total trades in report")
	}
	if !strings.Contains(formatted, "TEMPLATE BREAKDOWN") {
		t.Error("expected template breakdown for multi-template report")
	}
}
