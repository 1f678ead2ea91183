package signal

import (
	"fmt"

	"github.com/onebar-systems/onebar/internal/bardata"
	"github.com/onebar-systems/onebar/internal/market"
	"github.com/onebar-systems/onebar/internal/reason"
)

// SkipError is returned by Compute when a bar cannot be turned into a
// SignalVector. It is never a panic: callers branch on Reason.
type SkipError struct {
	Reason reason.Code
	Detail string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("signal: skip %s: %s", e.Reason, e.Detail)
}

// Config holds the warm-up depths and clipping bounds C1 needs. The two
// Wilder periods are held fixed across instruments; everything else
// here is configuration.
type Config struct {
	ATRShortPeriod int // 14
	ATRLongPeriod  int // 30
	ZWindow        int // lookback for volume/return z-scores
}

// DefaultConfig returns the standard ATR periods: Wilder smoothing with
// N=14 for the short series and a second N=30 series for regime width.
func DefaultConfig() Config {
	return Config{ATRShortPeriod: 14, ATRLongPeriod: 30, ZWindow: 20}
}

// Engine computes C1's fixed-width SignalVector from a bar plus rolling
// history. It is stateless across calls — all state needed lives in the
// `history` slice the caller supplies, mirroring the indicator
// functions this package is built from.
type Engine struct {
	cfg Config
	cal *market.Calendar
}

func New(cfg Config, cal *market.Calendar) *Engine {
	return &Engine{cfg: cfg, cal: cal}
}

// Compute produces a SignalVector for the most recent bar in history
// (history[len(history)-1]). history must be ordered oldest-to-newest
// and include the bar being scored.
func (e *Engine) Compute(history []bardata.Bar) (bardata.SignalVector, error) {
	var sv bardata.SignalVector

	if len(history) == 0 {
		return sv, &SkipError{Reason: reason.SignalUnavailable, Detail: "empty history"}
	}

	atr14, ok14 := wilderATR(history, e.cfg.ATRShortPeriod)
	atr30, ok30 := wilderATR(history, e.cfg.ATRLongPeriod)
	if !ok14 || !ok30 {
		return sv, &SkipError{Reason: reason.Warmup, Detail: "insufficient history for ATR warm-up"}
	}

	bar := history[len(history)-1]
	if bar.Close <= 0 || bar.High < bar.Low {
		return sv, &SkipError{Reason: reason.SignalUnavailable, Detail: "malformed bar OHLC"}
	}

	sessionBars := sinceOpen(history, e.cal)
	vw := vwap(sessionBars)

	closes := closesOf(history)
	volumes := volumesOf(history)
	returns := returnsOf(closes)

	now := bar.Timestamp
	phase := e.cal.Phase(now)

	sv.Values[bardata.SClose] = bar.Close
	sv.Values[bardata.SReturn1] = lastOrZero(returns, 1)
	sv.Values[bardata.SReturn5] = sumLast(returns, 5)
	sv.Values[bardata.SRangeATR14] = atr14
	sv.Values[bardata.SRangeATR30] = atr30
	sv.Values[bardata.SATRRatio] = clip(safeDiv(atr14, atr30), 0, 3)
	sv.Values[bardata.SHighLowRange] = bar.High - bar.Low
	sv.Values[bardata.SBodyToRange] = clip(safeDiv(absf(bar.Close-bar.Open), bar.High-bar.Low), 0, 1)
	sv.Values[bardata.SUpperWickRatio] = clip(safeDiv(bar.High-maxf(bar.Open, bar.Close), bar.High-bar.Low), 0, 1)
	sv.Values[bardata.SLowerWickRatio] = clip(safeDiv(minf(bar.Open, bar.Close)-bar.Low, bar.High-bar.Low), 0, 1)
	sv.Values[bardata.SDistanceFromVWAP] = clip(safeDiv(bar.Close-vw, atr14), -5, 5)
	sv.Values[bardata.SDistanceFromOpen] = clip(safeDiv(bar.Close-sessionOpenPrice(sessionBars), atr14), -10, 10)

	volMean := mean(trailing(volumes, e.cfg.ZWindow))
	volStd := stdev(trailing(volumes, e.cfg.ZWindow), volMean)
	sv.Values[bardata.SVolumeZ] = clip(zscore(float64(bar.Volume), volMean, volStd), -5, 5)
	sv.Values[bardata.SVolumeRatio5] = clip(safeDiv(float64(bar.Volume), mean(trailing(volumes, 5))), 0, 10)
	sv.Values[bardata.SVolumeRatio20] = clip(safeDiv(float64(bar.Volume), mean(trailing(volumes, 20))), 0, 10)
	sv.Values[bardata.SDeltaVolume] = deltaVolume(history)
	sv.Values[bardata.SBuyPressure] = clip(buyPressure(bar), 0, 1)
	sv.Values[bardata.SVWAPSlope] = clip(vwapSlope(sessionBars), -5, 5)
	sv.Values[bardata.SParticipationRate] = clip(safeDiv(float64(bar.Volume), mean(volumes)), 0, 10)
	sv.Values[bardata.SVolumeTrend] = clip(safeDiv(mean(trailing(volumes, 5))-mean(trailing(volumes, 20)), mean(trailing(volumes, 20))+1), -5, 5)
	sv.Values[bardata.SRelativeVolume] = clip(safeDiv(float64(bar.Volume), mean(volumes)), 0, 10)

	sv.Values[bardata.SSessionPhase] = float64(phase)
	sv.Values[bardata.SMinutesSinceOpen] = e.cal.MinutesSinceOpen(now)
	sv.Values[bardata.SMinutesUntilClose] = e.cal.MinutesUntilClose(now)
	sv.Values[bardata.SOvernightGap] = overnightGap(history, e.cal)

	sv.Values[bardata.SSpreadTicks] = clip(safeDiv(bar.Ask-bar.Bid, 0.25), 0, 50)
	sv.Values[bardata.SQuoteAge] = 0 // stamped by the broker adapter layer, not derivable from Bar alone
	sv.Values[bardata.SDelayedFlag] = boolToFloat(bar.Provenance.Delayed)

	sv.Values[bardata.SMomentum10] = clip(safeDiv(lastOrZero(closes, 0)-lastOrZero(closes, 10), atr14), -10, 10)
	sv.Values[bardata.SMomentum20] = clip(safeDiv(lastOrZero(closes, 0)-lastOrZero(closes, 20), atr14), -10, 10)
	sv.Values[bardata.SRSI14] = wilderRSI(history, 14) / 100
	sv.Values[bardata.SMACDHist] = clip(macdHistogram(closes), -5, 5)
	sv.Values[bardata.SBollingerZ] = clip(zscore(bar.Close, mean(trailing(closes, 20)), stdev(trailing(closes, 20), mean(trailing(closes, 20)))), -4, 4)
	sv.Values[bardata.SPriceAcceleration] = clip(acceleration(returns), -5, 5)
	sv.Values[bardata.STrendSlope] = clip(trendSlope(trailing(closes, 20)), -5, 5)

	return sv, nil
}

// ────────────────────────────────────────────────────────────────────
// helpers operating purely on slices of history; kept here rather than
// in indicators.go because they're specific to vector assembly, not
// reusable indicator math.
// ────────────────────────────────────────────────────────────────────

func sinceOpen(history []bardata.Bar, cal *market.Calendar) []bardata.Bar {
	if len(history) == 0 {
		return nil
	}
	day := history[len(history)-1].Timestamp.In(cal.Session().Location)
	start := 0
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i].Timestamp.In(cal.Session().Location)
		if t.Year() != day.Year() || t.YearDay() != day.YearDay() {
			start = i + 1
			break
		}
	}
	return history[start:]
}

func sessionOpenPrice(sessionBars []bardata.Bar) float64 {
	if len(sessionBars) == 0 {
		return 0
	}
	return sessionBars[0].Open
}

func closesOf(history []bardata.Bar) []float64 {
	out := make([]float64, len(history))
	for i, b := range history {
		out[i] = b.Close
	}
	return out
}

func volumesOf(history []bardata.Bar) []float64 {
	out := make([]float64, len(history))
	for i, b := range history {
		out[i] = float64(b.Volume)
	}
	return out
}

func returnsOf(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = closes[i] - closes[i-1]
	}
	return out
}

func trailing(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func lastOrZero(xs []float64, back int) float64 {
	idx := len(xs) - 1 - back
	if idx < 0 || idx >= len(xs) {
		return 0
	}
	return xs[idx]
}

func sumLast(xs []float64, n int) float64 {
	t := trailing(xs, n)
	var s float64
	for _, x := range t {
		s += x
	}
	return s
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func absf(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func deltaVolume(history []bardata.Bar) float64 {
	if len(history) < 2 {
		return 0
	}
	curr := history[len(history)-1]
	prev := history[len(history)-2]
	return clip(float64(curr.Volume-prev.Volume)/(float64(prev.Volume)+1), -5, 5)
}

func buyPressure(bar bardata.Bar) float64 {
	rng := bar.High - bar.Low
	if rng == 0 {
		return 0.5
	}
	return (bar.Close - bar.Low) / rng
}

func vwapSlope(sessionBars []bardata.Bar) float64 {
	if len(sessionBars) < 2 {
		return 0
	}
	mid := len(sessionBars) / 2
	first := vwap(sessionBars[:mid+1])
	last := vwap(sessionBars)
	return last - first
}

func overnightGap(history []bardata.Bar, cal *market.Calendar) float64 {
	session := sinceOpen(history, cal)
	if len(session) == 0 {
		return 0
	}
	startIdx := len(history) - len(session)
	if startIdx == 0 {
		return 0
	}
	prevClose := history[startIdx-1].Close
	if prevClose == 0 {
		return 0
	}
	return clip((session[0].Open-prevClose)/prevClose, -0.1, 0.1)
}

func macdHistogram(closes []float64) float64 {
	if len(closes) < 26 {
		return 0
	}
	emaFast := ema(closes, 12)
	emaSlow := ema(closes, 26)
	macd := emaFast - emaSlow
	signal := ema(appendf(closes, macd), 9)
	return macd - signal
}

func ema(xs []float64, period int) float64 {
	if len(xs) == 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	start := 0
	if len(xs) > period {
		start = len(xs) - period
	}
	e := xs[start]
	for i := start + 1; i < len(xs); i++ {
		e = xs[i]*k + e*(1-k)
	}
	return e
}

func appendf(xs []float64, v float64) []float64 {
	out := make([]float64, len(xs)+1)
	copy(out, xs)
	out[len(xs)] = v
	return out
}

func acceleration(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return returns[len(returns)-1] - returns[len(returns)-2]
}

func trendSlope(closes []float64) float64 {
	n := len(closes)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range closes {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}
