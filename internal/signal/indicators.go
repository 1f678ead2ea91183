// Package signal implements C1, the per-bar feature computation stage.
//
// Indicator math here follows Wilder smoothing and rolling-window
// conventions rather than naive single-bar snapshots, the same way the
// reference trading stack computes ATR/RSI: an exponential running
// average seeded from a simple average over the first `period` bars.
package signal

import (
	"math"

	"github.com/onebar-systems/onebar/internal/bardata"
)

// wilderATR computes the Average True Range using Wilder's smoothing
// method over the given period. Returns (value, ok); ok is false when
// there is not enough history to seed the average (warm-up).
func wilderATR(bars []bardata.Bar, period int) (float64, bool) {
	if len(bars) < period+1 {
		return 0, false
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(bars[i], bars[i-1])
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1])
		atr = (atr*float64(period-1) + tr) / float64(period)
	}

	return atr, true
}

// ATR14 exposes Wilder ATR-14 for callers outside this package (the
// quality scorer and the trade manager's volatility exit both need the
// raw value, not just the normalized ratios in the signal vector).
// Returns 0 when there isn't enough history.
func ATR14(bars []bardata.Bar) float64 {
	atr, ok := wilderATR(bars, 14)
	if !ok {
		return 0
	}
	return atr
}

func trueRange(curr, prev bardata.Bar) float64 {
	tr1 := curr.High - curr.Low
	tr2 := math.Abs(curr.High - prev.Close)
	tr3 := math.Abs(curr.Low - prev.Close)
	return math.Max(tr1, math.Max(tr2, tr3))
}

// wilderRSI computes RSI-14 style momentum via Wilder-smoothed average
// gain/loss. Returns neutral (50) when there isn't enough history.
func wilderRSI(bars []bardata.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gainSum += change
		} else {
			lossSum += -change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// vwap computes the volume-weighted average price over the given
// session bars. Compute passes every bar of the current calendar day in
// the session's time zone, so the average resets at that day's first
// bar.
func vwap(sessionBars []bardata.Bar) float64 {
	var pv, vol float64
	for _, b := range sessionBars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * float64(b.Volume)
		vol += float64(b.Volume)
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}

// clip bounds a raw value into [lo, hi]; every unbounded signal is
// clipped before it enters a SignalVector.
func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func zscore(x, mean, stdev float64) float64 {
	if stdev == 0 {
		return 0
	}
	return (x - mean) / stdev
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stdev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var v float64
	for _, x := range xs {
		d := x - m
		v += d * d
	}
	return math.Sqrt(v / float64(len(xs)-1))
}
