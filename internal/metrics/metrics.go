// Package metrics exposes the runner's operational state as
// Prometheus metrics: counters for bar cycles, decisions, order
// intents, fills, trade exits and kill-switch trips, plus gauges for
// the last-observed quality scores, account equity and consumed daily
// loss. Registered once in init() and served by the HTTP
// handler a command wires up at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	barsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebar_bars_processed_total",
			Help: "Bar cycles run by the runner, by symbol.",
		},
		[]string{"symbol"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebar_decisions_total",
			Help: "Decisions emitted by the decision engine, by template and outcome.",
		},
		[]string{"template", "outcome"},
	)

	orderIntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebar_order_intents_total",
			Help: "Order intents submitted to the execution supervisor, by template.",
		},
		[]string{"template"},
	)

	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebar_fills_total",
			Help: "Entry fills recorded, by template.",
		},
		[]string{"template"},
	)

	tradeExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebar_trade_exits_total",
			Help: "Closed trades, by template and result (win|loss).",
		},
		[]string{"template", "result"},
	)

	killSwitchTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebar_kill_switch_trips_total",
			Help: "Kill switch activations, by rule.",
		},
		[]string{"rule"},
	)

	dataQualityScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onebar_data_quality_score",
			Help: "Most recent data validity score (DVS) in [0,1].",
		},
	)

	entryQualityScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onebar_entry_quality_score",
			Help: "Most recent execution quality score (EQS) in [0,1].",
		},
	)

	accountEquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onebar_account_equity_usd",
			Help: "Most recent account equity snapshot in USD.",
		},
	)

	consumedDailyLossUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onebar_consumed_daily_loss_usd",
			Help: "Realized loss consumed against the daily loss cap, in USD.",
		},
	)
)

func init() {
	prometheus.MustRegister(barsProcessed, decisionsTotal, orderIntentsTotal)
	prometheus.MustRegister(fillsTotal, tradeExitsTotal, killSwitchTrips)
	prometheus.MustRegister(dataQualityScore, entryQualityScore, accountEquityUSD, consumedDailyLossUSD)
}

func IncBarProcessed(symbol string)               { barsProcessed.WithLabelValues(symbol).Inc() }
func IncDecision(template, outcome string)         { decisionsTotal.WithLabelValues(template, outcome).Inc() }
func IncOrderIntent(template string)               { orderIntentsTotal.WithLabelValues(template).Inc() }
func IncFill(template string)                      { fillsTotal.WithLabelValues(template).Inc() }
func IncKillSwitchTrip(rule string)                { killSwitchTrips.WithLabelValues(rule).Inc() }

func IncTradeExit(template string, win bool) {
	result := "loss"
	if win {
		result = "win"
	}
	tradeExitsTotal.WithLabelValues(template, result).Inc()
}

func SetDataQualityScore(dvs float64)    { dataQualityScore.Set(dvs) }
func SetEntryQualityScore(eqs float64)   { entryQualityScore.Set(eqs) }
func SetAccountEquityUSD(equity float64) { accountEquityUSD.Set(equity) }
func SetConsumedDailyLossUSD(v float64)  { consumedDailyLossUSD.Set(v) }
