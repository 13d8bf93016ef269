// Package metrics holds the Prometheus collectors of the trader.
//
// Exposed series:
//   - turtle_decisions_total{symbol,action}     decisions that produced an order
//   - turtle_orders_total{symbol,intent,result} order requests by outcome (placed|failed)
//   - turtle_fills_total{symbol,intent}         applied executions
//   - turtle_fills_rejected_total{symbol}       fills refused by reconciliation
//   - turtle_trades_total{symbol,result}        closed round trips (win|loss)
//   - turtle_position{symbol}                   signed position
//   - turtle_add_pos{symbol}                    units added since entry
//   - turtle_atr{symbol}, turtle_unit{symbol}
//   - turtle_channel{symbol,band}               entry_high|entry_low|exit_high|exit_low
//   - turtle_realized_pnl{symbol}               cumulative realized PnL
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_decisions_total",
			Help: "Decisions that produced an order",
		},
		[]string{"symbol", "action"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_orders_total",
			Help: "Order requests by outcome",
		},
		[]string{"symbol", "intent", "result"},
	)

	mtxFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_fills_total",
			Help: "Executions applied to strategy state",
		},
		[]string{"symbol", "intent"},
	)

	mtxFillsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_fills_rejected_total",
			Help: "Executions refused as out of order",
		},
		[]string{"symbol"},
	)

	mtxTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_trades_total",
			Help: "Closed round trips by result (win|loss)",
		},
		[]string{"symbol", "result"},
	)

	mtxPosition = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_position",
			Help: "Signed strategy position",
		},
		[]string{"symbol"},
	)

	mtxAddPos = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_add_pos",
			Help: "Units opened since entry",
		},
		[]string{"symbol"},
	)

	mtxATR = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_atr",
			Help: "Average true range of the last completed bar",
		},
		[]string{"symbol"},
	)

	mtxUnit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_unit",
			Help: "Position unit size",
		},
		[]string{"symbol"},
	)

	mtxChannel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_channel",
			Help: "Donchian channel bands",
		},
		[]string{"symbol", "band"},
	)

	mtxRealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_realized_pnl",
			Help: "Cumulative realized PnL of closed round trips",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(mtxDecisions, mtxOrders, mtxFills, mtxFillsRejected, mtxTrades)
	prometheus.MustRegister(mtxPosition, mtxAddPos, mtxATR, mtxUnit, mtxChannel, mtxRealizedPnL)
}

func IncDecision(symbol, action string) { mtxDecisions.WithLabelValues(symbol, action).Inc() }

func IncOrder(symbol, intent string, ok bool) {
	result := "placed"
	if !ok {
		result = "failed"
	}
	mtxOrders.WithLabelValues(symbol, intent, result).Inc()
}

func IncFill(symbol, intent string) { mtxFills.WithLabelValues(symbol, intent).Inc() }
func IncFillRejected(symbol string) { mtxFillsRejected.WithLabelValues(symbol).Inc() }

// ObserveTrade counts a closed round trip and adds its PnL to the running total.
func ObserveTrade(symbol string, pnl float64) {
	result := "win"
	if pnl <= 0 {
		result = "loss"
	}
	mtxTrades.WithLabelValues(symbol, result).Inc()
	mtxRealizedPnL.WithLabelValues(symbol).Add(pnl)
}

func SetPosition(symbol string, position float64, addPos int) {
	mtxPosition.WithLabelValues(symbol).Set(position)
	mtxAddPos.WithLabelValues(symbol).Set(float64(addPos))
}

func SetIndicators(symbol string, atr, unit, entryHigh, entryLow, exitHigh, exitLow float64) {
	mtxATR.WithLabelValues(symbol).Set(atr)
	mtxUnit.WithLabelValues(symbol).Set(unit)
	mtxChannel.WithLabelValues(symbol, "entry_high").Set(entryHigh)
	mtxChannel.WithLabelValues(symbol, "entry_low").Set(entryLow)
	mtxChannel.WithLabelValues(symbol, "exit_high").Set(exitHigh)
	mtxChannel.WithLabelValues(symbol, "exit_low").Set(exitLow)
}

// Handler serves the default registry in the text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
