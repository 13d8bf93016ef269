package usecase

import (
	"math"

	"github.com/vitos/turtle_trader/internal/domain"
)

// IndicatorSnapshot holds the values derived from the window at the last completed bar.
type IndicatorSnapshot struct {
	ATR       float64 `json:"atr"`
	EntryHigh float64 `json:"entry_high"`
	EntryLow  float64 `json:"entry_low"`
	ExitHigh  float64 `json:"exit_high"`
	ExitLow   float64 `json:"exit_low"`
	Unit      float64 `json:"unit"`
	BarTime   int64   `json:"bar_time"`
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(c domain.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// AverageTrueRange is the simple mean of the true range over the last period candles.
// The first candle of the slice has no previous close and uses high-low.
func AverageTrueRange(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) == 0 {
		return 0
	}
	start := len(candles) - period
	if start < 0 {
		start = 0
	}

	var sum float64
	for i := start; i < len(candles); i++ {
		if i == 0 {
			sum += candles[i].High - candles[i].Low
			continue
		}
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	return sum / float64(len(candles)-start)
}

// HighestHigh returns the max high of the last n candles, skipping the newest skip candles.
func HighestHigh(candles []domain.Candle, n, skip int) float64 {
	end := len(candles) - skip
	start := end - n
	if start < 0 {
		start = 0
	}
	hh := math.Inf(-1)
	for _, c := range candles[start:end] {
		hh = math.Max(hh, c.High)
	}
	return hh
}

// LowestLow returns the min low of the last n candles, skipping the newest skip candles.
func LowestLow(candles []domain.Candle, n, skip int) float64 {
	end := len(candles) - skip
	start := end - n
	if start < 0 {
		start = 0
	}
	ll := math.Inf(1)
	for _, c := range candles[start:end] {
		ll = math.Min(ll, c.Low)
	}
	return ll
}

// UnitSize converts the risk budget into a position unit: the number of contracts
// whose 2*ATR move equals balance*riskFactor. It is always >= 1.
func UnitSize(balance, riskFactor, multiplier, atr float64) float64 {
	if atr <= 0 || math.IsNaN(atr) || math.IsInf(atr, 0) || multiplier <= 0 {
		return 1
	}
	raw := balance * riskFactor / (multiplier * 2 * atr)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 1
	}
	return math.Max(1, math.Floor(raw))
}

// IndicatorEngine recomputes the snapshot from a full rescan of the window.
type IndicatorEngine struct {
	params domain.TurtleParams
}

func NewIndicatorEngine(params domain.TurtleParams) *IndicatorEngine {
	return &IndicatorEngine{params: params}
}

// Recompute returns ok=false while the window is not ready.
func (e *IndicatorEngine) Recompute(w *CandleWindow, multiplier float64) (IndicatorSnapshot, bool) {
	if !w.Ready() {
		return IndicatorSnapshot{}, false
	}
	candles := w.Candles()
	p := e.params

	skip := 0
	if p.ExcludeLatestBar {
		skip = 1
	}

	atr := AverageTrueRange(candles, p.AtrLookback)
	snap := IndicatorSnapshot{
		ATR:       atr,
		EntryHigh: HighestHigh(candles, p.EntryLookback, skip),
		EntryLow:  LowestLow(candles, p.EntryLookback, skip),
		ExitHigh:  HighestHigh(candles, p.ExitLookback, skip),
		ExitLow:   LowestLow(candles, p.ExitLookback, skip),
		Unit:      UnitSize(p.AccountBalance, p.RiskFactor, multiplier, atr),
		BarTime:   candles[len(candles)-1].Time,
	}
	return snap, true
}
