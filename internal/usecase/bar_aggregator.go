package usecase

import (
	"math"
	"time"

	"github.com/vitos/turtle_trader/internal/domain"
)

// BarAggregator builds interval bars from ticks. A tick in a later interval
// completes the bar in progress.
type BarAggregator struct {
	symbol   string
	interval domain.Interval
	step     int64 // bar width in ms
	anchor   int64 // bar start offset from the epoch in ms
	current  *domain.Candle
}

func NewBarAggregator(symbol string, interval domain.Interval) (*BarAggregator, error) {
	d, err := interval.Duration()
	if err != nil {
		return nil, err
	}
	return &BarAggregator{
		symbol:   symbol,
		interval: interval,
		step:     d.Milliseconds(),
		anchor:   interval.Anchor().Milliseconds(),
	}, nil
}

// Seed continues a bar already in progress, e.g. the forming kline returned by backfill.
func (a *BarAggregator) Seed(forming domain.Candle) {
	c := forming
	c.Interval = a.interval
	c.Time = a.BarStart(c.Time)
	a.current = &c
}

// BarStart aligns a unix ms timestamp to the start of its bar. Weekly bars
// start on Monday like venue klines.
func (a *BarAggregator) BarStart(ts int64) int64 {
	m := (ts - a.anchor) % a.step
	if m < 0 {
		m += a.step
	}
	return ts - m
}

// Current returns the bar in progress.
func (a *BarAggregator) Current() (domain.Candle, bool) {
	if a.current == nil {
		return domain.Candle{}, false
	}
	return *a.current, true
}

// Update folds a tick into the bar in progress and returns the completed bar
// when the tick opens a new interval. Ticks for earlier intervals are ignored.
func (a *BarAggregator) Update(tick domain.Tick) (domain.Candle, bool) {
	if tick.Symbol != "" && tick.Symbol != a.symbol {
		return domain.Candle{}, false
	}
	if tick.Price <= 0 || math.IsNaN(tick.Price) || math.IsInf(tick.Price, 0) || tick.Time <= 0 {
		return domain.Candle{}, false
	}
	start := a.BarStart(tick.Time)

	if a.current == nil {
		a.open(start, tick.Price)
		return domain.Candle{}, false
	}

	switch {
	case start < a.current.Time:
		return domain.Candle{}, false
	case start == a.current.Time:
		a.current.High = math.Max(a.current.High, tick.Price)
		a.current.Low = math.Min(a.current.Low, tick.Price)
		a.current.Close = tick.Price
		return domain.Candle{}, false
	}

	completed := *a.current
	a.open(start, tick.Price)
	return completed, true
}

// SplitForming separates a venue kline still in progress at now from the
// completed bars before it. Venues return the forming kline last.
func SplitForming(candles []domain.Candle, interval domain.Interval, now time.Time) ([]domain.Candle, *domain.Candle) {
	n := len(candles)
	if n == 0 {
		return candles, nil
	}
	step, err := interval.Duration()
	if err != nil {
		return candles, nil
	}
	last := candles[n-1]
	if last.Time+step.Milliseconds() > now.UnixMilli() {
		return candles[:n-1], &last
	}
	return candles, nil
}

func (a *BarAggregator) open(start int64, price float64) {
	a.current = &domain.Candle{
		Time:     start,
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Interval: a.interval,
	}
}
