package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Interval is a bar width in Bybit kline notation: minutes as a number, "D" or "W".
type Interval string

const (
	Interval1m  Interval = "1"
	Interval5m  Interval = "5"
	Interval15m Interval = "15"
	Interval1h  Interval = "60"
	Interval4h  Interval = "240"
	Interval1d  Interval = "D"
	Interval1w  Interval = "W"
)

// weekAnchor moves weekly bars from the epoch Thursday to Monday 00:00 UTC.
const weekAnchor = 4 * 24 * time.Hour

// Duration returns the width of one bar.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval1d:
		return 24 * time.Hour, nil
	case Interval1w:
		return 7 * 24 * time.Hour, nil
	}
	n, err := strconv.Atoi(string(i))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: unsupported interval %q", ErrInvalidConfig, string(i))
	}
	return time.Duration(n) * time.Minute, nil
}

// Anchor is the offset from the unix epoch at which bars of this width start.
func (i Interval) Anchor() time.Duration {
	if i == Interval1w {
		return weekAnchor
	}
	return 0
}

// Candle is a completed OHLC bar. Time is the bar open in unix milliseconds.
type Candle struct {
	Time     int64    `json:"time"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	Volume   float64  `json:"volume"`
	Interval Interval `json:"interval"`
}

// Tick is a single last-trade price update.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"` // unix ms
}
