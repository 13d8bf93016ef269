package usecase

import "github.com/vitos/turtle_trader/internal/domain"

// CandleWindow keeps the most recent completed candles in insertion order.
// It is a passive store: inserting never triggers computation.
type CandleWindow struct {
	candles  []domain.Candle
	capacity int
	minBars  int
	inserted int
}

func NewCandleWindow(capacity, minBars int) *CandleWindow {
	if capacity < minBars {
		capacity = minBars
	}
	return &CandleWindow{
		candles:  make([]domain.Candle, 0, capacity),
		capacity: capacity,
		minBars:  minBars,
	}
}

// Insert appends a completed candle, evicting the oldest one when full.
func (w *CandleWindow) Insert(c domain.Candle) {
	if len(w.candles) == w.capacity {
		copy(w.candles, w.candles[1:])
		w.candles = w.candles[:len(w.candles)-1]
	}
	w.candles = append(w.candles, c)
	w.inserted++
}

// Ready reports whether enough history was inserted for the indicators.
func (w *CandleWindow) Ready() bool {
	return len(w.candles) >= w.minBars
}

func (w *CandleWindow) Len() int      { return len(w.candles) }
func (w *CandleWindow) Capacity() int { return w.capacity }
func (w *CandleWindow) MinBars() int  { return w.minBars }

// Inserted is the total number of candles ever inserted.
func (w *CandleWindow) Inserted() int { return w.inserted }

// Candles returns a copy of the window contents, oldest first.
func (w *CandleWindow) Candles() []domain.Candle {
	out := make([]domain.Candle, len(w.candles))
	copy(out, w.candles)
	return out
}

func (w *CandleWindow) Latest() (domain.Candle, bool) {
	if len(w.candles) == 0 {
		return domain.Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}
