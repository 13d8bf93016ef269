package usecase

import (
	"math"

	"github.com/vitos/turtle_trader/internal/domain"
)

// flatEpsilon absorbs float residue from partial closes.
const flatEpsilon = 1e-9

// PositionState is the signed position and its risk bookkeeping since entry.
type PositionState struct {
	position  float64
	addPos    int
	lastPrice float64
	highPrice float64
	lowPrice  float64
	lowSet    bool
}

func NewPositionState() *PositionState {
	return &PositionState{}
}

func (s *PositionState) Position() float64 { return s.position }
func (s *PositionState) AddPos() int        { return s.addPos }
func (s *PositionState) LastPrice() float64 { return s.lastPrice }
func (s *PositionState) HighPrice() float64 { return s.highPrice }

// LowPrice returns ok=false when no price was observed since entry.
func (s *PositionState) LowPrice() (float64, bool) { return s.lowPrice, s.lowSet }

// Side is derived from the position sign.
func (s *PositionState) Side() domain.Side {
	switch {
	case s.position > flatEpsilon:
		return domain.SideLong
	case s.position < -flatEpsilon:
		return domain.SideShort
	}
	return domain.SideFlat
}

// Observe extends the high/low watermarks with price.
func (s *PositionState) Observe(price float64) {
	s.highPrice = math.Max(s.highPrice, price)
	if !s.lowSet || price < s.lowPrice {
		s.lowPrice = price
		s.lowSet = true
	}
}

// Reset returns the state to flat.
func (s *PositionState) Reset() {
	*s = PositionState{}
}

// ToDomain exports the state for persistence and display.
func (s *PositionState) ToDomain(symbol string) domain.StrategyState {
	return domain.StrategyState{
		Symbol:    symbol,
		Position:  s.position,
		AddPos:    s.addPos,
		LastPrice: s.lastPrice,
		HighPrice: s.highPrice,
		LowPrice:  s.lowPrice,
		LowSet:    s.lowSet,
	}
}

// Load replaces the state with a persisted snapshot.
func (s *PositionState) Load(st domain.StrategyState) {
	s.position = st.Position
	s.addPos = st.AddPos
	s.lastPrice = st.LastPrice
	s.highPrice = st.HighPrice
	s.lowPrice = st.LowPrice
	s.lowSet = st.LowSet
	if math.Abs(s.position) < flatEpsilon {
		s.Reset()
	}
}
