package usecase

import (
	"math"
	"time"

	"github.com/vitos/turtle_trader/internal/domain"
)

// TradeLedger follows fills of one symbol and reports each round trip once the
// position is flat again.
type TradeLedger struct {
	exchange   string
	symbol     string
	multiplier float64

	side       domain.Side
	position   float64 // absolute open quantity
	openedQty  float64
	entryValue float64 // sum of open qty*price
	closedQty  float64
	exitValue  float64
	realized   float64
	orders     map[string]bool
	openedAt   time.Time
}

func NewTradeLedger(exchange, symbol string, multiplier float64) *TradeLedger {
	if multiplier <= 0 {
		multiplier = 1
	}
	return &TradeLedger{exchange: exchange, symbol: symbol, multiplier: multiplier}
}

func (l *TradeLedger) SetMultiplier(m float64) {
	if m > 0 {
		l.multiplier = m
	}
}

// AvgEntry is the volume weighted entry price of the open position.
func (l *TradeLedger) AvgEntry() float64 {
	if l.openedQty == 0 {
		return 0
	}
	return l.entryValue / l.openedQty
}

// Unrealized values the open position at price.
func (l *TradeLedger) Unrealized(price float64) float64 {
	if l.position == 0 {
		return 0
	}
	return l.sign() * (price - l.AvgEntry()) * l.position * l.multiplier
}

// Restore seeds an open position, e.g. after a restart.
func (l *TradeLedger) Restore(st domain.StrategyState) {
	l.reset()
	if math.Abs(st.Position) < flatEpsilon {
		return
	}
	l.side = domain.SideLong
	if st.Position < 0 {
		l.side = domain.SideShort
	}
	l.position = math.Abs(st.Position)
	l.openedQty = l.position
	l.entryValue = l.position * st.LastPrice
	l.openedAt = st.UpdatedAt
}

// Apply records a fill already accepted by the strategy. It returns the closed
// round trip when the fill flattens the position.
func (l *TradeLedger) Apply(f domain.Fill) (*domain.PositionHistory, bool) {
	if f.Intent.Offset() == domain.OffsetOpen {
		if l.position == 0 {
			l.reset()
			l.side = f.Intent.Side()
			l.openedAt = f.Time
		}
		if l.orders == nil {
			l.orders = make(map[string]bool)
		}
		l.orders[f.OrderID] = true
		l.position += f.Size
		l.openedQty += f.Size
		l.entryValue += f.Size * f.Price
		return nil, false
	}

	l.realized += l.sign() * (f.Price - l.AvgEntry()) * f.Size * l.multiplier
	l.closedQty += f.Size
	l.exitValue += f.Size * f.Price
	l.position -= f.Size
	if l.position > flatEpsilon {
		return nil, false
	}

	addOns := len(l.orders) - 1
	if addOns < 0 {
		addOns = 0
	}
	h := &domain.PositionHistory{
		Exchange:    l.exchange,
		Symbol:      l.symbol,
		Side:        l.side,
		Size:        l.openedQty,
		EntryPrice:  l.AvgEntry(),
		ExitPrice:   l.exitValue / l.closedQty,
		RealizedPnL: l.realized,
		AddOns:      addOns,
		OpenedAt:    l.openedAt,
		ClosedAt:    f.Time,
	}
	l.reset()
	return h, true
}

func (l *TradeLedger) sign() float64 {
	if l.side == domain.SideShort {
		return -1
	}
	return 1
}

func (l *TradeLedger) reset() {
	l.side = domain.SideFlat
	l.position = 0
	l.openedQty = 0
	l.entryValue = 0
	l.closedQty = 0
	l.exitValue = 0
	l.realized = 0
	l.orders = nil
	l.openedAt = time.Time{}
}
