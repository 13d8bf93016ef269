package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
)

const exchangePaper = "paper"

// PaperExchange is an in-memory venue. Orders are immediate-or-cancel: a
// marketable limit order fills completely at the last seen price, anything else
// is cancelled.
type PaperExchange struct {
	logger *zap.Logger

	mu          sync.Mutex
	prices      map[string]float64
	priceTimes  map[string]int64
	orders      map[string]*domain.Order
	candles     map[string][]domain.Candle
	instruments map[string]domain.Instrument
}

func NewPaperExchange(logger *zap.Logger) *PaperExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperExchange{
		logger:      logger,
		prices:      make(map[string]float64),
		priceTimes:  make(map[string]int64),
		orders:      make(map[string]*domain.Order),
		candles:     make(map[string][]domain.Candle),
		instruments: make(map[string]domain.Instrument),
	}
}

// SetPrice records the last traded price of symbol. ts is unix ms.
func (p *PaperExchange) SetPrice(symbol string, price float64, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
	p.priceTimes[symbol] = ts
}

func (p *PaperExchange) LastPrice(symbol string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	return price, ok
}

// AddInstrument registers contract metadata returned by GetInstrument.
func (p *PaperExchange) AddInstrument(inst domain.Instrument) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instruments[inst.Symbol] = inst
}

// LoadCandles replaces the history served by GetCandles.
func (p *PaperExchange) LoadCandles(symbol string, candles []domain.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]domain.Candle, len(candles))
	copy(cp, candles)
	p.candles[symbol] = cp
}

func (p *PaperExchange) GetCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.Candle
	for _, c := range p.candles[symbol] {
		if c.Interval == "" || c.Interval == interval {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// GetInstrument returns registered metadata, or a unit-multiplier contract
// without step constraints for unknown symbols.
func (p *PaperExchange) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst, ok := p.instruments[symbol]; ok {
		return &inst, nil
	}
	return &domain.Instrument{Symbol: symbol, Status: "Trading", ContractMultiplier: 1}, nil
}

func (p *PaperExchange) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if !order.Intent.Valid() {
		return nil, errors.Errorf("invalid intent %q", order.Intent)
	}
	if !(order.Size > 0) || !(order.Price > 0) {
		return nil, errors.Errorf("invalid order price %v size %v", order.Price, order.Size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	placed := *order
	placed.ID = uuid.NewString()
	placed.Exchange = exchangePaper
	placed.CreatedAt = now
	placed.UpdatedAt = now

	last, ok := p.prices[order.Symbol]
	switch {
	case !ok:
		placed.Status = domain.OrderStatusRejected
		placed.Reason = "no market price"
	case order.Intent.IsBuy() && order.Price >= last, !order.Intent.IsBuy() && order.Price <= last:
		placed.Status = domain.OrderStatusFilled
		placed.FilledSize = order.Size
		placed.AvgFillPrice = last
	default:
		placed.Status = domain.OrderStatusCancelled
		placed.Reason = "not marketable"
	}

	p.orders[placed.ID] = &placed
	p.logger.Debug("Paper order",
		zap.String("order_id", placed.ID),
		zap.String("symbol", placed.Symbol),
		zap.String("intent", string(placed.Intent)),
		zap.Float64("price", placed.Price),
		zap.Float64("size", placed.Size),
		zap.String("status", string(placed.Status)),
	)

	out := placed
	return &out, nil
}

func (p *PaperExchange) GetOrder(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, errors.Wrap(domain.ErrOrderNotFound, orderID)
	}
	out := *o
	return &out, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return errors.Wrap(domain.ErrOrderNotFound, orderID)
	}
	if !o.Status.Terminal() {
		o.Status = domain.OrderStatusCancelled
		o.UpdatedAt = time.Now()
	}
	return nil
}
