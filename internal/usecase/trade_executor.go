package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/infrastructure/metrics"
)

// defaultRetryDelay holds back a symbol and intent after the broker refused it.
const defaultRetryDelay = 5 * time.Second

type trackedOrder struct {
	order    *domain.Order
	reported float64 // filled quantity already turned into fills
	value    float64 // reported quantity * price
}

// PollResult carries the executions discovered since the previous poll and the
// orders that reached a terminal status. Released is the subset of Closed that
// ended with a remainder at the venue.
type PollResult struct {
	Fills    []domain.Fill
	Closed   []*domain.Order
	Released []*domain.Order
}

// TradeExecutor routes strategy order requests to a broker and tracks them until
// they reach a terminal status. It implements domain.OrderGateway.
type TradeExecutor struct {
	broker    domain.Broker
	tradeRepo domain.TradeRepository
	exchange  string
	logger    *zap.Logger

	retryDelay time.Duration
	now        func() time.Time

	mu      sync.Mutex
	open    map[string]*trackedOrder
	queue   []string             // open order ids in issuance order
	refused map[string]time.Time // symbol/intent -> earliest retry
}

func NewTradeExecutor(broker domain.Broker, tradeRepo domain.TradeRepository, exchange string, logger *zap.Logger) *TradeExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeExecutor{
		broker:    broker,
		tradeRepo: tradeRepo,
		exchange:  exchange,
		logger:    logger,

		retryDelay: defaultRetryDelay,
		now:        time.Now,

		open:    make(map[string]*trackedOrder),
		refused: make(map[string]time.Time),
	}
}

// SetRetryDelay changes how long a refused symbol and intent is held back.
// Zero disables throttling.
func (e *TradeExecutor) SetRetryDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retryDelay = d
}

func (e *TradeExecutor) RequestOpenLong(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return e.Execute(ctx, symbol, domain.IntentOpenLong, price, qty)
}

func (e *TradeExecutor) RequestOpenShort(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return e.Execute(ctx, symbol, domain.IntentOpenShort, price, qty)
}

func (e *TradeExecutor) RequestCloseLong(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return e.Execute(ctx, symbol, domain.IntentCloseLong, price, qty)
}

func (e *TradeExecutor) RequestCloseShort(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return e.Execute(ctx, symbol, domain.IntentCloseShort, price, qty)
}

// Execute places a limit order and returns the broker order id.
func (e *TradeExecutor) Execute(ctx context.Context, symbol string, intent domain.OrderIntent, price, qty float64) (string, error) {
	if !intent.Valid() {
		return "", fmt.Errorf("invalid intent: %s", intent)
	}
	if !(price > 0) || !(qty > 0) {
		return "", fmt.Errorf("invalid order %s %s: price %v qty %v", intent, symbol, price, qty)
	}

	key := symbol + "/" + string(intent)
	now := e.now()
	e.mu.Lock()
	until, held := e.refused[key]
	e.mu.Unlock()
	if held && now.Before(until) {
		return "", fmt.Errorf("%w: %s %s until %s", domain.ErrOrderThrottled, intent, symbol, until.Format(time.RFC3339))
	}

	req := &domain.Order{
		ClientID:  uuid.NewString(),
		Exchange:  e.exchange,
		Symbol:    symbol,
		Intent:    intent,
		Price:     price,
		Size:      qty,
		Status:    domain.OrderStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	placed, err := e.broker.PlaceOrder(ctx, req)
	if err != nil {
		metrics.IncOrder(symbol, string(intent), false)
		e.mu.Lock()
		if e.retryDelay > 0 {
			e.refused[key] = now.Add(e.retryDelay)
		}
		e.mu.Unlock()
		e.logger.Error("Failed to place order",
			zap.String("symbol", symbol),
			zap.String("intent", string(intent)),
			zap.Float64("price", price),
			zap.Float64("qty", qty),
			zap.Error(err),
		)
		return "", err
	}
	metrics.IncOrder(symbol, string(intent), true)

	order := *placed
	if order.ClientID == "" {
		order.ClientID = req.ClientID
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}

	if e.tradeRepo != nil {
		if err := e.tradeRepo.SaveOrder(ctx, &order); err != nil {
			e.logger.Error("Failed to save order", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	e.mu.Lock()
	delete(e.refused, key)
	e.open[order.ID] = &trackedOrder{order: &order}
	e.queue = append(e.queue, order.ID)
	e.mu.Unlock()

	return order.ID, nil
}

// OpenOrders returns copies of the orders still being tracked, oldest first.
func (e *TradeExecutor) OpenOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Order, 0, len(e.queue))
	for _, id := range e.queue {
		out = append(out, *e.open[id].order)
	}
	return out
}

// Poll refreshes every open order and converts new executions into fills.
// Errors for single orders are logged and the order is retried on the next poll.
func (e *TradeExecutor) Poll(ctx context.Context) PollResult {
	e.mu.Lock()
	ids := make([]string, len(e.queue))
	copy(ids, e.queue)
	e.mu.Unlock()

	var res PollResult
	for _, id := range ids {
		e.mu.Lock()
		tracked := e.open[id]
		e.mu.Unlock()
		if tracked == nil {
			continue
		}

		latest, err := e.broker.GetOrder(ctx, tracked.order.Symbol, id)
		if err != nil {
			e.logger.Warn("Failed to refresh order", zap.String("order_id", id), zap.Error(err))
			continue
		}

		e.mu.Lock()
		fill, filled := e.delta(tracked, latest)
		changed := latest.Status != tracked.order.Status || latest.FilledSize != tracked.order.FilledSize
		tracked.order.Status = latest.Status
		tracked.order.FilledSize = latest.FilledSize
		tracked.order.AvgFillPrice = latest.AvgFillPrice
		tracked.order.Reason = latest.Reason
		tracked.order.UpdatedAt = time.Now()
		snapshot := *tracked.order
		e.mu.Unlock()

		if filled {
			res.Fills = append(res.Fills, fill)
			if e.tradeRepo != nil {
				if err := e.tradeRepo.SaveFill(ctx, &fill); err != nil {
					e.logger.Error("Failed to save fill", zap.String("order_id", id), zap.Error(err))
				}
			}
		}
		if changed && e.tradeRepo != nil {
			if err := e.tradeRepo.UpdateOrder(ctx, &snapshot); err != nil {
				e.logger.Error("Failed to update order", zap.String("order_id", id), zap.Error(err))
			}
		}

		if snapshot.Status.Terminal() {
			e.forget(id)
			res.Closed = append(res.Closed, &snapshot)
			if snapshot.Remaining() > flatEpsilon {
				res.Released = append(res.Released, &snapshot)
				e.logger.Warn("Order closed unfilled",
					zap.String("order_id", id),
					zap.String("status", string(snapshot.Status)),
					zap.Float64("remaining", snapshot.Remaining()),
					zap.String("reason", snapshot.Reason),
				)
			}
		}
	}
	return res
}

// Cancel requests cancellation; the order is released on the next poll.
func (e *TradeExecutor) Cancel(ctx context.Context, symbol, orderID string) error {
	return e.broker.CancelOrder(ctx, symbol, orderID)
}

// delta derives the execution between two observations of the same order. The
// price is recovered from the change of filled value.
func (e *TradeExecutor) delta(tracked *trackedOrder, latest *domain.Order) (domain.Fill, bool) {
	qty := latest.FilledSize - tracked.reported
	if qty <= flatEpsilon {
		return domain.Fill{}, false
	}
	price := latest.AvgFillPrice
	if tracked.reported > 0 {
		price = (latest.AvgFillPrice*latest.FilledSize - tracked.value) / qty
	}
	if !(price > 0) || math.IsInf(price, 0) {
		price = latest.AvgFillPrice
	}
	tracked.reported = latest.FilledSize
	tracked.value = latest.AvgFillPrice * latest.FilledSize

	return domain.Fill{
		OrderID: tracked.order.ID,
		Symbol:  tracked.order.Symbol,
		Intent:  tracked.order.Intent,
		Price:   price,
		Size:    qty,
		Time:    time.Now(),
	}, true
}

func (e *TradeExecutor) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.open, id)
	for i, q := range e.queue {
		if q == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			break
		}
	}
}
