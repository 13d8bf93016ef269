package domain

import "context"

// OrderGateway is the outbound order port of a strategy. Each call is a request,
// not a guarantee of execution; it returns the id fills will reference.
type OrderGateway interface {
	RequestOpenLong(ctx context.Context, symbol string, price, qty float64) (string, error)
	RequestOpenShort(ctx context.Context, symbol string, price, qty float64) (string, error)
	RequestCloseLong(ctx context.Context, symbol string, price, qty float64) (string, error)
	RequestCloseShort(ctx context.Context, symbol string, price, qty float64) (string, error)
}

// MarketData provides history and contract metadata.
type MarketData interface {
	GetCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
	GetInstrument(ctx context.Context, symbol string) (*Instrument, error)
}

// PriceStream delivers live ticks.
type PriceStream interface {
	OnPriceUpdate(callback func(tick Tick))
	Subscribe(symbols []string) error
}

// Broker executes orders on a venue (real or simulated).
type Broker interface {
	PlaceOrder(ctx context.Context, order *Order) (*Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// TradeRepository defines storage operations for orders, fills and closed trades.
type TradeRepository interface {
	SaveOrder(ctx context.Context, order *Order) error
	UpdateOrder(ctx context.Context, order *Order) error
	ListOrders(ctx context.Context, symbol string, limit int) ([]*Order, error)

	SaveFill(ctx context.Context, fill *Fill) error
	ListFills(ctx context.Context, symbol string, limit int) ([]*Fill, error)

	SavePositionHistory(ctx context.Context, history *PositionHistory) error
	ListPositionHistory(ctx context.Context, limit int) ([]*PositionHistory, error)
}

// StateRepository persists strategy bookkeeping across restarts.
// GetStrategyState returns nil, nil when nothing was saved for the symbol.
type StateRepository interface {
	SaveStrategyState(ctx context.Context, state *StrategyState) error
	GetStrategyState(ctx context.Context, symbol string) (*StrategyState, error)
}

// CandleRepository caches history for backtests.
type CandleRepository interface {
	SaveCandles(ctx context.Context, symbol string, candles []Candle) error
	ListCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
}
