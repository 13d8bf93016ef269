package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
)

// SimulatedBroker is a venue whose market price is driven by the caller.
type SimulatedBroker interface {
	domain.Broker
	SetPrice(symbol string, price float64, ts int64)
}

type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

type BacktestSummary struct {
	PnL          float64 `json:"pnl"`
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"win_rate"` // fraction of winning trades
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"` // percent, <= 0
	FinalEquity  float64 `json:"final_equity"`
	Orders       int     `json:"orders"`
}

type BacktestResult struct {
	Symbol  string                    `json:"symbol"`
	Bars    int                       `json:"bars"`
	Trades  []*domain.PositionHistory `json:"trades"`
	Equity  []EquityPoint             `json:"equity"`
	Summary BacktestSummary           `json:"summary"`
}

// Backtester replays historical bars through a fresh strategy.
type Backtester struct {
	broker SimulatedBroker
	params domain.TurtleParams
	logger *zap.Logger
}

func NewBacktester(broker SimulatedBroker, params domain.TurtleParams, logger *zap.Logger) (*Backtester, error) {
	if broker == nil {
		return nil, fmt.Errorf("%w: nil broker", domain.ErrInvalidConfig)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backtester{broker: broker, params: params, logger: logger}, nil
}

// Run replays candles (oldest first). Inside each bar the price walks
// open, low, high, close for a rising bar and open, high, low, close otherwise;
// every step is a tick and orders are settled before the next one.
func (b *Backtester) Run(ctx context.Context, symbol string, multiplier float64, candles []domain.Candle) (*BacktestResult, error) {
	executor := NewTradeExecutor(b.broker, nil, "backtest", b.logger)
	executor.SetRetryDelay(0)
	strategy, err := NewTurtleStrategy(symbol, b.params, executor, b.logger)
	if err != nil {
		return nil, err
	}
	if err := strategy.OnStart(multiplier); err != nil {
		return nil, err
	}
	if multiplier <= 0 {
		multiplier = b.params.ContractMultiplier
	}
	ledger := NewTradeLedger("backtest", symbol, multiplier)

	res := &BacktestResult{Symbol: symbol, Bars: len(candles)}
	realized := 0.0

	for _, c := range candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, price := range barPath(c) {
			b.broker.SetPrice(symbol, price, c.Time)
			d, err := strategy.OnTick(ctx, domain.Tick{Symbol: symbol, Price: price, Time: c.Time})
			if err != nil {
				b.logger.Warn("Backtest order failed", zap.Int64("bar_time", c.Time), zap.Error(err))
				continue
			}
			if !d.HasOrder() {
				continue
			}
			res.Summary.Orders++

			poll := executor.Poll(ctx)
			for _, f := range poll.Fills {
				f.Time = time.UnixMilli(c.Time)
				if err := strategy.OnFillConfirmed(f); err != nil {
					return nil, fmt.Errorf("backtest fill at %d: %w", c.Time, err)
				}
				if trade, closed := ledger.Apply(f); closed {
					res.Trades = append(res.Trades, trade)
					realized += trade.RealizedPnL
				}
			}
			for _, o := range poll.Closed {
				strategy.OnOrderCancelled(o.ID)
			}
		}

		strategy.OnBarComplete(c)
		res.Equity = append(res.Equity, EquityPoint{
			Time:   time.UnixMilli(c.Time),
			Equity: b.params.AccountBalance + realized + ledger.Unrealized(c.Close),
		})
	}

	res.Summary = summarize(res.Equity, res.Trades, res.Summary.Orders)
	b.logger.Info("Backtest complete",
		zap.String("symbol", symbol),
		zap.Int("bars", res.Bars),
		zap.Int("trades", res.Summary.Trades),
		zap.Float64("pnl", res.Summary.PnL),
		zap.Float64("max_drawdown", res.Summary.MaxDrawdown),
	)
	return res, nil
}

func barPath(c domain.Candle) []float64 {
	if c.Close >= c.Open {
		return []float64{c.Open, c.Low, c.High, c.Close}
	}
	return []float64{c.Open, c.High, c.Low, c.Close}
}

func summarize(equity []EquityPoint, trades []*domain.PositionHistory, orders int) BacktestSummary {
	var sum, gross, loss float64
	wins := 0
	for _, t := range trades {
		sum += t.RealizedPnL
		if t.RealizedPnL >= 0 {
			gross += t.RealizedPnL
		} else {
			loss += -t.RealizedPnL
		}
		if t.RealizedPnL > 0 {
			wins++
		}
	}

	var peak, dd float64
	if len(equity) > 0 {
		peak = equity[0].Equity
	}
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if d := (p.Equity - peak) / peak * 100; d < dd {
				dd = d
			}
		}
	}

	s := BacktestSummary{PnL: sum, Trades: len(trades), MaxDrawdown: dd, Orders: orders}
	if len(trades) > 0 {
		s.WinRate = float64(wins) / float64(len(trades))
	}
	if loss > 0 {
		s.ProfitFactor = gross / loss
	}
	if n := len(equity); n > 0 {
		s.FinalEquity = equity[n-1].Equity
	}
	return s
}
