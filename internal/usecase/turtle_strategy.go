package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
)

// StrategyStatus is the display view of a strategy: variables, indicators and state.
type StrategyStatus struct {
	Symbol     string               `json:"symbol"`
	Trading    bool                 `json:"trading"`
	Ready      bool                 `json:"ready"`
	Bars       int                  `json:"bars"`
	Multiplier float64              `json:"contract_multiplier"`
	Indicators *IndicatorSnapshot   `json:"indicators,omitempty"`
	State      domain.StrategyState `json:"state"`
	Pending    []PendingOrder       `json:"pending_orders"`
}

// TurtleStrategy runs the channel breakout rules for one instrument.
// It is not safe for concurrent use; the host serialises all callbacks.
type TurtleStrategy struct {
	symbol  string
	params  domain.TurtleParams
	gateway domain.OrderGateway
	logger  *zap.Logger

	window     *CandleWindow
	indicators *IndicatorEngine
	engine     *DecisionEngine
	state      *PositionState
	reconciler *Reconciler

	snapshot   IndicatorSnapshot
	hasSnap    bool
	multiplier float64
	trading    bool
}

func NewTurtleStrategy(symbol string, params domain.TurtleParams, gateway domain.OrderGateway, logger *zap.Logger) (*TurtleStrategy, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", domain.ErrInvalidConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: nil order gateway", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	state := NewPositionState()
	return &TurtleStrategy{
		symbol:     symbol,
		params:     params,
		gateway:    gateway,
		logger:     logger.With(zap.String("symbol", symbol)),
		window:     NewCandleWindow(params.WindowSize(), params.MinBars()),
		indicators: NewIndicatorEngine(params),
		engine:     NewDecisionEngine(params),
		state:      state,
		reconciler: NewReconciler(state, params.MaxAddOns),
		multiplier: params.ContractMultiplier,
	}, nil
}

func (s *TurtleStrategy) Symbol() string              { return s.symbol }
func (s *TurtleStrategy) Params() domain.TurtleParams { return s.params }
func (s *TurtleStrategy) Ready() bool                 { return s.window.Ready() }
func (s *TurtleStrategy) Trading() bool               { return s.trading }
func (s *TurtleStrategy) Position() *PositionState    { return s.state }

// OnStart enables trading. A non-positive multiplier falls back to the configured one.
func (s *TurtleStrategy) OnStart(contractMultiplier float64) error {
	if contractMultiplier <= 0 {
		contractMultiplier = s.params.ContractMultiplier
	}
	if contractMultiplier <= 0 {
		return fmt.Errorf("%w: contract multiplier must be > 0 for %s", domain.ErrInvalidConfig, s.symbol)
	}
	s.multiplier = contractMultiplier
	s.trading = true
	s.recompute()
	s.logger.Info("Strategy started",
		zap.Float64("multiplier", s.multiplier),
		zap.Bool("ready", s.Ready()),
	)
	return nil
}

func (s *TurtleStrategy) OnStop() {
	s.trading = false
	s.logger.Info("Strategy stopped", zap.Float64("position", s.state.Position()))
}

// OnBarComplete stores a completed bar and refreshes the indicators.
func (s *TurtleStrategy) OnBarComplete(c domain.Candle) {
	if last, ok := s.window.Latest(); ok && c.Time != 0 && c.Time <= last.Time {
		s.logger.Debug("Ignoring stale bar", zap.Int64("bar_time", c.Time), zap.Int64("last_bar_time", last.Time))
		return
	}
	s.window.Insert(c)
	s.recompute()
}

func (s *TurtleStrategy) recompute() {
	snap, ok := s.indicators.Recompute(s.window, s.multiplier)
	if !ok {
		return
	}
	s.snapshot = snap
	s.hasSnap = true
	s.logger.Debug("Indicators updated",
		zap.Float64("atr", snap.ATR),
		zap.Float64("entry_high", snap.EntryHigh),
		zap.Float64("entry_low", snap.EntryLow),
		zap.Float64("exit_high", snap.ExitHigh),
		zap.Float64("exit_low", snap.ExitLow),
		zap.Float64("unit", snap.Unit),
	)
}

// Snapshot returns the indicators of the last completed bar.
func (s *TurtleStrategy) Snapshot() (IndicatorSnapshot, bool) {
	return s.snapshot, s.hasSnap
}

// OnTick evaluates the rules and issues at most one order. While an issued order
// is still pending no new order is sent, but watermarks keep tracking the price.
func (s *TurtleStrategy) OnTick(ctx context.Context, tick domain.Tick) (Decision, error) {
	if tick.Symbol != "" && tick.Symbol != s.symbol {
		return noDecision, nil
	}
	if !s.trading || !s.window.Ready() || !s.hasSnap {
		return noDecision, nil
	}

	d := s.engine.Evaluate(tick.Price, s.snapshot, s.state)
	if !d.HasOrder() {
		return d, nil
	}
	if s.reconciler.HasPending() {
		s.logger.Debug("Order suppressed, previous order pending",
			zap.String("action", string(d.Action)),
			zap.Float64("price", tick.Price),
		)
		return noDecision, nil
	}

	id, err := s.send(ctx, d)
	if err != nil {
		return d, fmt.Errorf("request %s %s: %w", d.Intent, s.symbol, err)
	}
	s.reconciler.Track(id, d.Intent, d.Size)

	s.logger.Info("Order requested",
		zap.String("order_id", id),
		zap.String("action", string(d.Action)),
		zap.String("intent", string(d.Intent)),
		zap.Float64("tick_price", tick.Price),
		zap.Float64("price", d.Price),
		zap.Float64("size", d.Size),
		zap.Float64("atr", s.snapshot.ATR),
		zap.Float64("unit", s.snapshot.Unit),
		zap.String("reason", d.Reason),
	)
	return d, nil
}

func (s *TurtleStrategy) send(ctx context.Context, d Decision) (string, error) {
	switch d.Intent {
	case domain.IntentOpenLong:
		return s.gateway.RequestOpenLong(ctx, s.symbol, d.Price, d.Size)
	case domain.IntentOpenShort:
		return s.gateway.RequestOpenShort(ctx, s.symbol, d.Price, d.Size)
	case domain.IntentCloseLong:
		return s.gateway.RequestCloseLong(ctx, s.symbol, d.Price, d.Size)
	case domain.IntentCloseShort:
		return s.gateway.RequestCloseShort(ctx, s.symbol, d.Price, d.Size)
	}
	return "", fmt.Errorf("unknown intent %q", d.Intent)
}

// OnFillConfirmed applies an execution of an order this strategy issued.
func (s *TurtleStrategy) OnFillConfirmed(fill domain.Fill) error {
	if err := s.reconciler.Apply(fill); err != nil {
		s.logger.Error("Fill rejected", zap.String("order_id", fill.OrderID), zap.Error(err))
		return err
	}
	s.logger.Info("Fill applied",
		zap.String("order_id", fill.OrderID),
		zap.Float64("price", fill.Price),
		zap.Float64("size", fill.Size),
		zap.Float64("position", s.state.Position()),
		zap.Int("add_pos", s.state.AddPos()),
	)
	return nil
}

// OnOrderCancelled releases an order that will receive no further fills.
func (s *TurtleStrategy) OnOrderCancelled(orderID string) bool {
	released := s.reconciler.Release(orderID)
	if released {
		s.logger.Warn("Pending order released", zap.String("order_id", orderID))
	}
	return released
}

func (s *TurtleStrategy) PendingOrders() []PendingOrder {
	return s.reconciler.Pending()
}

// State returns the persistable bookkeeping.
func (s *TurtleStrategy) State() domain.StrategyState {
	st := s.state.ToDomain(s.symbol)
	st.Trading = s.trading
	st.UpdatedAt = time.Now()
	return st
}

// Restore loads persisted bookkeeping. Pending orders are not restored.
func (s *TurtleStrategy) Restore(st domain.StrategyState) {
	s.state.Load(st)
	s.reconciler.Clear()
	s.logger.Info("State restored",
		zap.Float64("position", s.state.Position()),
		zap.Int("add_pos", s.state.AddPos()),
		zap.Float64("last_price", s.state.LastPrice()),
	)
}

func (s *TurtleStrategy) Status() StrategyStatus {
	status := StrategyStatus{
		Symbol:     s.symbol,
		Trading:    s.trading,
		Ready:      s.window.Ready(),
		Bars:       s.window.Len(),
		Multiplier: s.multiplier,
		State:      s.State(),
		Pending:    s.PendingOrders(),
	}
	if s.hasSnap {
		snap := s.snapshot
		status.Indicators = &snap
	}
	return status
}
