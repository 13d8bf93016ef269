package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/infrastructure/metrics"
)

// defaultWarmupFactor times the window capacity is the history loaded at boot
// unless a bar count is configured.
const defaultWarmupFactor = 3

// SymbolStatus is the display view of one traded instrument.
type SymbolStatus struct {
	StrategyStatus
	Interval      domain.Interval `json:"interval"`
	LastPrice     float64         `json:"last_price"`
	AvgEntry      float64         `json:"avg_entry"`
	UnrealizedPnL float64         `json:"unrealized_pnl"`
}

type symbolRunner struct {
	cfg        domain.InstrumentConfig
	strategy   *TurtleStrategy
	aggregator *BarAggregator
	ledger     *TradeLedger
	lastPrice  float64
	resume     bool // trading flag to apply on Start
}

// TurtleService hosts one strategy per configured instrument and serialises
// every event delivered to them.
type TurtleService struct {
	market    domain.MarketData
	tradeRepo domain.TradeRepository
	stateRepo domain.StateRepository
	executor  *TradeExecutor
	params    domain.TurtleParams
	logger    *zap.Logger

	warmupBars int

	mu      sync.Mutex
	runners map[string]*symbolRunner
	symbols []string
}

func NewTurtleService(
	market domain.MarketData,
	broker domain.Broker,
	tradeRepo domain.TradeRepository,
	stateRepo domain.StateRepository,
	params domain.TurtleParams,
	instruments []domain.InstrumentConfig,
	exchange string,
	logger *zap.Logger,
) (*TurtleService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("%w: no instruments configured", domain.ErrInvalidConfig)
	}

	s := &TurtleService{
		market:    market,
		tradeRepo: tradeRepo,
		stateRepo: stateRepo,
		executor:  NewTradeExecutor(broker, tradeRepo, exchange, logger.Named("executor")),
		params:    params,
		logger:    logger,
		runners:   make(map[string]*symbolRunner),

		warmupBars: defaultWarmupFactor * params.WindowSize(),
	}

	for _, inst := range instruments {
		if _, dup := s.runners[inst.Symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate instrument %s", domain.ErrInvalidConfig, inst.Symbol)
		}
		if inst.Interval == "" {
			inst.Interval = domain.Interval1h
		}
		p := params
		if inst.ContractMultiplier > 0 {
			p.ContractMultiplier = inst.ContractMultiplier
		}

		strategy, err := NewTurtleStrategy(inst.Symbol, p, s.executor, logger.Named("strategy"))
		if err != nil {
			return nil, err
		}
		agg, err := NewBarAggregator(inst.Symbol, inst.Interval)
		if err != nil {
			return nil, err
		}
		s.runners[inst.Symbol] = &symbolRunner{
			cfg:        inst,
			strategy:   strategy,
			aggregator: agg,
			ledger:     NewTradeLedger(exchange, inst.Symbol, p.ContractMultiplier),
			resume:     true,
		}
		s.symbols = append(s.symbols, inst.Symbol)
	}
	return s, nil
}

// SetWarmupBars sets how many bars Warmup requests per symbol. Zero restores
// the default of three window capacities.
func (s *TurtleService) SetWarmupBars(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case n == 0:
		s.warmupBars = defaultWarmupFactor * s.params.WindowSize()
	case n < s.params.MinBars():
		return fmt.Errorf("%w: warmup bars %d below the %d needed for indicators", domain.ErrInvalidConfig, n, s.params.MinBars())
	default:
		s.warmupBars = n
	}
	return nil
}

func (s *TurtleService) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *TurtleService) Executor() *TradeExecutor {
	return s.executor
}

func (s *TurtleService) runner(symbol string) (*symbolRunner, error) {
	r, ok := s.runners[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return r, nil
}

// Warmup backfills history into every strategy and restores persisted state.
// The bar still forming at the venue seeds the tick aggregator instead.
func (s *TurtleService) Warmup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs error
	for _, symbol := range s.symbols {
		if err := s.warmup(ctx, s.runners[symbol]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("warmup %s: %w", symbol, err))
		}
	}
	return errs
}

func (s *TurtleService) warmup(ctx context.Context, r *symbolRunner) error {
	symbol := r.cfg.Symbol
	candles, err := s.market.GetCandles(ctx, symbol, r.cfg.Interval, s.warmupBars)
	if err != nil {
		return err
	}

	candles, forming := SplitForming(candles, r.cfg.Interval, time.Now())
	if forming != nil {
		r.aggregator.Seed(*forming)
	}
	for _, c := range candles {
		r.strategy.OnBarComplete(c)
	}
	if n := len(candles); n > 0 {
		r.lastPrice = candles[n-1].Close
	}
	s.publishIndicators(r)

	if !r.strategy.Ready() {
		s.logger.Warn("Not enough history, strategy stays inert until more bars complete",
			zap.String("symbol", symbol),
			zap.Int("bars", len(candles)),
			zap.Int("required", s.params.MinBars()),
		)
	}

	if s.stateRepo != nil {
		st, err := s.stateRepo.GetStrategyState(ctx, symbol)
		if err != nil {
			return err
		}
		if st != nil {
			r.strategy.Restore(*st)
			r.ledger.Restore(*st)
			r.resume = st.Trading
			metrics.SetPosition(symbol, st.Position, st.AddPos)
		}
	}

	s.logger.Info("Warmup complete",
		zap.String("symbol", symbol),
		zap.Int("bars", len(candles)),
		zap.Bool("ready", r.strategy.Ready()),
		zap.Bool("resume_trading", r.resume),
	)
	return nil
}

// Start enables trading on every symbol that was not stopped before a restart.
func (s *TurtleService) Start(ctx context.Context) error {
	var errs error
	for _, symbol := range s.symbols {
		s.mu.Lock()
		resume := s.runners[symbol].resume
		s.mu.Unlock()
		if !resume {
			s.logger.Info("Trading left stopped", zap.String("symbol", symbol))
			continue
		}
		errs = multierr.Append(errs, s.StartTrading(ctx, symbol))
	}
	return errs
}

// StartTrading enables order issuance for symbol. The contract multiplier is
// taken from the instrument override or the venue.
func (s *TurtleService) StartTrading(ctx context.Context, symbol string) error {
	s.mu.Lock()
	r, err := s.runner(symbol)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	multiplier := r.cfg.ContractMultiplier
	if multiplier <= 0 {
		inst, err := s.market.GetInstrument(ctx, symbol)
		if err != nil {
			return fmt.Errorf("instrument %s: %w", symbol, err)
		}
		multiplier = inst.ContractMultiplier
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := r.strategy.OnStart(multiplier); err != nil {
		return err
	}
	r.ledger.SetMultiplier(multiplier)
	r.resume = true
	s.publishIndicators(r)
	s.persist(ctx, r)
	return nil
}

func (s *TurtleService) StopTrading(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.runner(symbol)
	if err != nil {
		return err
	}
	r.strategy.OnStop()
	r.resume = false
	s.persist(ctx, r)
	return nil
}

// Stop halts trading on all symbols and saves their state. The persisted
// trading flags are kept so a restart resumes the same symbols.
func (s *TurtleService) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, symbol := range s.symbols {
		r := s.runners[symbol]
		resume := r.strategy.Trading()
		r.strategy.OnStop()
		st := r.strategy.State()
		st.Trading = resume
		s.save(ctx, &st)
	}
}

// ProcessTick feeds a live price. A tick that opens a new interval completes
// the previous bar before the rules are evaluated.
func (s *TurtleService) ProcessTick(ctx context.Context, tick domain.Tick) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.runner(tick.Symbol)
	if err != nil {
		return noDecision, err
	}
	if tick.Price <= 0 {
		return noDecision, nil
	}
	r.lastPrice = tick.Price

	if bar, done := r.aggregator.Update(tick); done {
		r.strategy.OnBarComplete(bar)
		s.publishIndicators(r)
	}

	d, err := r.strategy.OnTick(ctx, tick)
	if err == nil && d.HasOrder() {
		metrics.IncDecision(tick.Symbol, string(d.Action))
	}
	return d, err
}

// ProcessCandle delivers a bar completed elsewhere, e.g. a confirmed venue kline.
func (s *TurtleService) ProcessCandle(symbol string, c domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.runner(symbol)
	if err != nil {
		return err
	}
	r.strategy.OnBarComplete(c)
	s.publishIndicators(r)
	return nil
}

// ProcessFill applies a confirmed execution, records closed round trips and
// saves the strategy state.
func (s *TurtleService) ProcessFill(ctx context.Context, fill domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.runner(fill.Symbol)
	if err != nil {
		return err
	}
	if err := r.strategy.OnFillConfirmed(fill); err != nil {
		metrics.IncFillRejected(fill.Symbol)
		return err
	}
	metrics.IncFill(fill.Symbol, string(fill.Intent))

	if trade, closed := r.ledger.Apply(fill); closed {
		metrics.ObserveTrade(fill.Symbol, trade.RealizedPnL)
		s.logger.Info("Position closed",
			zap.String("symbol", fill.Symbol),
			zap.String("side", string(trade.Side)),
			zap.Float64("entry", trade.EntryPrice),
			zap.Float64("exit", trade.ExitPrice),
			zap.Float64("pnl", trade.RealizedPnL),
			zap.Int("add_ons", trade.AddOns),
		)
		if s.tradeRepo != nil {
			if err := s.tradeRepo.SavePositionHistory(ctx, trade); err != nil {
				s.logger.Error("Failed to save position history", zap.String("symbol", fill.Symbol), zap.Error(err))
			}
		}
	}

	pos := r.strategy.Position()
	metrics.SetPosition(fill.Symbol, pos.Position(), pos.AddPos())
	s.persist(ctx, r)
	return nil
}

// ReleaseOrder tells the owning strategy an order will not fill any further.
func (s *TurtleService) ReleaseOrder(symbol, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.runner(symbol)
	if err != nil {
		return false
	}
	return r.strategy.OnOrderCancelled(orderID)
}

// SyncOrders polls the venue for executions and delivers them in order. Every
// order that reached a terminal status is then released, which also drops
// orders the venue placed with a size rounded to its lot step.
func (s *TurtleService) SyncOrders(ctx context.Context) error {
	res := s.executor.Poll(ctx)

	var errs error
	for _, f := range res.Fills {
		errs = multierr.Append(errs, s.ProcessFill(ctx, f))
	}
	for _, o := range res.Closed {
		s.ReleaseOrder(o.Symbol, o.ID)
	}
	return errs
}

func (s *TurtleService) Status() []SymbolStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SymbolStatus, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		out = append(out, s.status(s.runners[symbol]))
	}
	return out
}

func (s *TurtleService) StatusFor(symbol string) (SymbolStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.runner(symbol)
	if err != nil {
		return SymbolStatus{}, err
	}
	return s.status(r), nil
}

func (s *TurtleService) status(r *symbolRunner) SymbolStatus {
	return SymbolStatus{
		StrategyStatus: r.strategy.Status(),
		Interval:       r.cfg.Interval,
		LastPrice:      r.lastPrice,
		AvgEntry:       r.ledger.AvgEntry(),
		UnrealizedPnL:  r.ledger.Unrealized(r.lastPrice),
	}
}

func (s *TurtleService) RecentOrders(ctx context.Context, symbol string, limit int) ([]*domain.Order, error) {
	if s.tradeRepo == nil {
		return nil, nil
	}
	return s.tradeRepo.ListOrders(ctx, symbol, limit)
}

func (s *TurtleService) RecentFills(ctx context.Context, symbol string, limit int) ([]*domain.Fill, error) {
	if s.tradeRepo == nil {
		return nil, nil
	}
	return s.tradeRepo.ListFills(ctx, symbol, limit)
}

func (s *TurtleService) ClosedTrades(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	if s.tradeRepo == nil {
		return nil, nil
	}
	return s.tradeRepo.ListPositionHistory(ctx, limit)
}

func (s *TurtleService) publishIndicators(r *symbolRunner) {
	snap, ok := r.strategy.Snapshot()
	if !ok {
		return
	}
	metrics.SetIndicators(r.cfg.Symbol, snap.ATR, snap.Unit, snap.EntryHigh, snap.EntryLow, snap.ExitHigh, snap.ExitLow)
}

func (s *TurtleService) persist(ctx context.Context, r *symbolRunner) {
	st := r.strategy.State()
	s.save(ctx, &st)
}

func (s *TurtleService) save(ctx context.Context, st *domain.StrategyState) {
	if s.stateRepo == nil {
		return
	}
	if err := s.stateRepo.SaveStrategyState(ctx, st); err != nil {
		s.logger.Error("Failed to save strategy state", zap.String("symbol", st.Symbol), zap.Error(err))
	}
}
