package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/usecase"
)

// newReadyStrategy returns a started strategy whose window gives
// ATR 10, channels [95, 105] and a unit of 350.
func newReadyStrategy(t *testing.T, gw domain.OrderGateway) *usecase.TurtleStrategy {
	t.Helper()
	s, err := usecase.NewTurtleStrategy("BTCUSDT", domain.DefaultTurtleParams(), gw, nil)
	if err != nil {
		t.Fatalf("NewTurtleStrategy: %v", err)
	}
	for _, c := range rangeBars(20, 95, 100, 105) {
		s.OnBarComplete(c)
	}
	if err := s.OnStart(1); err != nil {
		t.Fatalf("OnStart: %v", err)
	}
	return s
}

func tick(price float64) domain.Tick {
	return domain.Tick{Symbol: "BTCUSDT", Price: price}
}

func TestNewTurtleStrategy_InvalidConfig(t *testing.T) {
	bad := domain.DefaultTurtleParams()
	bad.EntryLookback = 0
	if _, err := usecase.NewTurtleStrategy("BTCUSDT", bad, &fakeGateway{}, nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("invalid lookback: err = %v", err)
	}
	if _, err := usecase.NewTurtleStrategy("BTCUSDT", domain.DefaultTurtleParams(), nil, nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("nil gateway: err = %v", err)
	}
}

func TestTurtleStrategy_OnStartMultiplier(t *testing.T) {
	s, _ := usecase.NewTurtleStrategy("BTCUSDT", domain.DefaultTurtleParams(), &fakeGateway{}, nil)
	if err := s.OnStart(0); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("OnStart(0) without configured multiplier = %v, want ErrInvalidConfig", err)
	}
	if s.Trading() {
		t.Error("strategy must not trade after a failed start")
	}

	params := domain.DefaultTurtleParams()
	params.ContractMultiplier = 10
	s, _ = usecase.NewTurtleStrategy("BTCUSDT", params, &fakeGateway{}, nil)
	for _, c := range rangeBars(20, 95, 100, 105) {
		s.OnBarComplete(c)
	}
	if err := s.OnStart(0); err != nil {
		t.Fatalf("OnStart(0) with configured multiplier: %v", err)
	}
	snap, _ := s.Snapshot()
	if snap.Unit != 35 {
		t.Errorf("unit = %v, want 35 with multiplier 10", snap.Unit)
	}
}

func TestTurtleStrategy_InertUntilReadyAndStarted(t *testing.T) {
	gw := &fakeGateway{}
	s, _ := usecase.NewTurtleStrategy("BTCUSDT", domain.DefaultTurtleParams(), gw, nil)
	ctx := context.Background()

	for _, c := range rangeBars(19, 95, 100, 105) {
		s.OnBarComplete(c)
	}
	_ = s.OnStart(1)
	if d, err := s.OnTick(ctx, tick(200)); err != nil || d.HasOrder() {
		t.Errorf("tick before ready produced %+v, %v", d, err)
	}

	s.OnBarComplete(domain.Candle{Time: 20 * hourMs, Open: 100, High: 105, Low: 95, Close: 100})
	s.OnStop()
	if d, _ := s.OnTick(ctx, tick(200)); d.HasOrder() {
		t.Error("tick after stop produced an order")
	}
	if len(gw.Calls()) != 0 {
		t.Errorf("gateway called %d times", len(gw.Calls()))
	}
}

func TestTurtleStrategy_OpenAddStopLossReset(t *testing.T) {
	gw := &fakeGateway{}
	s := newReadyStrategy(t, gw)
	ctx := context.Background()

	if d, _ := s.OnTick(ctx, tick(100)); d.HasOrder() {
		t.Fatal("no order expected inside the channel")
	}

	d, err := s.OnTick(ctx, tick(106))
	if err != nil || d.Action != usecase.ActionOpen {
		t.Fatalf("expected open at 106: %+v, %v", d, err)
	}
	open := gw.Last()
	if open.Intent != domain.IntentOpenLong || !almostEqual(open.Price, 107.06) || open.Qty != 350 {
		t.Fatalf("open request = %+v", open)
	}

	// pending order blocks further orders
	if d, _ := s.OnTick(ctx, tick(120)); d.HasOrder() {
		t.Error("order issued while previous order pending")
	}
	if len(gw.Calls()) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(gw.Calls()))
	}

	if err := s.OnFillConfirmed(fill(open.ID, 106, 350)); err != nil {
		t.Fatal(err)
	}

	d, _ = s.OnTick(ctx, tick(111))
	if d.Action != usecase.ActionAdd {
		t.Fatalf("expected add-on at 111, got %+v", d)
	}
	add := gw.Last()
	if err := s.OnFillConfirmed(fill(add.ID, 111, 350)); err != nil {
		t.Fatal(err)
	}
	if st := s.State(); st.AddPos != 2 || st.Position != 700 {
		t.Fatalf("after add-on: %+v", st)
	}

	if d, _ := s.OnTick(ctx, tick(116)); d.HasOrder() {
		t.Fatalf("add-ons exhausted, got %+v", d)
	}

	d, _ = s.OnTick(ctx, tick(90))
	if d.Action != usecase.ActionStopLoss {
		t.Fatalf("expected stop-loss at 90, got %+v", d)
	}
	stop := gw.Last()
	if stop.Intent != domain.IntentCloseLong || stop.Qty != 700 || !almostEqual(stop.Price, 89.1) {
		t.Fatalf("stop request = %+v", stop)
	}
	if err := s.OnFillConfirmed(fill(stop.ID, 90, 700)); err != nil {
		t.Fatal(err)
	}

	st := s.State()
	if st.Position != 0 || st.AddPos != 0 || st.LastPrice != 0 || st.HighPrice != 0 || st.LowSet {
		t.Errorf("state not reset: %+v", st)
	}
}

func TestTurtleStrategy_OpenShort(t *testing.T) {
	gw := &fakeGateway{}
	s := newReadyStrategy(t, gw)

	d, err := s.OnTick(context.Background(), tick(94))
	if err != nil || d.Intent != domain.IntentOpenShort {
		t.Fatalf("expected short entry: %+v, %v", d, err)
	}
	if c := gw.Last(); !almostEqual(c.Price, 93.06) || c.Qty != 350 {
		t.Errorf("short request = %+v", c)
	}
	if err := s.OnFillConfirmed(fill(gw.Last().ID, 94, 350)); err != nil {
		t.Fatal(err)
	}
	if s.Position().Side() != domain.SideShort {
		t.Errorf("side = %s", s.Position().Side())
	}
}

func TestTurtleStrategy_GatewayError(t *testing.T) {
	gw := &fakeGateway{err: errGatewayDown}
	s := newReadyStrategy(t, gw)

	if _, err := s.OnTick(context.Background(), tick(106)); !errors.Is(err, errGatewayDown) {
		t.Fatalf("err = %v, want gateway error", err)
	}
	if len(s.PendingOrders()) != 0 {
		t.Error("failed request must not be tracked")
	}

	gw.err = nil
	if d, _ := s.OnTick(context.Background(), tick(106)); !d.HasOrder() {
		t.Error("next tick should retry the entry")
	}
}

func TestTurtleStrategy_CancelledOrderReleased(t *testing.T) {
	gw := &fakeGateway{}
	s := newReadyStrategy(t, gw)
	ctx := context.Background()

	_, _ = s.OnTick(ctx, tick(106))
	first := gw.Last()
	if !s.OnOrderCancelled(first.ID) {
		t.Fatal("OnOrderCancelled = false")
	}
	if d, _ := s.OnTick(ctx, tick(107)); !d.HasOrder() {
		t.Fatal("entry should be retried after cancellation")
	}
	if err := s.OnFillConfirmed(fill(first.ID, 106, 350)); !errors.Is(err, domain.ErrOutOfOrderFill) {
		t.Errorf("fill for cancelled order: err = %v", err)
	}
}

func TestTurtleStrategy_IgnoresForeignSymbolAndStaleBars(t *testing.T) {
	gw := &fakeGateway{}
	s := newReadyStrategy(t, gw)

	if d, _ := s.OnTick(context.Background(), domain.Tick{Symbol: "ETHUSDT", Price: 500}); d.HasOrder() {
		t.Error("tick for another symbol produced an order")
	}

	before, _ := s.Snapshot()
	s.OnBarComplete(domain.Candle{Time: 5 * hourMs, High: 500, Low: 1, Close: 100})
	after, _ := s.Snapshot()
	if before != after {
		t.Error("stale bar changed the indicators")
	}
}

func TestTurtleStrategy_Restore(t *testing.T) {
	gw := &fakeGateway{}
	s := newReadyStrategy(t, gw)
	s.Restore(domain.StrategyState{Symbol: "BTCUSDT", Position: 350, AddPos: 1, LastPrice: 100, HighPrice: 100, LowPrice: 100, LowSet: true})

	d, _ := s.OnTick(context.Background(), tick(79))
	if d.Action != usecase.ActionStopLoss || d.Size != 350 {
		t.Errorf("restored position should be stopped out: %+v", d)
	}

	status := s.Status()
	if status.Indicators == nil || status.Indicators.ATR != 10 || !status.Ready || !status.Trading {
		t.Errorf("status = %+v", status)
	}
	if len(status.Pending) != 1 {
		t.Errorf("pending = %d, want 1", len(status.Pending))
	}
}
