package usecase_test

import (
	"strings"
	"testing"

	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/usecase"
)

func baseSnapshot() usecase.IndicatorSnapshot {
	return usecase.IndicatorSnapshot{
		ATR:       10,
		EntryHigh: 105,
		EntryLow:  95,
		ExitHigh:  105,
		ExitLow:   95,
		Unit:      350,
	}
}

func stateFrom(position float64, addPos int, last, high, low float64) *usecase.PositionState {
	st := usecase.NewPositionState()
	st.Load(domain.StrategyState{
		Position:  position,
		AddPos:    addPos,
		LastPrice: last,
		HighPrice: high,
		LowPrice:  low,
		LowSet:    true,
	})
	return st
}

func TestDecisionEngine_Flat(t *testing.T) {
	engine := usecase.NewDecisionEngine(domain.DefaultTurtleParams())
	snap := baseSnapshot()

	tests := []struct {
		name       string
		price      float64
		wantAction usecase.Action
		wantIntent domain.OrderIntent
		wantPrice  float64
	}{
		{"Inside Channel", 100, usecase.ActionNone, "", 0},
		{"On Entry High", 105, usecase.ActionNone, "", 0},
		{"Breakout Up", 106, usecase.ActionOpen, domain.IntentOpenLong, 107.06},
		{"Breakout Down", 94, usecase.ActionOpen, domain.IntentOpenShort, 93.06},
		{"Invalid Price", 0, usecase.ActionNone, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Evaluate(tt.price, snap, usecase.NewPositionState())
			if d.Action != tt.wantAction || d.Intent != tt.wantIntent {
				t.Fatalf("Evaluate(%v) = %s/%s, want %s/%s", tt.price, d.Action, d.Intent, tt.wantAction, tt.wantIntent)
			}
			if d.HasOrder() {
				if !almostEqual(d.Price, tt.wantPrice) {
					t.Errorf("order price = %v, want %v", d.Price, tt.wantPrice)
				}
				if d.Size != snap.Unit {
					t.Errorf("order size = %v, want unit %v", d.Size, snap.Unit)
				}
			}
		})
	}
}

func TestDecisionEngine_FlatDoesNotTouchWatermarks(t *testing.T) {
	engine := usecase.NewDecisionEngine(domain.DefaultTurtleParams())
	st := usecase.NewPositionState()
	engine.Evaluate(100, baseSnapshot(), st)
	if st.HighPrice() != 0 {
		t.Errorf("HighPrice = %v, want 0 while flat", st.HighPrice())
	}
	if _, ok := st.LowPrice(); ok {
		t.Error("LowPrice must stay unset while flat")
	}
}

func TestDecisionEngine_Long(t *testing.T) {
	engine := usecase.NewDecisionEngine(domain.DefaultTurtleParams())
	snap := baseSnapshot()

	tests := []struct {
		name       string
		addPos     int
		high       float64
		price      float64
		wantAction usecase.Action
		wantIntent domain.OrderIntent
		wantSize   float64
	}{
		{"Add-on At Threshold", 0, 100, 105, usecase.ActionAdd, domain.IntentOpenLong, 350},
		{"No Add-on Below Threshold", 0, 100, 104.9, usecase.ActionNone, "", 0},
		{"Add-ons Exhausted", 2, 100, 110, usecase.ActionNone, "", 0},
		{"Stop-loss", 1, 100, 79, usecase.ActionStopLoss, domain.IntentCloseLong, 700},
		{"Stop-loss At Threshold", 1, 100, 80, usecase.ActionStopLoss, domain.IntentCloseLong, 700},
		{"Trailing Stop", 2, 130, 99, usecase.ActionStopProfit, domain.IntentCloseLong, 700},
		{"Exit Channel", 2, 100, 95, usecase.ActionStopProfit, domain.IntentCloseLong, 700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := stateFrom(700, tt.addPos, 100, tt.high, 100)
			d := engine.Evaluate(tt.price, snap, st)
			if d.Action != tt.wantAction || d.Intent != tt.wantIntent {
				t.Fatalf("Evaluate(%v) = %s/%s, want %s/%s", tt.price, d.Action, d.Intent, tt.wantAction, tt.wantIntent)
			}
			if d.Size != tt.wantSize {
				t.Errorf("size = %v, want %v", d.Size, tt.wantSize)
			}
		})
	}
}

func TestDecisionEngine_Short(t *testing.T) {
	engine := usecase.NewDecisionEngine(domain.DefaultTurtleParams())
	snap := baseSnapshot()

	tests := []struct {
		name       string
		addPos     int
		low        float64
		price      float64
		wantAction usecase.Action
		wantIntent domain.OrderIntent
		wantSize   float64
		wantReason string
	}{
		{"Add-on At Threshold", 0, 100, 95, usecase.ActionAdd, domain.IntentOpenShort, 350, "add-on"},
		{"No Add-on Above Threshold", 0, 100, 95.1, usecase.ActionNone, "", 0, ""},
		{"Add-ons Exhausted", 2, 100, 90, usecase.ActionNone, "", 0, ""},
		{"Stop-loss", 1, 100, 121, usecase.ActionStopLoss, domain.IntentCloseShort, 700, "stop-loss"},
		{"Stop-loss At Threshold", 1, 100, 120, usecase.ActionStopLoss, domain.IntentCloseShort, 700, "stop-loss"},
		{"Stop-loss Before Trailing Stop", 1, 70, 120, usecase.ActionStopLoss, domain.IntentCloseShort, 700, "stop-loss"},
		{"Trailing Stop From Low", 2, 70, 101, usecase.ActionStopProfit, domain.IntentCloseShort, 700, "trailing"},
		{"Trailing Stop Boundary", 2, 70, 100, usecase.ActionNone, "", 0, ""},
		{"Exit Channel High", 2, 100, 105, usecase.ActionStopProfit, domain.IntentCloseShort, 700, "exit channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := stateFrom(-700, tt.addPos, 100, 100, tt.low)
			d := engine.Evaluate(tt.price, snap, st)
			if d.Action != tt.wantAction || d.Intent != tt.wantIntent {
				t.Fatalf("Evaluate(%v) = %s/%s, want %s/%s", tt.price, d.Action, d.Intent, tt.wantAction, tt.wantIntent)
			}
			if d.Size != tt.wantSize {
				t.Errorf("size = %v, want %v", d.Size, tt.wantSize)
			}
			if !strings.Contains(d.Reason, tt.wantReason) {
				t.Errorf("reason = %q, want %q", d.Reason, tt.wantReason)
			}
			if d.Intent == domain.IntentCloseShort && !almostEqual(d.Price, tt.price*1.01) {
				t.Errorf("cover price = %v, want %v", d.Price, tt.price*1.01)
			}
		})
	}
}

func TestDecisionEngine_StopLossScenario(t *testing.T) {
	engine := usecase.NewDecisionEngine(domain.DefaultTurtleParams())
	st := stateFrom(350, 1, 100, 100, 100)

	d := engine.Evaluate(79, baseSnapshot(), st)
	if d.Action != usecase.ActionStopLoss || d.Intent != domain.IntentCloseLong {
		t.Fatalf("got %s/%s, want stop-loss sell", d.Action, d.Intent)
	}
	if d.Size != 350 {
		t.Errorf("stop-loss must close the whole position, size = %v", d.Size)
	}
	if !almostEqual(d.Price, 79*0.99) {
		t.Errorf("price = %v, want %v", d.Price, 79*0.99)
	}
}

func TestDecisionEngine_WatermarksTrackPrice(t *testing.T) {
	engine := usecase.NewDecisionEngine(domain.DefaultTurtleParams())
	st := stateFrom(350, 2, 100, 100, 100)

	engine.Evaluate(112, baseSnapshot(), st)
	engine.Evaluate(97, baseSnapshot(), st)
	if st.HighPrice() != 112 {
		t.Errorf("HighPrice = %v, want 112", st.HighPrice())
	}
	if low, ok := st.LowPrice(); !ok || low != 97 {
		t.Errorf("LowPrice = %v (%v), want 97", low, ok)
	}
}

func TestDecisionEngine_AddOnBeatsStopLoss(t *testing.T) {
	engine := usecase.NewDecisionEngine(domain.DefaultTurtleParams())
	snap := baseSnapshot()
	snap.ATR = 0 // both last+0.5*atr <= price and price <= last-2*atr hold at price == last

	long := engine.Evaluate(100, snap, stateFrom(350, 0, 100, 100, 100))
	if long.Action != usecase.ActionAdd || long.Intent != domain.IntentOpenLong {
		t.Errorf("long: got %s/%s, want add-on buy", long.Action, long.Intent)
	}

	short := engine.Evaluate(100, snap, stateFrom(-350, 0, 100, 100, 100))
	if short.Action != usecase.ActionAdd || short.Intent != domain.IntentOpenShort {
		t.Errorf("short: got %s/%s, want add-on short", short.Action, short.Intent)
	}
}

func TestDecisionEngine_LongShortSymmetry(t *testing.T) {
	params := domain.DefaultTurtleParams()
	engine := usecase.NewDecisionEngine(params)
	snap := baseSnapshot() // symmetric around 100

	mirror := map[domain.OrderIntent]domain.OrderIntent{
		domain.IntentOpenLong:   domain.IntentOpenShort,
		domain.IntentCloseLong:  domain.IntentCloseShort,
		domain.IntentOpenShort:  domain.IntentOpenLong,
		domain.IntentCloseShort: domain.IntentCloseLong,
	}

	for _, position := range []float64{0, 350} {
		for _, delta := range []float64{6, 5, 2, 0, -5, -21, -35} {
			var longState, shortState *usecase.PositionState
			if position == 0 {
				longState, shortState = usecase.NewPositionState(), usecase.NewPositionState()
			} else {
				longState = stateFrom(position, 1, 100, 100, 100)
				shortState = stateFrom(-position, 1, 100, 100, 100)
			}

			dl := engine.Evaluate(100+delta, snap, longState)
			ds := engine.Evaluate(100-delta, snap, shortState)

			if dl.Action != ds.Action {
				t.Errorf("pos %v delta %v: long %s, short %s", position, delta, dl.Action, ds.Action)
				continue
			}
			if !dl.HasOrder() {
				continue
			}
			if mirror[dl.Intent] != ds.Intent {
				t.Errorf("pos %v delta %v: intents %s / %s are not mirrored", position, delta, dl.Intent, ds.Intent)
			}
			if dl.Size != ds.Size {
				t.Errorf("pos %v delta %v: sizes %v / %v differ", position, delta, dl.Size, ds.Size)
			}
			longOffset := dl.Price/(100+delta) - 1
			shortOffset := ds.Price/(100-delta) - 1
			if !almostEqual(longOffset, -shortOffset) {
				t.Errorf("pos %v delta %v: price offsets %v / %v are not mirrored", position, delta, longOffset, shortOffset)
			}
		}
	}
}
