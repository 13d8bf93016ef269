package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/turtle_trader/internal/domain"
)

type Action string

const (
	ActionNone       Action = "NONE"
	ActionOpen       Action = "OPEN"
	ActionAdd        Action = "ADD"
	ActionStopLoss   Action = "STOP_LOSS"
	ActionStopProfit Action = "STOP_PROFIT"
)

// Decision is the outcome of evaluating one tick. At most one order per tick.
type Decision struct {
	Action Action             `json:"action"`
	Intent domain.OrderIntent `json:"intent,omitempty"`
	Price  float64            `json:"price,omitempty"`
	Size   float64            `json:"size,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

func (d Decision) HasOrder() bool { return d.Action != ActionNone }

var noDecision = Decision{Action: ActionNone}

// DecisionEngine maps price, snapshot and position state to an order decision.
type DecisionEngine struct {
	params domain.TurtleParams
}

func NewDecisionEngine(params domain.TurtleParams) *DecisionEngine {
	return &DecisionEngine{params: params}
}

// Evaluate runs the rules for the current side. While in a position the watermarks
// are extended with price before any rule is checked.
func (e *DecisionEngine) Evaluate(price float64, snap IndicatorSnapshot, st *PositionState) Decision {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return noDecision
	}

	switch st.Side() {
	case domain.SideFlat:
		return e.evaluateFlat(price, snap)
	case domain.SideLong:
		st.Observe(price)
		return e.evaluateLong(price, snap, st)
	case domain.SideShort:
		st.Observe(price)
		return e.evaluateShort(price, snap, st)
	}
	return noDecision
}

func (e *DecisionEngine) evaluateFlat(price float64, snap IndicatorSnapshot) Decision {
	if price > snap.EntryHigh {
		return Decision{
			Action: ActionOpen,
			Intent: domain.IntentOpenLong,
			Price:  e.buyPrice(price),
			Size:   snap.Unit,
			Reason: fmt.Sprintf("breakout above entry high %.4f", snap.EntryHigh),
		}
	}
	if price < snap.EntryLow {
		return Decision{
			Action: ActionOpen,
			Intent: domain.IntentOpenShort,
			Price:  e.sellPrice(price),
			Size:   snap.Unit,
			Reason: fmt.Sprintf("breakout below entry low %.4f", snap.EntryLow),
		}
	}
	return noDecision
}

func (e *DecisionEngine) evaluateLong(price float64, snap IndicatorSnapshot, st *PositionState) Decision {
	p := e.params
	size := math.Abs(st.Position())

	if st.AddPos() < p.MaxAddOns && price >= st.LastPrice()+p.AddOnATR*snap.ATR {
		return Decision{
			Action: ActionAdd,
			Intent: domain.IntentOpenLong,
			Price:  e.buyPrice(price),
			Size:   snap.Unit,
			Reason: fmt.Sprintf("add-on %d/%d above last fill %.4f", st.AddPos()+1, p.MaxAddOns, st.LastPrice()),
		}
	}
	if price <= st.LastPrice()-p.StopLossATR*snap.ATR {
		return Decision{
			Action: ActionStopLoss,
			Intent: domain.IntentCloseLong,
			Price:  e.sellPrice(price),
			Size:   size,
			Reason: fmt.Sprintf("stop-loss below %.4f", st.LastPrice()-p.StopLossATR*snap.ATR),
		}
	}
	if price < st.HighPrice()-p.TrailingStopATR*snap.ATR {
		return Decision{
			Action: ActionStopProfit,
			Intent: domain.IntentCloseLong,
			Price:  e.sellPrice(price),
			Size:   size,
			Reason: fmt.Sprintf("trailing stop from high %.4f", st.HighPrice()),
		}
	}
	if price <= snap.ExitLow {
		return Decision{
			Action: ActionStopProfit,
			Intent: domain.IntentCloseLong,
			Price:  e.sellPrice(price),
			Size:   size,
			Reason: fmt.Sprintf("exit channel low %.4f broken", snap.ExitLow),
		}
	}
	return noDecision
}

func (e *DecisionEngine) evaluateShort(price float64, snap IndicatorSnapshot, st *PositionState) Decision {
	p := e.params
	size := math.Abs(st.Position())
	low, _ := st.LowPrice()

	if st.AddPos() < p.MaxAddOns && price <= st.LastPrice()-p.AddOnATR*snap.ATR {
		return Decision{
			Action: ActionAdd,
			Intent: domain.IntentOpenShort,
			Price:  e.sellPrice(price),
			Size:   snap.Unit,
			Reason: fmt.Sprintf("add-on %d/%d below last fill %.4f", st.AddPos()+1, p.MaxAddOns, st.LastPrice()),
		}
	}
	if price >= st.LastPrice()+p.StopLossATR*snap.ATR {
		return Decision{
			Action: ActionStopLoss,
			Intent: domain.IntentCloseShort,
			Price:  e.buyPrice(price),
			Size:   size,
			Reason: fmt.Sprintf("stop-loss above %.4f", st.LastPrice()+p.StopLossATR*snap.ATR),
		}
	}
	if price > low+p.TrailingStopATR*snap.ATR {
		return Decision{
			Action: ActionStopProfit,
			Intent: domain.IntentCloseShort,
			Price:  e.buyPrice(price),
			Size:   size,
			Reason: fmt.Sprintf("trailing stop from low %.4f", low),
		}
	}
	if price >= snap.ExitHigh {
		return Decision{
			Action: ActionStopProfit,
			Intent: domain.IntentCloseShort,
			Price:  e.buyPrice(price),
			Size:   size,
			Reason: fmt.Sprintf("exit channel high %.4f broken", snap.ExitHigh),
		}
	}
	return noDecision
}

func (e *DecisionEngine) buyPrice(price float64) float64 {
	return price * (1 + e.params.PriceOffset)
}

func (e *DecisionEngine) sellPrice(price float64) float64 {
	return price * (1 - e.params.PriceOffset)
}
