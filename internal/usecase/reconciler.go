package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/turtle_trader/internal/domain"
)

// PendingOrder is an issued order still awaiting executions.
type PendingOrder struct {
	ID     string             `json:"id"`
	Intent domain.OrderIntent `json:"intent"`
	Size   float64            `json:"size"`
	Filled float64            `json:"filled"`
}

// Reconciler applies confirmed fills to the position state. Fills are accepted only
// for orders it was told about, in issuance order.
type Reconciler struct {
	state     *PositionState
	maxAddOns int
	pending   []*PendingOrder
}

func NewReconciler(state *PositionState, maxAddOns int) *Reconciler {
	return &Reconciler{state: state, maxAddOns: maxAddOns}
}

// Track registers an issued order.
func (r *Reconciler) Track(id string, intent domain.OrderIntent, size float64) {
	r.pending = append(r.pending, &PendingOrder{ID: id, Intent: intent, Size: size})
}

// Release drops a pending order that will receive no more fills.
func (r *Reconciler) Release(id string) bool {
	for i, p := range r.pending {
		if p.ID == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Reconciler) HasPending() bool { return len(r.pending) > 0 }

// Pending returns a copy of the pending ledger, oldest first.
func (r *Reconciler) Pending() []PendingOrder {
	out := make([]PendingOrder, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, *p)
	}
	return out
}

// Clear forgets every pending order.
func (r *Reconciler) Clear() {
	r.pending = nil
}

// Apply validates the fill against the head of the ledger and updates the state.
// On error the state is untouched.
func (r *Reconciler) Apply(fill domain.Fill) error {
	if len(r.pending) == 0 {
		return fmt.Errorf("%w: no pending order for fill %s", domain.ErrOutOfOrderFill, fill.OrderID)
	}
	head := r.pending[0]
	if fill.OrderID != head.ID {
		return fmt.Errorf("%w: fill for %s, expected %s", domain.ErrOutOfOrderFill, fill.OrderID, head.ID)
	}
	if fill.Intent != "" && fill.Intent != head.Intent {
		return fmt.Errorf("%w: fill intent %s, order intent %s", domain.ErrOutOfOrderFill, fill.Intent, head.Intent)
	}
	if !(fill.Size > 0) || !(fill.Price > 0) || math.IsInf(fill.Size, 0) || math.IsInf(fill.Price, 0) {
		return fmt.Errorf("%w: invalid fill price %v size %v", domain.ErrOutOfOrderFill, fill.Price, fill.Size)
	}
	if head.Filled+fill.Size > head.Size+flatEpsilon {
		return fmt.Errorf("%w: overfill of %s (%v + %v > %v)", domain.ErrOutOfOrderFill, head.ID, head.Filled, fill.Size, head.Size)
	}

	st := r.state
	intent := head.Intent
	signed := fill.Size
	if intent.Side() == domain.SideShort {
		signed = -signed
	}

	if intent.Offset() == domain.OffsetOpen {
		if st.Side() != domain.SideFlat && st.Side() != intent.Side() {
			return fmt.Errorf("%w: %s fill while %s", domain.ErrOutOfOrderFill, intent, st.Side())
		}
		st.position += signed
		st.lastPrice = fill.Price
		st.Observe(fill.Price)
		// once per order, capped at maxAddOns
		if head.Filled == 0 && st.addPos < r.maxAddOns {
			st.addPos++
		}
	} else {
		if st.Side() != intent.Side() || fill.Size > math.Abs(st.position)+flatEpsilon {
			return fmt.Errorf("%w: %s fill of %v against position %v", domain.ErrOutOfOrderFill, intent, fill.Size, st.position)
		}
		st.position -= signed
		if math.Abs(st.position) < flatEpsilon {
			st.Reset()
		}
	}

	head.Filled += fill.Size
	if head.Filled >= head.Size-flatEpsilon {
		r.pending = r.pending[1:]
	}
	return nil
}
