package usecase_test

import (
	"errors"
	"testing"

	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/usecase"
)

func fill(id string, price, size float64) domain.Fill {
	return domain.Fill{OrderID: id, Price: price, Size: size}
}

func assertFlat(t *testing.T, st *usecase.PositionState) {
	t.Helper()
	if st.Position() != 0 || st.AddPos() != 0 || st.LastPrice() != 0 || st.HighPrice() != 0 {
		t.Errorf("state not reset: pos %v add %d last %v high %v", st.Position(), st.AddPos(), st.LastPrice(), st.HighPrice())
	}
	if _, ok := st.LowPrice(); ok {
		t.Error("LowPrice must be unset after flattening")
	}
	if st.Side() != domain.SideFlat {
		t.Errorf("Side() = %s, want FLAT", st.Side())
	}
}

func TestReconciler_OpenAddClose(t *testing.T) {
	st := usecase.NewPositionState()
	r := usecase.NewReconciler(st, 2)

	r.Track("a", domain.IntentOpenLong, 10)
	if err := r.Apply(fill("a", 100, 10)); err != nil {
		t.Fatalf("open fill: %v", err)
	}
	if st.Position() != 10 || st.AddPos() != 1 || st.LastPrice() != 100 || st.Side() != domain.SideLong {
		t.Fatalf("after open: pos %v add %d last %v", st.Position(), st.AddPos(), st.LastPrice())
	}

	r.Track("b", domain.IntentOpenLong, 10)
	if err := r.Apply(fill("b", 105, 10)); err != nil {
		t.Fatalf("add-on fill: %v", err)
	}
	if st.Position() != 20 || st.AddPos() != 2 || st.LastPrice() != 105 || st.HighPrice() != 105 {
		t.Fatalf("after add-on: pos %v add %d last %v high %v", st.Position(), st.AddPos(), st.LastPrice(), st.HighPrice())
	}
	if low, _ := st.LowPrice(); low != 100 {
		t.Errorf("LowPrice = %v, want 100", low)
	}

	r.Track("c", domain.IntentCloseLong, 20)
	if err := r.Apply(fill("c", 90, 20)); err != nil {
		t.Fatalf("close fill: %v", err)
	}
	assertFlat(t, st)
	if r.HasPending() {
		t.Error("ledger should be empty")
	}
}

func TestReconciler_ShortRoundTrip(t *testing.T) {
	st := usecase.NewPositionState()
	r := usecase.NewReconciler(st, 2)

	r.Track("s", domain.IntentOpenShort, 5)
	if err := r.Apply(fill("s", 100, 5)); err != nil {
		t.Fatal(err)
	}
	if st.Position() != -5 || st.Side() != domain.SideShort {
		t.Fatalf("pos = %v, side %s", st.Position(), st.Side())
	}

	r.Track("c", domain.IntentCloseShort, 5)
	if err := r.Apply(fill("c", 97, 5)); err != nil {
		t.Fatal(err)
	}
	assertFlat(t, st)
}

func TestReconciler_PartialFillsCountOnce(t *testing.T) {
	st := usecase.NewPositionState()
	r := usecase.NewReconciler(st, 2)

	r.Track("a", domain.IntentOpenLong, 10)
	for _, f := range []domain.Fill{fill("a", 100, 4), fill("a", 101, 6)} {
		if err := r.Apply(f); err != nil {
			t.Fatal(err)
		}
	}
	if st.AddPos() != 1 {
		t.Errorf("AddPos = %d, want 1 for a single order", st.AddPos())
	}
	if st.Position() != 10 || st.LastPrice() != 101 {
		t.Errorf("pos %v last %v", st.Position(), st.LastPrice())
	}
	if r.HasPending() {
		t.Error("fully filled order should leave the ledger")
	}

	// partial close keeps the bookkeeping
	r.Track("c", domain.IntentCloseLong, 10)
	if err := r.Apply(fill("c", 99, 3)); err != nil {
		t.Fatal(err)
	}
	if st.Position() != 7 || st.AddPos() != 1 || st.LastPrice() != 101 {
		t.Errorf("after partial close: pos %v add %d last %v", st.Position(), st.AddPos(), st.LastPrice())
	}
	if len(r.Pending()) != 1 || r.Pending()[0].Filled != 3 {
		t.Errorf("pending = %+v", r.Pending())
	}
}

func TestReconciler_AddPosCapped(t *testing.T) {
	st := usecase.NewPositionState()
	r := usecase.NewReconciler(st, 2)
	for i, id := range []string{"a", "b", "c"} {
		r.Track(id, domain.IntentOpenLong, 1)
		if err := r.Apply(fill(id, 100+float64(i), 1)); err != nil {
			t.Fatal(err)
		}
	}
	if st.AddPos() != 2 {
		t.Errorf("AddPos = %d, want cap 2", st.AddPos())
	}
}

func TestReconciler_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *usecase.Reconciler)
		fill  domain.Fill
	}{
		{"No Pending Order", func(r *usecase.Reconciler) {}, fill("x", 100, 1)},
		{"Unknown Order", func(r *usecase.Reconciler) { r.Track("a", domain.IntentOpenLong, 1) }, fill("x", 100, 1)},
		{"Out Of Issuance Order", func(r *usecase.Reconciler) {
			r.Track("a", domain.IntentOpenLong, 1)
			r.Track("b", domain.IntentOpenLong, 1)
		}, fill("b", 100, 1)},
		{"Intent Mismatch", func(r *usecase.Reconciler) { r.Track("a", domain.IntentOpenLong, 1) },
			domain.Fill{OrderID: "a", Intent: domain.IntentOpenShort, Price: 100, Size: 1}},
		{"Overfill", func(r *usecase.Reconciler) { r.Track("a", domain.IntentOpenLong, 1) }, fill("a", 100, 2)},
		{"Zero Size", func(r *usecase.Reconciler) { r.Track("a", domain.IntentOpenLong, 1) }, fill("a", 100, 0)},
		{"Close While Flat", func(r *usecase.Reconciler) { r.Track("a", domain.IntentCloseLong, 1) }, fill("a", 100, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := usecase.NewPositionState()
			r := usecase.NewReconciler(st, 2)
			tt.setup(r)
			before := len(r.Pending())

			err := r.Apply(tt.fill)
			if !errors.Is(err, domain.ErrOutOfOrderFill) {
				t.Fatalf("Apply() = %v, want ErrOutOfOrderFill", err)
			}
			assertFlat(t, st)
			if len(r.Pending()) != before {
				t.Errorf("ledger changed on rejected fill")
			}
		})
	}
}

func TestReconciler_Release(t *testing.T) {
	r := usecase.NewReconciler(usecase.NewPositionState(), 2)
	r.Track("a", domain.IntentOpenLong, 1)
	r.Track("b", domain.IntentOpenLong, 1)

	if !r.Release("a") {
		t.Fatal("Release(a) = false")
	}
	if r.Release("a") {
		t.Error("second Release(a) should report false")
	}
	if err := r.Apply(fill("b", 100, 1)); err != nil {
		t.Errorf("b should be head after releasing a: %v", err)
	}
}
