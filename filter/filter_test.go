package filter_test

import (
	"testing"

	"github.com/hexlake/pqscan/filter"
	"github.com/hexlake/pqscan/value"
)

type fixedFilter struct {
	rejectEvery int
	n           int
	alwaysTrue  bool
}

func (f *fixedFilter) AlwaysTrue() bool { return f.alwaysTrue }

func (f *fixedFilter) Eval(v value.Value) bool {
	f.n++
	return f.n%f.rejectEvery != 0
}

func TestEvaluatorAlwaysTrueDisabledImmediately(t *testing.T) {
	f := &fixedFilter{alwaysTrue: true}
	var disabled bool
	e := filter.NewEvaluator(f, 0.1, func() { disabled = true })
	if !disabled {
		t.Fatal("expected onDisable to fire immediately for an AlwaysTrue filter")
	}
	if e.Enabled() {
		t.Fatal("expected Enabled() == false")
	}
	if !e.Eval(value.OfInt32(1)) {
		t.Fatal("a disabled evaluator must report every row as surviving")
	}
}

func TestEvaluatorDisablesOnLowRejectRatio(t *testing.T) {
	// Rejects one row in a million: far below the 0.1 threshold, so the
	// evaluator should disable at the first RowsPerFilterSelectivityCheck
	// boundary.
	f := &fixedFilter{rejectEvery: 1_000_000}
	disables := 0
	e := filter.NewEvaluator(f, 0.1, func() { disables++ })

	for i := 0; i < filter.RowsPerFilterSelectivityCheck; i++ {
		e.Eval(value.OfInt32(int32(i)))
	}
	if e.Enabled() {
		t.Fatal("expected evaluator to auto-disable after one low-selectivity check window")
	}
	if disables != 1 {
		t.Fatalf("onDisable fired %d times, want exactly 1", disables)
	}

	// Disabling is monotone: further evaluation must not re-enable or
	// re-fire the callback, regardless of the underlying filter's behavior.
	for i := 0; i < filter.RowsPerFilterSelectivityCheck; i++ {
		if !e.Eval(value.OfInt32(int32(i))) {
			t.Fatal("disabled evaluator rejected a row")
		}
	}
	if disables != 1 {
		t.Fatalf("onDisable fired %d times after staying disabled, want 1", disables)
	}
}

func TestEvaluatorStaysEnabledOnHighRejectRatio(t *testing.T) {
	// Rejects every other row: well above the 0.1 threshold.
	f := &fixedFilter{rejectEvery: 2}
	e := filter.NewEvaluator(f, 0.1, nil)

	for i := 0; i < filter.RowsPerFilterSelectivityCheck; i++ {
		e.Eval(value.OfInt32(int32(i)))
	}
	if !e.Enabled() {
		t.Fatal("expected a highly selective filter to remain enabled")
	}
}
