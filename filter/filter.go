// Package filter evaluates runtime filters and conjuncts against scratch
// batch tuples, and tracks the measured rejection ratio that governs
// auto-disabling an unselective filter.
package filter

import "github.com/hexlake/pqscan/value"

// RuntimeFilter is the consumed collaborator (§6): an opaque per-column
// predicate built by the query planner from a probe-side value set.
type RuntimeFilter interface {
	Eval(v value.Value) bool
	AlwaysTrue() bool
}

// ExprEvaluator evaluates the scan's conjuncts (WHERE-clause predicates)
// against one assembled row.
type ExprEvaluator interface {
	EvalConjuncts(row []value.Slot) bool
}

// RowsPerFilterSelectivityCheck is the §4.8 check interval: a power of two,
// so "every N rows" can be tested with a cheap bitmask instead of a modulo.
const RowsPerFilterSelectivityCheck = 16384

// Stats is one runtime filter's measured effectiveness this scan.
type Stats struct {
	TotalPossible int64
	Considered    int64
	Rejected      int64
}

// Evaluator wraps one RuntimeFilter with the counters and auto-disable
// policy of §4.8.
type Evaluator struct {
	filter  RuntimeFilter
	enabled bool
	stats   Stats

	rejectRatioThreshold float64
	onDisable            func()
}

// NewEvaluator wraps filter, auto-disabling later once its measured
// rejection ratio over RowsPerFilterSelectivityCheck rows falls below
// rejectRatioThreshold (the scanner's parquet_min_filter_reject_ratio).
// A filter that reports AlwaysTrue is disabled immediately, since it can
// never reject a row. onDisable, if non-nil, fires exactly once, at the
// moment this evaluator transitions from enabled to disabled (including the
// immediate AlwaysTrue case); callers use it to log or count the event.
func NewEvaluator(f RuntimeFilter, rejectRatioThreshold float64, onDisable func()) *Evaluator {
	e := &Evaluator{filter: f, enabled: true, rejectRatioThreshold: rejectRatioThreshold, onDisable: onDisable}
	if f.AlwaysTrue() {
		e.disable()
	}
	return e
}

func (e *Evaluator) disable() {
	if !e.enabled {
		return
	}
	e.enabled = false
	if e.onDisable != nil {
		e.onDisable()
	}
}

// Enabled reports whether this filter is still being applied. Disabling is
// monotone: once false, Enabled never reports true again.
func (e *Evaluator) Enabled() bool { return e.enabled }

// Eval applies the filter to v if still enabled, updating the rejection
// counters and performing the periodic selectivity check. It always returns
// true (row survives) once disabled.
func (e *Evaluator) Eval(v value.Value) bool {
	e.stats.TotalPossible++
	if !e.enabled {
		return true
	}
	e.stats.Considered++
	keep := e.filter.Eval(v)
	if !keep {
		e.stats.Rejected++
	}

	if e.stats.TotalPossible&(RowsPerFilterSelectivityCheck-1) == 0 {
		e.maybeDisable()
	}
	return keep
}

func (e *Evaluator) maybeDisable() {
	if e.stats.Considered == 0 {
		// §9 Open Question: a 0/0 ratio carries no evidence the filter is
		// unhelpful; do not disable on it.
		return
	}
	ratio := float64(e.stats.Rejected) / float64(e.stats.Considered)
	if ratio < e.rejectRatioThreshold {
		e.disable()
	}
}

// Snapshot returns a copy of the current counters, for diagnostics and tests.
func (e *Evaluator) Snapshot() Stats { return e.stats }
