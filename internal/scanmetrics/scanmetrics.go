// Package scanmetrics declares the scanner's Prometheus counters, registered
// the way frostdb's compaction metrics are: one promauto.With(reg) block per
// metric, held in a struct rather than package globals so multiple scanners
// sharing a process can use separate registries.
package scanmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of counters a Scanner reports against. A nil *Metrics
// is valid everywhere it's consumed; every increment method is a no-op on a
// nil receiver.
type Metrics struct {
	RowsRead          prometheus.Counter
	RowGroupsSkipped  prometheus.Counter
	FiltersDisabled   prometheus.Counter
	ParseErrorsIgnored prometheus.Counter
}

// New registers a Metrics set against reg. Pass prometheus.NewRegistry() for
// an isolated registry, or prometheus.DefaultRegisterer to publish under the
// process-wide default.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RowsRead: f.NewCounter(prometheus.CounterOpts{
			Name: "pqscan_rows_read_total",
			Help: "Rows emitted by the scanner across all row groups.",
		}),
		RowGroupsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "pqscan_row_groups_skipped_total",
			Help: "Row groups skipped by statistics pruning.",
		}),
		FiltersDisabled: f.NewCounter(prometheus.CounterOpts{
			Name: "pqscan_runtime_filters_disabled_total",
			Help: "Runtime filters auto-disabled for low selectivity.",
		}),
		ParseErrorsIgnored: f.NewCounter(prometheus.CounterOpts{
			Name: "pqscan_parse_errors_ignored_total",
			Help: "Row groups skipped after a non-fatal decode error with abort_on_error disabled.",
		}),
	}
}

func (m *Metrics) addRowsRead(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RowsRead.Add(float64(n))
}

func (m *Metrics) incRowGroupSkipped() {
	if m == nil {
		return
	}
	m.RowGroupsSkipped.Inc()
}

func (m *Metrics) incFilterDisabled() {
	if m == nil {
		return
	}
	m.FiltersDisabled.Inc()
}

func (m *Metrics) incParseErrorIgnored() {
	if m == nil {
		return
	}
	m.ParseErrorsIgnored.Inc()
}

// AddRowsRead records n more emitted rows.
func (m *Metrics) AddRowsRead(n int) { m.addRowsRead(n) }

// IncRowGroupSkipped records one row group skipped by statistics pruning.
func (m *Metrics) IncRowGroupSkipped() { m.incRowGroupSkipped() }

// IncFilterDisabled records one runtime filter auto-disabling itself.
func (m *Metrics) IncFilterDisabled() { m.incFilterDisabled() }

// IncParseErrorIgnored records one row group skipped after a captured,
// non-fatal parse error.
func (m *Metrics) IncParseErrorIgnored() { m.incParseErrorIgnored() }
