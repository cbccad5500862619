package rowgroup

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/filter"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/value"
)

// StatsEvaluator is the consumed collaborator for §4.7 step 3's statistics
// pruning: given each column's raw {min, max} bytes, it reports whether the
// whole row group can be skipped.
type StatsEvaluator interface {
	EvalStatsConjuncts(stats []format.Statistics) bool
}

// PruneByStatistics reports whether rg should be processed (true) or skipped
// entirely (false) based on its columns' min/max statistics. A nil
// evaluator never prunes.
func PruneByStatistics(rg *format.RowGroup, ev StatsEvaluator) bool {
	if ev == nil {
		return true
	}
	stats := make([]format.Statistics, len(rg.Columns))
	for i := range rg.Columns {
		stats[i] = rg.Columns[i].MetaData.Statistics
	}
	return ev.EvalStatsConjuncts(stats)
}

// Assembler drives the §4.7 per-row-group assemble loop: seed, fill the
// scratch batch column by column, evaluate filters and conjuncts, and
// validate row/value-count invariants once the group is exhausted.
type Assembler struct {
	ctx *scannerctx.Ctx

	specs     []ColumnSpec
	scratch   *ScratchBatch
	rowFilter []ColumnFilter
	conjuncts filter.ExprEvaluator

	partitionFilters []filter.RuntimeFilter
	partitionValues  []value.Value

	rowLimit    int64
	rowsEmitted int64
}

func NewAssembler(ctx *scannerctx.Ctx, specs []ColumnSpec, partitionFilters []filter.RuntimeFilter, partitionValues []value.Value, rowFilter []ColumnFilter, conjuncts filter.ExprEvaluator, rowLimit int64) *Assembler {
	return &Assembler{
		ctx:              ctx,
		specs:            specs,
		scratch:          NewScratchBatch(ctx.Config.BatchSize, len(specs)),
		rowFilter:        rowFilter,
		conjuncts:        conjuncts,
		partitionFilters: partitionFilters,
		partitionValues:  partitionValues,
		rowLimit:         rowLimit,
	}
}

func (a *Assembler) reachedLimit() bool {
	return a.rowLimit > 0 && a.rowsEmitted >= a.rowLimit
}

// AssembleRowGroup implements §4.7 steps 4–6 against an already
// byte-range-validated, statistics-surviving row group. numRows is
// row_group.num_rows, used by the end-of-group row-count invariant.
func (a *Assembler) AssembleRowGroup(numRows int64, out *OutputBatch) error {
	for i, rf := range a.partitionFilters {
		if !rf.Eval(a.partitionValues[i]) {
			return nil
		}
	}

	for _, spec := range a.specs {
		if spec.Reader != nil && spec.Reader.NeedsSeeding() {
			if err := spec.Reader.NextLevels(); err != nil {
				return errors.Wrap(err, "rowgroup: seeding reader")
			}
		}
	}

	allNonRepeated := true
	for _, spec := range a.specs {
		if spec.Reader != nil && spec.Reader.MaxRepLevel() > 0 {
			allNonRepeated = false
		}
	}

	var rowsRead int64
	for {
		if a.ctx.Cancelled() {
			return scannerctx.ErrCancelled
		}
		if a.reachedLimit() {
			break
		}

		a.scratch.Reset(a.specs)
		n, more, err := a.scratch.Fill(a.specs, numRows-rowsRead)
		if err != nil {
			return err
		}
		if n == 0 && !more {
			break
		}

		lenBefore := out.Len()
		if err := TransferScratchTuples(a.scratch, len(a.specs), a.rowFilter, a.conjuncts, out); err != nil {
			return err
		}
		a.rowsEmitted += int64(out.Len() - lenBefore)
		rowsRead += int64(n)

		if !more {
			break
		}
	}

	if allNonRepeated && rowsRead != numRows {
		return errors.Wrapf(ErrGroupRowCountError, "rows_read=%d row_group.num_rows=%d", rowsRead, numRows)
	}

	ref := int64(-1)
	for _, spec := range a.specs {
		if spec.Reader == nil {
			continue
		}
		nv := spec.Reader.NumValuesRead()
		if ref == -1 {
			ref = nv
			continue
		}
		if nv != ref {
			return errors.Wrapf(ErrNumColValsError, "num_values_read mismatch: %d vs %d", nv, ref)
		}
	}
	return nil
}
