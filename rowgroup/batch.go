package rowgroup

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/colreader"
	"github.com/hexlake/pqscan/filter"
	"github.com/hexlake/pqscan/value"
)

// batchFiller is the subset of colreader.Reader every column slot's reader
// must implement to take part in scratch batch population: scalar, bool and
// collection readers all satisfy it.
type batchFiller interface {
	colreader.Reader
	ReadValueBatch(out []value.Slot, posOut []int64) (int, bool, error)
}

// ColumnSpec binds one output column slot to either a reader that decodes
// it from the file, or (Reader == nil) a constant Default carried from the
// template tuple — used for partition-key columns and for table columns the
// schema resolver reported missing from this particular file. WantPos marks
// an ARRAY_POS column: Reader decodes no values of its own, so Fill reads
// its posOut-driven position counter instead of a decoded value.Slot.
type ColumnSpec struct {
	Reader  batchFiller
	Default value.Slot
	WantPos bool
}

// ScratchBatch is the column-aligned staging buffer §4.7/§4.8 describe:
// populated one column at a time directly from the reader tree, then walked
// row-by-row by TransferScratchTuples for filter and conjunct evaluation.
type ScratchBatch struct {
	columns  [][]value.Slot
	capacity int
	n        int
	posBuf   []int64
}

func NewScratchBatch(capacity, numColumns int) *ScratchBatch {
	cols := make([][]value.Slot, numColumns)
	for i := range cols {
		cols[i] = make([]value.Slot, capacity)
	}
	return &ScratchBatch{columns: cols, capacity: capacity}
}

// Reset re-initializes every slot of every column to the template tuple's
// per-column default, ahead of each column reader overwriting what it
// actually decodes.
func (b *ScratchBatch) Reset(specs []ColumnSpec) {
	b.n = 0
	for c, col := range b.columns {
		d := specs[c].Default
		for i := range col {
			col[i] = d
		}
	}
}

// Fill drives every reader-backed column of specs through one
// ReadValueBatch call, requiring they all agree on how many tuples were
// produced (§4.7 step 5's "all readers must populate the same num_tuples").
// It returns that agreed count and whether any column reports more data
// remains in the row group.
//
// remaining is the number of rows left unread in the row group; it is
// consulted only when specs contains no reader-backed column (every
// requested column is a constant default, e.g. a partition key projected
// alone), since nothing else can report how many tuples to synthesize in
// that case.
func (b *ScratchBatch) Fill(specs []ColumnSpec, remaining int64) (n int, more bool, err error) {
	n = -1
	for i, spec := range specs {
		if spec.Reader == nil {
			continue
		}

		var produced int
		var hasMore bool
		var ferr error
		if spec.WantPos {
			if cap(b.posBuf) < b.capacity {
				b.posBuf = make([]int64, b.capacity)
			}
			posOut := b.posBuf[:b.capacity]
			produced, hasMore, ferr = spec.Reader.ReadValueBatch(nil, posOut)
			if ferr == nil {
				for j := 0; j < produced; j++ {
					b.columns[i][j] = value.ValueSlot(value.OfInt64(posOut[j]))
				}
			}
		} else {
			produced, hasMore, ferr = spec.Reader.ReadValueBatch(b.columns[i][:b.capacity], nil)
		}
		if ferr != nil {
			return 0, false, ferr
		}
		if n == -1 {
			n = produced
		} else if produced != n {
			return 0, false, errors.Wrapf(ErrNumColValsError, "column %d produced %d tuples, others produced %d", i, produced, n)
		}
		more = more || hasMore
	}
	if n == -1 {
		n = b.capacity
		if int64(n) > remaining {
			n = int(remaining)
		}
		if n < 0 {
			n = 0
		}
		more = int64(n) < remaining
	}
	b.n = n
	return n, more, nil
}

// NumTuples returns how many rows the most recent Fill populated.
func (b *ScratchBatch) NumTuples() int { return b.n }

// ColumnFilter binds a runtime filter to the scratch batch column it
// evaluates.
type ColumnFilter struct {
	ColumnIndex int
	Evaluator   *filter.Evaluator
}

// OutputBatch is the committed, post-predicate batch of surviving tuples.
// EmptyCount tracks rows represented with zero materialized columns (the
// FooterProcessor's pure-count path, and §4.8's tuple_byte_size == 0 case),
// kept separate from Rows rather than padding them with empty slices.
type OutputBatch struct {
	Rows       [][]value.Slot
	EmptyCount int
	Capacity   int
}

func NewOutputBatch(capacity int) *OutputBatch {
	return &OutputBatch{Capacity: capacity}
}

func (b *OutputBatch) Len() int { return len(b.Rows) + b.EmptyCount }

func (b *OutputBatch) Reset() {
	b.Rows = b.Rows[:0]
	b.EmptyCount = 0
}

var ErrOutputBatchFull = errors.New("rowgroup: output batch exceeds declared capacity")

func (b *OutputBatch) Append(row []value.Slot) error {
	if b.Len() >= b.Capacity {
		return ErrOutputBatchFull
	}
	b.Rows = append(b.Rows, row)
	return nil
}

func (b *OutputBatch) AppendEmpty(n int) error {
	if b.Len()+n > b.Capacity {
		return ErrOutputBatchFull
	}
	b.EmptyCount += n
	return nil
}

// TransferScratchTuples implements §4.8: for the pure-count case (no
// materialized columns) it copies a run of empty tuples with no predicate
// evaluation; otherwise it walks the scratch batch, evaluating runtime
// filters then conjuncts per row, appending survivors to out.
func TransferScratchTuples(scratch *ScratchBatch, numColumns int, filters []ColumnFilter, conjuncts filter.ExprEvaluator, out *OutputBatch) error {
	if numColumns == 0 {
		return out.AppendEmpty(scratch.n)
	}

	for i := 0; i < scratch.n; i++ {
		keep := true
		for _, cf := range filters {
			if !cf.Evaluator.Eval(scratch.columns[cf.ColumnIndex][i].Value) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}

		row := make([]value.Slot, numColumns)
		for c := 0; c < numColumns; c++ {
			row[c] = scratch.columns[c][i]
		}
		if conjuncts != nil && !conjuncts.EvalConjuncts(row) {
			continue
		}
		if err := out.Append(row); err != nil {
			return err
		}
	}
	return nil
}
