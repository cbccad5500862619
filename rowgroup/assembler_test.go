package rowgroup_test

import (
	"testing"

	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/rowgroup"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// fakeLeafReader is a minimal colreader.Reader + ReadValueBatch
// implementation, standing in for a real scalar/bool column reader in tests
// that only exercise rowgroup's batching and assembly logic.
type fakeLeafReader struct {
	rows []value.Slot
	pos  int
	read int64
}

func (f *fakeLeafReader) NextLevels() error                                  { return nil }
func (f *fakeLeafReader) DefLevel() int8                                     { return 0 }
func (f *fakeLeafReader) RepLevel() int8                                     { return 0 }
func (f *fakeLeafReader) MaxDefLevel() int8                                  { return 0 }
func (f *fakeLeafReader) MaxRepLevel() int8                                  { return 0 }
func (f *fakeLeafReader) NeedsSeeding() bool                                 { return false }
func (f *fakeLeafReader) Node() *schema.Node                                 { return nil }
func (f *fakeLeafReader) Close()                                             {}
func (f *fakeLeafReader) NumValuesRead() int64                               { return f.read }
func (f *fakeLeafReader) Reset(*format.ColumnMetaData, bytestream.ByteStream, fileversion.Version) error {
	return nil
}

func (f *fakeLeafReader) ReadValueBatch(out []value.Slot, posOut []int64) (int, bool, error) {
	n := 0
	for n < len(out) && f.pos < len(f.rows) {
		out[n] = f.rows[f.pos]
		f.pos++
		f.read++
		n++
	}
	return n, f.pos < len(f.rows), nil
}

func slots(vs ...int32) []value.Slot {
	out := make([]value.Slot, len(vs))
	for i, v := range vs {
		out[i] = value.ValueSlot(value.OfInt32(v))
	}
	return out
}

func TestScratchBatchFillAgreement(t *testing.T) {
	a := &fakeLeafReader{rows: slots(1, 2, 3)}
	b := &fakeLeafReader{rows: slots(10, 20)}
	specs := []rowgroup.ColumnSpec{{Reader: a}, {Reader: b}}

	batch := rowgroup.NewScratchBatch(8, 2)
	batch.Reset(specs)
	if _, _, err := batch.Fill(specs, 3); err == nil {
		t.Fatal("expected column count disagreement error (3 vs 2 rows)")
	}
}

func TestScratchBatchFillAndTransfer(t *testing.T) {
	a := &fakeLeafReader{rows: slots(1, 2, 3)}
	b := &fakeLeafReader{rows: slots(10, 20, 30)}
	specs := []rowgroup.ColumnSpec{{Reader: a}, {Reader: b}}

	batch := rowgroup.NewScratchBatch(8, 2)
	batch.Reset(specs)
	n, more, err := batch.Fill(specs, 3)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if n != 3 || more {
		t.Fatalf("Fill = %d, %v, want 3, false", n, more)
	}

	out := rowgroup.NewOutputBatch(8)
	if err := rowgroup.TransferScratchTuples(batch, 2, nil, nil, out); err != nil {
		t.Fatalf("TransferScratchTuples: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("out.Len() = %d, want 3", out.Len())
	}
	if out.Rows[1][0].Value.Int32 != 2 || out.Rows[1][1].Value.Int32 != 20 {
		t.Fatalf("unexpected row: %+v", out.Rows[1])
	}
}

func TestTransferScratchTuplesZeroColumnsFastPath(t *testing.T) {
	// With no reader-backed column (here: no columns at all), Fill has
	// nothing to drive a row count from, so it synthesizes one from
	// remaining, capped at the batch's capacity.
	batch := rowgroup.NewScratchBatch(8, 0)
	batch.Reset(nil)
	n, more, err := batch.Fill(nil, 20)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if n != 8 || !more {
		t.Fatalf("Fill(nil, 20) = %d, %v, want 8, true (capacity-bounded chunk)", n, more)
	}

	out := rowgroup.NewOutputBatch(8)
	if err := rowgroup.TransferScratchTuples(batch, 0, nil, nil, out); err != nil {
		t.Fatalf("TransferScratchTuples: %v", err)
	}
	if out.EmptyCount != 8 {
		t.Fatalf("EmptyCount = %d, want 8", out.EmptyCount)
	}
}

func TestAssembleRowGroupPureCountPath(t *testing.T) {
	// Stays within one scratch-fill chunk: the output batch is still
	// capacity-bounded to ctx.Config.BatchSize, independent of this fix.
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	asm := rowgroup.NewAssembler(ctx, nil, nil, nil, nil, nil, 0)

	out := rowgroup.NewOutputBatch(ctx.Config.BatchSize)
	if err := asm.AssembleRowGroup(500, out); err != nil {
		t.Fatalf("AssembleRowGroup: %v", err)
	}
	if out.Len() != 500 {
		t.Fatalf("out.Len() = %d, want 500", out.Len())
	}
	if out.EmptyCount != 500 || len(out.Rows) != 0 {
		t.Fatalf("expected all 500 rows represented as EmptyCount, got EmptyCount=%d len(Rows)=%d", out.EmptyCount, len(out.Rows))
	}
}

func TestAssembleRowGroupConstantOnlyColumns(t *testing.T) {
	// A column spec with no Reader (e.g. a partition key projected alone)
	// carries a constant Default repeated for every row; Fill must still
	// learn the row count from the group's declared numRows rather than
	// stalling at zero.
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	specs := []rowgroup.ColumnSpec{{Default: value.ValueSlot(value.OfInt32(7))}}
	asm := rowgroup.NewAssembler(ctx, specs, nil, nil, nil, nil, 0)

	out := rowgroup.NewOutputBatch(ctx.Config.BatchSize)
	if err := asm.AssembleRowGroup(4, out); err != nil {
		t.Fatalf("AssembleRowGroup: %v", err)
	}
	if out.Len() != 4 {
		t.Fatalf("out.Len() = %d, want 4", out.Len())
	}
	for _, row := range out.Rows {
		if row[0].Value.Int32 != 7 {
			t.Fatalf("unexpected row: %+v", row)
		}
	}
}

func TestAssembleRowGroupRowCountMismatch(t *testing.T) {
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	a := &fakeLeafReader{rows: slots(1, 2, 3)}
	specs := []rowgroup.ColumnSpec{{Reader: a}}
	asm := rowgroup.NewAssembler(ctx, specs, nil, nil, nil, nil, 0)

	out := rowgroup.NewOutputBatch(ctx.Config.BatchSize)
	// row_group.num_rows disagrees with the 3 rows the reader actually
	// produced.
	if err := asm.AssembleRowGroup(5, out); err == nil {
		t.Fatal("expected ErrGroupRowCountError")
	}
}

func TestAssembleRowGroupSuccess(t *testing.T) {
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	a := &fakeLeafReader{rows: slots(1, 2, 3)}
	b := &fakeLeafReader{rows: slots(10, 20, 30)}
	specs := []rowgroup.ColumnSpec{{Reader: a}, {Reader: b}}
	asm := rowgroup.NewAssembler(ctx, specs, nil, nil, nil, nil, 0)

	out := rowgroup.NewOutputBatch(ctx.Config.BatchSize)
	if err := asm.AssembleRowGroup(3, out); err != nil {
		t.Fatalf("AssembleRowGroup: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("out.Len() = %d, want 3", out.Len())
	}
}

func TestAssembleRowGroupNumValuesMismatch(t *testing.T) {
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	a := &fakeLeafReader{rows: slots(1, 2, 3)}
	b := &fakeLeafReader{rows: slots(10, 20, 30), read: 1}
	specs := []rowgroup.ColumnSpec{{Reader: a}, {Reader: b}}
	asm := rowgroup.NewAssembler(ctx, specs, nil, nil, nil, nil, 0)

	out := rowgroup.NewOutputBatch(ctx.Config.BatchSize)
	if err := asm.AssembleRowGroup(3, out); err == nil {
		t.Fatal("expected ErrNumColValsError: readers disagree on num_values_read")
	}
}
