package rowgroup_test

import (
	"testing"

	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/rowgroup"
)

func col(dataOffset, dictOffset, compressedSize int64, hasDict bool) format.ColumnChunk {
	return format.ColumnChunk{
		MetaData: format.ColumnMetaData{
			DataPageOffset:          dataOffset,
			DictionaryPageOffset:    dictOffset,
			HasDictionaryPageOffset: hasDict,
			TotalCompressedSize:     compressedSize,
		},
	}
}

func TestValidateColumnRange(t *testing.T) {
	meta := &format.ColumnMetaData{DataPageOffset: 100, TotalCompressedSize: 50}
	rng, err := rowgroup.ValidateColumnRange(meta, fileversion.Version{}, 1000)
	if err != nil {
		t.Fatalf("ValidateColumnRange: %v", err)
	}
	if rng.Start != 100 || rng.End != 150 {
		t.Fatalf("got [%d,%d), want [100,150)", rng.Start, rng.End)
	}
}

func TestValidateColumnRangeDictBeforeData(t *testing.T) {
	meta := &format.ColumnMetaData{
		DataPageOffset:          50,
		DictionaryPageOffset:    100,
		HasDictionaryPageOffset: true,
		TotalCompressedSize:     10,
	}
	if _, err := rowgroup.ValidateColumnRange(meta, fileversion.Version{}, 1000); err == nil {
		t.Fatal("expected error: dictionary offset does not precede data offset")
	}
}

func TestValidateColumnRangeOutOfFile(t *testing.T) {
	meta := &format.ColumnMetaData{DataPageOffset: 900, TotalCompressedSize: 200}
	if _, err := rowgroup.ValidateColumnRange(meta, fileversion.Version{}, 1000); err == nil {
		t.Fatal("expected error: range exceeds file length")
	}
}

func TestValidateColumnRangeParquetMrTolerance(t *testing.T) {
	v := fileversion.Parse("parquet-mr version 1.2.8 (build abc)")
	meta := &format.ColumnMetaData{DataPageOffset: 950, TotalCompressedSize: 100}
	// end = 1050, exceeds file length 1000 by 50, within the 100-byte pad.
	if _, err := rowgroup.ValidateColumnRange(meta, v, 1000); err != nil {
		t.Fatalf("expected tolerance to absorb the 50-byte overrun, got %v", err)
	}

	v129 := fileversion.Parse("parquet-mr version 1.2.9 (build abc)")
	if _, err := rowgroup.ValidateColumnRange(meta, v129, 1000); err == nil {
		t.Fatal("expected no tolerance for parquet-mr 1.2.9, got success")
	}
}

func TestMidByteOffset(t *testing.T) {
	rg := &format.RowGroup{Columns: []format.ColumnChunk{
		col(100, 0, 50, false),  // [100, 150)
		col(200, 190, 60, true), // [190, 260)
	}}
	mid, err := rowgroup.MidByteOffset(rg)
	if err != nil {
		t.Fatalf("MidByteOffset: %v", err)
	}
	// start=100 (earliest), end=260 (latest) -> mid = 100 + (260-100)/2 = 180.
	if mid != 180 {
		t.Errorf("got %d, want 180", mid)
	}
}

func TestSelectRowGroups(t *testing.T) {
	rowGroups := []format.RowGroup{
		{Columns: []format.ColumnChunk{col(0, 0, 100, false)}},     // mid = 50
		{Columns: []format.ColumnChunk{col(1000, 0, 100, false)}},  // mid = 1050
		{Columns: []format.ColumnChunk{col(2000, 0, 100, false)}},  // mid = 2050
	}
	selected, err := rowgroup.SelectRowGroups(rowGroups, 1000, 2000)
	if err != nil {
		t.Fatalf("SelectRowGroups: %v", err)
	}
	if len(selected) != 1 || selected[0] != 1 {
		t.Fatalf("got %v, want [1]", selected)
	}
}

func TestSelectRowGroupsBoundaryIsHalfOpen(t *testing.T) {
	rowGroups := []format.RowGroup{
		{Columns: []format.ColumnChunk{col(0, 0, 2000, false)}}, // mid = 1000
	}
	selected, err := rowgroup.SelectRowGroups(rowGroups, 0, 1000)
	if err != nil {
		t.Fatalf("SelectRowGroups: %v", err)
	}
	if len(selected) != 0 {
		t.Fatalf("split end is exclusive: mid==splitEnd should not select, got %v", selected)
	}
	selected, err = rowgroup.SelectRowGroups(rowGroups, 1000, 2000)
	if err != nil {
		t.Fatalf("SelectRowGroups: %v", err)
	}
	if len(selected) != 1 {
		t.Fatalf("split start is inclusive: mid==splitStart should select, got %v", selected)
	}
}
