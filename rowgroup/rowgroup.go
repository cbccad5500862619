// Package rowgroup selects, validates and assembles row groups: deciding
// which row groups belong to a scan split, validating each column chunk's
// declared byte range against the file length, and driving the column
// reader tree through one row group's worth of scratch-batch population and
// filter/conjunct evaluation.
package rowgroup

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
)

var (
	ErrColumnMetadataInvalid = errors.New("rowgroup: column chunk byte range is invalid")
	ErrGroupRowCountError    = errors.New("rowgroup: rows_read does not match row_group.num_rows")
	ErrNumColValsError       = errors.New("rowgroup: scalar readers disagree on num_values_read")
)

// parquetMrDictHeaderBugPad is the maximum slack (bytes) a parquet-mr writer
// older than 1.2.9 may have omitted from a column chunk's declared
// total_compressed_size, due to a known bug undercounting the dictionary
// page header.
const parquetMrDictHeaderBugPad = 100

// ColumnRange is one column chunk's validated, resolved byte range.
type ColumnRange struct {
	Start int64
	End   int64 // exclusive
}

// ValidateColumnRange implements §4.7 step 1 for one column chunk.
func ValidateColumnRange(meta *format.ColumnMetaData, version fileversion.Version, fileLength int64) (ColumnRange, error) {
	start := meta.DataPageOffset
	if meta.HasDictionaryPageOffset {
		start = meta.DictionaryPageOffset
		if start >= meta.DataPageOffset {
			return ColumnRange{}, errors.Wrap(ErrColumnMetadataInvalid, "rowgroup: dictionary page offset does not precede data page offset")
		}
	}
	end := start + meta.TotalCompressedSize

	tolerance := int64(0)
	if version.IsApplication("parquet-mr") && version.Lt(1, 2, 9) {
		tolerance = parquetMrDictHeaderBugPad
	}

	if start < 1 || end > fileLength+tolerance {
		return ColumnRange{}, errors.Wrapf(ErrColumnMetadataInvalid,
			"rowgroup: column range [%d,%d) outside file of length %d (tolerance %d)", start, end, fileLength, tolerance)
	}
	return ColumnRange{Start: start, End: end}, nil
}

// MidByteOffset computes the §4.7 mid-byte-offset used to decide which scan
// split owns a row group: the midpoint between the earliest column chunk
// start and the byte immediately past the last column chunk.
func MidByteOffset(rg *format.RowGroup) (int64, error) {
	if len(rg.Columns) == 0 {
		return 0, errors.New("rowgroup: row group has no columns")
	}
	start := int64(-1)
	end := int64(-1)
	for i := range rg.Columns {
		meta := &rg.Columns[i].MetaData
		colStart := meta.DataPageOffset
		if meta.HasDictionaryPageOffset {
			colStart = meta.DictionaryPageOffset
		}
		colEnd := meta.DataPageOffset + meta.TotalCompressedSize
		if start == -1 || colStart < start {
			start = colStart
		}
		if colEnd > end {
			end = colEnd
		}
	}
	return start + (end-start)/2, nil
}

// SelectRowGroups returns the indices of the row groups in rowGroups whose
// mid-byte-offset falls inside [splitStart, splitEnd), the set this scan
// split is responsible for.
func SelectRowGroups(rowGroups []format.RowGroup, splitStart, splitEnd int64) ([]int, error) {
	var selected []int
	for i := range rowGroups {
		mid, err := MidByteOffset(&rowGroups[i])
		if err != nil {
			return nil, err
		}
		if mid >= splitStart && mid < splitEnd {
			selected = append(selected, i)
		}
	}
	return selected, nil
}
