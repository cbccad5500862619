// Package colreader implements the per-column readers that drive a
// PageReader, level decoders and value decoders to materialize batches of
// tuples: ScalarColumnReader for leaf scalar columns, BoolColumnReader for
// the bit-packed BOOLEAN physical type, and CollectionColumnReader to
// synthesize nested list/map/struct boundaries from child readers' levels.
package colreader

import (
	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// Level sentinels, per §3's Invariants: rep_level in [0,max_rep]∪{-1,
// ROW_GROUP_END}; def_level in [0,max_def]∪{-1}.
const (
	Invalid     int8 = -1
	RowGroupEnd int8 = -2
)

// Reader is the capability every column reader variant implements.
type Reader interface {
	// NextLevels advances to the next (def, rep) pair, reading a new page
	// if the current one is exhausted. At row group end it sets RepLevel to
	// RowGroupEnd and DefLevel to Invalid.
	NextLevels() error
	DefLevel() int8
	RepLevel() int8
	MaxDefLevel() int8
	MaxRepLevel() int8
	// NeedsSeeding reports whether the assembler must call NextLevels once
	// before the first read of a row group. Leaf readers seed themselves
	// inside ReadValueBatch; only CollectionColumnReader needs an external
	// priming call, since ReadSlot assumes its children already hold their
	// first decoded levels.
	NeedsSeeding() bool
	Node() *schema.Node
	// Reset rebinds the reader to a new column chunk at the start of a row
	// group.
	Reset(meta *format.ColumnMetaData, stream bytestream.ByteStream, version fileversion.Version) error
	Close()
	NumValuesRead() int64
}

// ValueReader additionally produces materialized (or counted) value
// batches for non-collection leaf columns.
type ValueReader interface {
	Reader
	// ReadValueBatch fills up to len(out) slots (nil if this is a
	// counting-only reader dropped from the projection) and, if posOut is
	// non-nil, the ARRAY_POS position slot alongside each produced row.
	// It returns how many were produced and whether the row group has more
	// to read.
	ReadValueBatch(out []value.Slot, posOut []int64) (produced int, more bool, err error)
	// CurrentSlot decodes the value at the level most recently produced by
	// NextLevels, without advancing. CollectionColumnReader uses this to pull
	// one scalar child's value while assembling a struct or array element;
	// ReadValueBatch does not use it, since it decodes and advances in the
	// same step for its own bulk loop.
	CurrentSlot() (value.Slot, error)
}

// CollectionReader additionally synthesizes one collection Value per call
// from its children's already-advanced levels.
type CollectionReader interface {
	Reader
	ReadSlot() (value.Slot, error)
}
