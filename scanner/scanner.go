// Package scanner wires the footer processor, schema resolver, column
// reader tree and row group assembler into the produced interface of §6: a
// stream of row batches pulled one row group at a time.
package scanner

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/colreader"
	"github.com/hexlake/pqscan/compress"
	"github.com/hexlake/pqscan/filter"
	"github.com/hexlake/pqscan/footer"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/internal/scanlog"
	"github.com/hexlake/pqscan/rowgroup"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// RangeOpener stands in for the IoManager AllocateScanRange/AddScanRanges
// protocol of §6: it issues one column chunk's byte range and returns a
// stream over it. scheduleImmediately mirrors add_scan_ranges's hint that
// every column of a row group should be requested together rather than
// demand-driven.
type RangeOpener func(start, end int64, scheduleImmediately bool) (bytestream.ByteStream, error)

// RequestedColumn is one projected output column: a logical path into the
// schema plus the default value to use if the file's schema turns out not
// to contain it (§4.9's "caller will NULL the slot in the template tuple").
// CharLen is nonzero when this column binds to a declared SQL CHAR(n) slot;
// the value is padded with spaces or truncated to exactly that length.
// CharLen is ignored for a path ending in schema.ArrayPos.
type RequestedColumn struct {
	Path    schema.RequestedPath
	Default value.Slot
	CharLen int
}

// Scanner reads one Parquet file's row groups falling inside one scan
// split, applying a column projection, statistics pruning, partition-level
// and per-row runtime filters, and conjuncts.
type Scanner struct {
	ctx    *scannerctx.Ctx
	codecs *compress.Registry
	open   RangeOpener

	ft       *footer.Footer
	tree     *schema.Tree
	resolver *schema.PathResolver

	columns          []RequestedColumn
	partitionFilters []filter.RuntimeFilter
	partitionValues  []value.Value
	rowFilterSpecs   []RowFilterSpec
	conjuncts        filter.ExprEvaluator
	stats            rowgroup.StatsEvaluator
	rowLimit         int64

	rowGroups []int
	cursor    int
}

// RowFilterSpec names the projected column (by index into columns) a
// per-row runtime filter probes.
type RowFilterSpec struct {
	ColumnIndex int
	Filter      filter.RuntimeFilter
}

// Options configures a Scanner beyond the mandatory column projection.
type Options struct {
	PartitionFilters []filter.RuntimeFilter
	PartitionValues  []value.Value
	RowFilters       []RowFilterSpec
	Conjuncts        filter.ExprEvaluator
	Statistics       rowgroup.StatsEvaluator
	RowLimit         int64
}

// Open reads the footer, resolves the schema tree, and selects the row
// groups whose mid-byte-offset falls in [splitStart, splitEnd).
func Open(ctx *scannerctx.Ctx, fs footer.FileSource, open RangeOpener, codecs *compress.Registry, columns []RequestedColumn, opts Options, splitStart, splitEnd int64) (*Scanner, error) {
	ft, err := footer.Read(fs)
	if err != nil {
		return nil, err
	}
	tree, err := schema.Build(ft.Meta.Schema)
	if err != nil {
		return nil, err
	}
	resolver := &schema.PathResolver{Tree: tree, Mode: ctx.Config.FallbackSchemaResolution}

	selected, err := rowgroup.SelectRowGroups(ft.Meta.RowGroups, splitStart, splitEnd)
	if err != nil {
		return nil, err
	}
	scanlog.Debugf(ctx.Logger, "scan opened", "row_groups_total", len(ft.Meta.RowGroups), "row_groups_selected", len(selected))

	return &Scanner{
		ctx:              ctx,
		codecs:           codecs,
		open:             open,
		ft:               ft,
		tree:             tree,
		resolver:         resolver,
		columns:          columns,
		partitionFilters: opts.PartitionFilters,
		partitionValues:  opts.PartitionValues,
		rowFilterSpecs:   opts.RowFilters,
		conjuncts:        opts.Conjuncts,
		stats:            opts.Statistics,
		rowLimit:         opts.RowLimit,
		rowGroups:        selected,
	}, nil
}

// NumRows returns file.num_rows, used by the pure-count fast path when the
// caller's projection selects zero columns.
func (s *Scanner) NumRows() int64 { return s.ft.NumRows() }

// Next returns the next row group's surviving tuples as an OutputBatch, or
// (nil, nil) once every selected row group has been processed.
func (s *Scanner) Next() (*rowgroup.OutputBatch, error) {
	for s.cursor < len(s.rowGroups) {
		idx := s.rowGroups[s.cursor]
		s.cursor++
		rg := &s.ft.Meta.RowGroups[idx]

		if !rowgroup.PruneByStatistics(rg, s.stats) {
			s.ctx.Metrics.IncRowGroupSkipped()
			scanlog.Debugf(s.ctx.Logger, "row group skipped by statistics", "row_group", idx)
			continue
		}

		out, err := s.assembleRowGroup(rg)
		if err != nil {
			s.ctx.SetParseError(err)
			if s.ctx.Config.AbortOnError {
				return nil, err
			}
			s.ctx.ResetParseError()
			s.ctx.Metrics.IncParseErrorIgnored()
			continue
		}
		s.ctx.Metrics.AddRowsRead(out.Len())
		return out, nil
	}
	return nil, nil
}

func (s *Scanner) assembleRowGroup(rg *format.RowGroup) (*rowgroup.OutputBatch, error) {
	specs := make([]rowgroup.ColumnSpec, len(s.columns))
	var readers []colreader.Reader

	for i, col := range s.columns {
		node, err := s.resolver.Resolve(col.Path)
		if errors.Is(err, schema.ErrMissingField) {
			specs[i] = rowgroup.ColumnSpec{Default: col.Default}
			continue
		}
		if err != nil {
			return nil, err
		}

		if isArrayPosPath(col.Path) {
			posNode, err := arrayPosLeaf(node)
			if err != nil {
				return nil, err
			}
			posReader, err := colreader.BuildPositionReader(s.ctx, posNode, s.codecs)
			if err != nil {
				return nil, err
			}
			if err := s.resetLeaves(posReader, rg); err != nil {
				return nil, err
			}
			specs[i] = rowgroup.ColumnSpec{Reader: asBatchFiller(posReader), Default: col.Default, WantPos: true}
			readers = append(readers, posReader)
			continue
		}

		charLen := col.CharLen
		reader, err := colreader.Build(s.ctx, node, s.codecs, createdByString(s.ft),
			func(leaf *schema.Node) bool { return true },
			func(leaf *schema.Node) int { return charLen },
			false)
		if err != nil {
			return nil, err
		}
		if err := s.resetLeaves(reader, rg); err != nil {
			return nil, err
		}
		specs[i] = rowgroup.ColumnSpec{Reader: asBatchFiller(reader), Default: col.Default}
		readers = append(readers, reader)
	}

	var rowFilters []rowgroup.ColumnFilter
	for _, rf := range s.rowFilterSpecs {
		colIndex := rf.ColumnIndex
		onDisable := func() {
			s.ctx.Metrics.IncFilterDisabled()
			scanlog.Debugf(s.ctx.Logger, "runtime filter auto-disabled", "column_index", colIndex)
		}
		rowFilters = append(rowFilters, rowgroup.ColumnFilter{
			ColumnIndex: colIndex,
			Evaluator:   filter.NewEvaluator(rf.Filter, s.ctx.Config.ParquetMinFilterRejectRatio, onDisable),
		})
	}

	asm := rowgroup.NewAssembler(s.ctx, specs, s.partitionFilters, s.partitionValues, rowFilters, s.conjuncts, s.rowLimit)
	// Next returns one row group's surviving rows per call, so the output
	// batch must hold up to rg.NumRows regardless of the scratch batch's
	// BatchSize-bounded internal chunking.
	capacity := s.ctx.Config.BatchSize
	if rg.NumRows > int64(capacity) {
		capacity = int(rg.NumRows)
	}
	out := rowgroup.NewOutputBatch(capacity)
	if err := asm.AssembleRowGroup(rg.NumRows, out); err != nil {
		return nil, err
	}
	return out, nil
}

// resetLeaves validates every leaf column chunk's byte range, opens its
// stream, and resets every leaf reader under r against its column chunk.
func (s *Scanner) resetLeaves(r colreader.Reader, rg *format.RowGroup) error {
	for _, leaf := range leavesOf(r) {
		colIdx := leaf.node().ColIdx
		meta := &rg.Columns[colIdx].MetaData
		rng, err := rowgroup.ValidateColumnRange(meta, s.ft.Version, s.ft.FileLength)
		if err != nil {
			return err
		}
		stream, err := s.open(rng.Start, rng.End, true)
		if err != nil {
			return errors.Wrap(err, "scanner: opening column byte range")
		}
		if err := leaf.reader().Reset(meta, stream, s.ft.Version); err != nil {
			return err
		}
	}
	return nil
}

func createdByString(ft *footer.Footer) string {
	if ft.Meta.HasCreatedBy {
		return ft.Meta.CreatedBy
	}
	return ""
}
