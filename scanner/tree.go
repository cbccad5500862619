package scanner

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/colreader"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// readerWithBatch is the structural shape rowgroup.ColumnSpec.Reader
// requires: a colreader.Reader that also bulk-fills value slots. Every
// concrete reader this package constructs (scalar, bool, collection)
// satisfies it.
type readerWithBatch interface {
	colreader.Reader
	ReadValueBatch(out []value.Slot, posOut []int64) (int, bool, error)
}

func asBatchFiller(r colreader.Reader) readerWithBatch {
	return r.(readerWithBatch)
}

type leafHandle struct {
	n *schema.Node
	r readerWithBatch
}

func (h leafHandle) node() *schema.Node   { return h.n }
func (h leafHandle) reader() readerWithBatch { return h.r }

// leavesOf walks r, descending through every CollectionColumnReader to
// collect the leaf scalar/bool readers that actually own a column chunk's
// byte stream.
func leavesOf(r colreader.Reader) []leafHandle {
	if coll, ok := r.(*colreader.CollectionColumnReader); ok {
		var out []leafHandle
		for _, child := range coll.Children() {
			out = append(out, leavesOf(child)...)
		}
		return out
	}
	return []leafHandle{{n: r.Node(), r: asBatchFiller(r)}}
}

// isArrayPosPath reports whether path requests the artificial ARRAY_POS
// position field rather than the array's elements. ARRAY_POS has no
// SchemaNode of its own, so it is always the terminal step.
func isArrayPosPath(path schema.RequestedPath) bool {
	return len(path) > 0 && path[len(path)-1] == schema.ArrayPos
}

// arrayPosLeaf finds the scalar column whose own repetition level stream
// drives the array's position counter. resolved is whatever PathResolver
// returned for the ARRAY_POS step: the repeated node itself for a one- or
// two-level encoding (already a leaf), or the three-level encoding's single
// wrapping group one level above its "element" leaf.
func arrayPosLeaf(resolved *schema.Node) (*schema.Node, error) {
	if resolved.IsLeaf() {
		return resolved, nil
	}
	if len(resolved.Children) == 1 && resolved.Children[0].IsLeaf() {
		return resolved.Children[0], nil
	}
	return nil, errors.Newf("scanner: ARRAY_POS is only supported for arrays of scalars, got group %q", resolved.Element.Name)
}
