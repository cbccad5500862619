package colreader

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// CollectionColumnReader assembles struct and repeated-group (array, map)
// values from its children's already-synchronized levels. It never decodes
// bytes itself; it only decides, from definition and repetition levels,
// which of its children's values belong to which assembled element.
//
// Children are kept in schema order. A ValueReader child contributes its
// CurrentSlot(); a nested CollectionReader child contributes its own
// ReadSlot(), which recursively performs the same assembly one level deeper.
type CollectionColumnReader struct {
	node     *schema.Node
	children []Reader

	curDef, curRep int8
}

func NewCollectionColumnReader(node *schema.Node, children []Reader) *CollectionColumnReader {
	return &CollectionColumnReader{
		node:     node,
		children: children,
		curDef:   Invalid,
		curRep:   Invalid,
	}
}

func (r *CollectionColumnReader) Node() *schema.Node   { return r.node }
func (r *CollectionColumnReader) MaxDefLevel() int8    { return int8(r.node.MaxDefLevel) }
func (r *CollectionColumnReader) MaxRepLevel() int8    { return int8(r.node.MaxRepLevel) }
func (r *CollectionColumnReader) DefLevel() int8       { return r.curDef }
func (r *CollectionColumnReader) RepLevel() int8       { return r.curRep }
func (r *CollectionColumnReader) NeedsSeeding() bool   { return true }

func (r *CollectionColumnReader) NumValuesRead() int64 {
	if len(r.children) == 0 {
		return 0
	}
	return r.children[0].NumValuesRead()
}

// Reset is a no-op: a CollectionColumnReader holds no stream state of its
// own. The row group assembler resets each leaf descendant directly with
// that leaf's own column chunk metadata.
func (r *CollectionColumnReader) Reset(meta *format.ColumnMetaData, stream bytestream.ByteStream, version fileversion.Version) error {
	return nil
}

// Children exposes this node's child readers in schema order, so external
// callers (the row group assembler building per-leaf column specs) can walk
// the tree to find leaf readers without this package exporting its internal
// assembly helpers.
func (r *CollectionColumnReader) Children() []Reader { return r.children }

func (r *CollectionColumnReader) Close() {
	for _, c := range r.children {
		c.Close()
	}
}

// NextLevels seeds every descendant reader by one step, without assembling a
// value. The row group assembler calls this once per row group before the
// first ReadSlot, per NeedsSeeding.
func (r *CollectionColumnReader) NextLevels() error {
	for _, c := range r.children {
		if err := c.NextLevels(); err != nil {
			return err
		}
	}
	r.refreshLevel()
	return nil
}

func (r *CollectionColumnReader) refreshLevel() {
	if len(r.children) == 0 {
		return
	}
	r.curDef = r.children[0].DefLevel()
	r.curRep = r.children[0].RepLevel()
}

// advanceLeaves steps only the non-collection children; collection children
// already advanced themselves inside their own ReadSlot call.
func (r *CollectionColumnReader) advanceLeaves() error {
	for _, c := range r.children {
		if _, isCollection := c.(CollectionReader); isCollection {
			continue
		}
		if err := c.NextLevels(); err != nil {
			return err
		}
	}
	r.refreshLevel()
	return nil
}

// ReadSlot implements §4.6's assemble_collection: it consumes the current
// (def, rep) pair already held by this node's children and returns either a
// null Slot (an ancestor collection was empty), an empty list (this
// collection itself is present but has zero elements), or a populated list
// (for a repeated node) or struct (otherwise).
func (r *CollectionColumnReader) ReadSlot() (value.Slot, error) {
	if r.curRep == RowGroupEnd {
		return value.Slot{}, errors.New("colreader: ReadSlot called at row group end")
	}

	if int(r.curDef) < int(r.node.DefLevelOfImmediateRepeatedAncestor) {
		// Nothing was built for this slot, so no descendant advanced
		// itself: step every child, collection or not, by one raw level
		// pair (NextLevels, not advanceLeaves).
		if err := r.NextLevels(); err != nil {
			return value.Slot{}, err
		}
		return value.NullSlot(), nil
	}

	if !r.node.IsRepeated() {
		if int(r.curDef) < int(r.node.MaxDefLevel) {
			if err := r.NextLevels(); err != nil {
				return value.Slot{}, err
			}
			return value.NullSlot(), nil
		}
		v, err := r.readOneElement()
		if err != nil {
			return value.Slot{}, err
		}
		if err := r.advanceLeaves(); err != nil {
			return value.Slot{}, err
		}
		return value.ValueSlot(v), nil
	}

	if int(r.curDef) < int(r.node.MaxDefLevel) {
		if err := r.NextLevels(); err != nil {
			return value.Slot{}, err
		}
		return value.ValueSlot(value.OfList(nil)), nil
	}

	var items []value.Value
	for {
		v, err := r.readOneElement()
		if err != nil {
			return value.Slot{}, err
		}
		items = append(items, v)
		if err := r.advanceLeaves(); err != nil {
			return value.Slot{}, err
		}
		if r.curRep != int8(r.node.MaxRepLevel) {
			break
		}
		if r.curRep == RowGroupEnd {
			break
		}
	}
	return value.ValueSlot(value.OfList(items)), nil
}

// ReadValueBatch fills up to len(out) rows by repeated ReadSlot calls,
// letting a CollectionColumnReader sit alongside scalar/bool leaf readers in
// the row group assembler's uniform per-column fill loop. posOut is unused:
// position slots are synthesized only for the ARRAY_POS leaf field, which is
// resolved to its own reader rather than folded into a collection's value.
func (r *CollectionColumnReader) ReadValueBatch(out []value.Slot, posOut []int64) (int, bool, error) {
	produced := 0
	for produced < len(out) {
		if r.curRep == RowGroupEnd {
			return produced, false, nil
		}
		slot, err := r.ReadSlot()
		if err != nil {
			return produced, false, err
		}
		out[produced] = slot
		produced++
	}
	return produced, r.curRep != RowGroupEnd, nil
}

// readOneElement builds one array element or one struct's field set from
// the children's currently held levels, without advancing anything.
func (r *CollectionColumnReader) readOneElement() (value.Value, error) {
	if r.node.IsRepeated() && len(r.children) == 1 {
		return r.childValue(r.children[0])
	}

	items := make([]value.Value, len(r.children))
	for i, c := range r.children {
		v, err := r.childValue(c)
		if err != nil {
			return value.Value{}, err
		}
		items[i] = v
	}
	return value.Value{Kind: value.KindStruct, Items: items}, nil
}

func (r *CollectionColumnReader) childValue(c Reader) (value.Value, error) {
	switch rc := c.(type) {
	case CollectionReader:
		slot, err := rc.ReadSlot()
		if err != nil {
			return value.Value{}, err
		}
		if slot.Null {
			return value.Null(), nil
		}
		return slot.Value, nil
	case ValueReader:
		slot, err := rc.CurrentSlot()
		if err != nil {
			return value.Value{}, err
		}
		if slot.Null {
			return value.Null(), nil
		}
		return slot.Value, nil
	default:
		return value.Value{}, errors.New("colreader: child is neither a ValueReader nor a CollectionReader")
	}
}
