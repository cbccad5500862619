package colreader_test

import (
	"encoding/binary"
	"testing"

	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/colreader"
	"github.com/hexlake/pqscan/compress"
	"github.com/hexlake/pqscan/encoding/plain"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// repeatedInt32ListNode builds a flat REPEATED group directly under the root
// message: one row's "list" column holds zero or more "element" values, with
// no optional wrapper above it (the list itself can never be null, only
// empty).
func repeatedInt32ListNode(t *testing.T) *schema.Node {
	t.Helper()
	elems := []format.SchemaElement{
		{Name: "root", HasRepetitionType: true, RepetitionType: format.Required, HasNumChildren: true, NumChildren: 1},
		{Name: "list", HasRepetitionType: true, RepetitionType: format.Repeated, HasNumChildren: true, NumChildren: 1},
		{Name: "element", Type: format.Int32, HasRepetitionType: true, RepetitionType: format.Required},
	}
	tree, err := schema.Build(elems)
	if err != nil {
		t.Fatalf("schema.Build: %v", err)
	}
	return tree.Root.Children[0]
}

// rleLevelRun encodes one RLE run (header = count<<1, followed by a single
// value byte, since every level byte width here fits in one byte).
func rleLevelRun(count, value byte) []byte { return []byte{count << 1, value} }

func lenPrefixed(body []byte) []byte {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(body)))
	return append(prefix[:], body...)
}

func TestCollectionColumnReaderRepeatedLeaf(t *testing.T) {
	node := repeatedInt32ListNode(t)
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	element := colreader.NewScalarColumnReader(ctx, node.Children[0], compress.NewRegistry(), plain.DecodeInt32, value.OfInt32, nil)
	coll := colreader.NewCollectionColumnReader(node, []colreader.Reader{element})

	// Three logical rows: list=[10,20], list=[], list=[30]. Definition levels
	// (max 1): 1,1,0,1. Repetition levels (max 1): 0,1,0,0.
	var repBody []byte
	repBody = append(repBody, rleLevelRun(1, 0)...)
	repBody = append(repBody, rleLevelRun(1, 1)...)
	repBody = append(repBody, rleLevelRun(2, 0)...)

	var defBody []byte
	defBody = append(defBody, rleLevelRun(2, 1)...)
	defBody = append(defBody, rleLevelRun(1, 0)...)
	defBody = append(defBody, rleLevelRun(1, 1)...)

	values := int32PlainBody(10, 20, 30)

	body := append([]byte{}, lenPrefixed(repBody)...)
	body = append(body, lenPrefixed(defBody)...)
	body = append(body, values...)

	hdr := buildPageHeader(format.DataPage, int32(len(body)), int32(len(body)), 5, buildDataPageHeader(4, format.Plain))
	stream := bytestream.NewSlice(append(append([]byte{}, hdr...), body...), 0)

	meta := &format.ColumnMetaData{Type: format.Int32, Codec: format.Uncompressed, NumValues: 4}
	if err := element.Reset(meta, stream, fileversion.Version{}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if err := coll.NextLevels(); err != nil {
		t.Fatalf("NextLevels (seed): %v", err)
	}

	out := make([]value.Slot, 3)
	n, more, err := coll.ReadValueBatch(out, nil)
	if err != nil {
		t.Fatalf("ReadValueBatch: %v", err)
	}
	if n != 3 || more {
		t.Fatalf("got (%d, %v), want (3, false)", n, more)
	}

	wantLists := [][]int32{{10, 20}, {}, {30}}
	for i, want := range wantLists {
		slot := out[i]
		if slot.Null {
			t.Fatalf("row %d: got null, want a list", i)
		}
		if slot.Value.Kind != value.KindList {
			t.Fatalf("row %d: Kind = %v, want KindList", i, slot.Value.Kind)
		}
		if len(slot.Value.Items) != len(want) {
			t.Fatalf("row %d: got %d items, want %d", i, len(slot.Value.Items), len(want))
		}
		for j, wv := range want {
			if slot.Value.Items[j].Int32 != wv {
				t.Errorf("row %d item %d = %d, want %d", i, j, slot.Value.Items[j].Int32, wv)
			}
		}
	}
}

// requiredStructOfTwoInt32Node builds a required group "point" with two
// required int32 leaves, neither optional nor repeated, to exercise the
// non-repeated (struct) branch of ReadSlot.
func requiredStructOfTwoInt32Node(t *testing.T) *schema.Node {
	t.Helper()
	elems := []format.SchemaElement{
		{Name: "root", HasRepetitionType: true, RepetitionType: format.Required, HasNumChildren: true, NumChildren: 1},
		{Name: "point", HasRepetitionType: true, RepetitionType: format.Required, HasNumChildren: true, NumChildren: 2},
		{Name: "x", Type: format.Int32, HasRepetitionType: true, RepetitionType: format.Required},
		{Name: "y", Type: format.Int32, HasRepetitionType: true, RepetitionType: format.Required},
	}
	tree, err := schema.Build(elems)
	if err != nil {
		t.Fatalf("schema.Build: %v", err)
	}
	return tree.Root.Children[0]
}

func singleValueStream(t *testing.T, v int32) bytestream.ByteStream {
	t.Helper()
	body := int32PlainBody(v)
	hdr := buildPageHeader(format.DataPage, int32(len(body)), int32(len(body)), 5, buildDataPageHeader(1, format.Plain))
	return bytestream.NewSlice(append(append([]byte{}, hdr...), body...), 0)
}

// nestedListOfListNode builds a list-of-list schema two REPEATED groups deep:
// "matrix" repeated, each element itself a "row" repeated group, each row
// holding required int32 "value" leaves. This is the MaxRepLevel=2 shape no
// other fixture in this package exercises: both the leaf's own definition
// level (present/absent) and which of the two repeated ancestors restarted
// for a given physical value.
func nestedListOfListNode(t *testing.T) *schema.Node {
	t.Helper()
	elems := []format.SchemaElement{
		{Name: "root", HasRepetitionType: true, RepetitionType: format.Required, HasNumChildren: true, NumChildren: 1},
		{Name: "matrix", HasRepetitionType: true, RepetitionType: format.Repeated, HasNumChildren: true, NumChildren: 1},
		{Name: "row", HasRepetitionType: true, RepetitionType: format.Repeated, HasNumChildren: true, NumChildren: 1},
		{Name: "value", Type: format.Int32, HasRepetitionType: true, RepetitionType: format.Required},
	}
	tree, err := schema.Build(elems)
	if err != nil {
		t.Fatalf("schema.Build: %v", err)
	}
	return tree.Root.Children[0]
}

// TestCollectionColumnReaderNestedLists exercises a collection nested two
// repeated groups deep (MaxRepLevel=2), including a matrix row that is itself
// an empty list and a matrix that has no rows at all — the "nested empty
// collections" boundary no flat single-level fixture can reach.
func TestCollectionColumnReaderNestedLists(t *testing.T) {
	matrixNode := nestedListOfListNode(t)
	rowNode := matrixNode.Children[0]
	leafNode := rowNode.Children[0]

	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	leafReader := colreader.NewScalarColumnReader(ctx, leafNode, compress.NewRegistry(), plain.DecodeInt32, value.OfInt32, nil)
	rowColl := colreader.NewCollectionColumnReader(rowNode, []colreader.Reader{leafReader})
	matrixColl := colreader.NewCollectionColumnReader(matrixNode, []colreader.Reader{rowColl})

	// Three logical rows:
	//   matrix = [[10, 20], [30]]   (two rows, the first with two values)
	//   matrix = []                 (no rows at all)
	//   matrix = [[]]               (one row, itself empty)
	//
	// Definition levels (max 2): 2,2,2,0,1. Repetition levels (max 2):
	// 0,2,1,0,0. Only the three def=2 entries carry a physical value.
	var repBody []byte
	repBody = append(repBody, rleLevelRun(1, 0)...)
	repBody = append(repBody, rleLevelRun(1, 2)...)
	repBody = append(repBody, rleLevelRun(1, 1)...)
	repBody = append(repBody, rleLevelRun(2, 0)...)

	var defBody []byte
	defBody = append(defBody, rleLevelRun(3, 2)...)
	defBody = append(defBody, rleLevelRun(1, 0)...)
	defBody = append(defBody, rleLevelRun(1, 1)...)

	values := int32PlainBody(10, 20, 30)

	body := append([]byte{}, lenPrefixed(repBody)...)
	body = append(body, lenPrefixed(defBody)...)
	body = append(body, values...)

	hdr := buildPageHeader(format.DataPage, int32(len(body)), int32(len(body)), 5, buildDataPageHeader(5, format.Plain))
	stream := bytestream.NewSlice(append(append([]byte{}, hdr...), body...), 0)

	meta := &format.ColumnMetaData{Type: format.Int32, Codec: format.Uncompressed, NumValues: 5}
	if err := leafReader.Reset(meta, stream, fileversion.Version{}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if err := matrixColl.NextLevels(); err != nil {
		t.Fatalf("NextLevels (seed): %v", err)
	}

	out := make([]value.Slot, 3)
	n, more, err := matrixColl.ReadValueBatch(out, nil)
	if err != nil {
		t.Fatalf("ReadValueBatch: %v", err)
	}
	if n != 3 || more {
		t.Fatalf("got (%d, %v), want (3, false)", n, more)
	}

	row0 := out[0]
	if row0.Null || row0.Value.Kind != value.KindList || len(row0.Value.Items) != 2 {
		t.Fatalf("row 0 = %+v, want a 2-element list", row0)
	}
	inner0, inner1 := row0.Value.Items[0], row0.Value.Items[1]
	if inner0.Kind != value.KindList || len(inner0.Items) != 2 || inner0.Items[0].Int32 != 10 || inner0.Items[1].Int32 != 20 {
		t.Fatalf("row 0 element 0 = %+v, want [10, 20]", inner0)
	}
	if inner1.Kind != value.KindList || len(inner1.Items) != 1 || inner1.Items[0].Int32 != 30 {
		t.Fatalf("row 0 element 1 = %+v, want [30]", inner1)
	}

	row1 := out[1]
	if row1.Null || row1.Value.Kind != value.KindList || len(row1.Value.Items) != 0 {
		t.Fatalf("row 1 = %+v, want an empty list", row1)
	}

	row2 := out[2]
	if row2.Null || row2.Value.Kind != value.KindList || len(row2.Value.Items) != 1 {
		t.Fatalf("row 2 = %+v, want a 1-element list", row2)
	}
	if row2.Value.Items[0].Kind != value.KindList || len(row2.Value.Items[0].Items) != 0 {
		t.Fatalf("row 2 element 0 = %+v, want an empty list", row2.Value.Items[0])
	}
}

func TestCollectionColumnReaderStruct(t *testing.T) {
	node := requiredStructOfTwoInt32Node(t)
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	xReader := colreader.NewScalarColumnReader(ctx, node.Children[0], compress.NewRegistry(), plain.DecodeInt32, value.OfInt32, nil)
	yReader := colreader.NewScalarColumnReader(ctx, node.Children[1], compress.NewRegistry(), plain.DecodeInt32, value.OfInt32, nil)
	coll := colreader.NewCollectionColumnReader(node, []colreader.Reader{xReader, yReader})

	meta := &format.ColumnMetaData{Type: format.Int32, Codec: format.Uncompressed, NumValues: 1}
	if err := xReader.Reset(meta, singleValueStream(t, 100), fileversion.Version{}); err != nil {
		t.Fatalf("x Reset: %v", err)
	}
	if err := yReader.Reset(meta, singleValueStream(t, 200), fileversion.Version{}); err != nil {
		t.Fatalf("y Reset: %v", err)
	}

	if err := coll.NextLevels(); err != nil {
		t.Fatalf("NextLevels (seed): %v", err)
	}

	slot, err := coll.ReadSlot()
	if err != nil {
		t.Fatalf("ReadSlot: %v", err)
	}
	if slot.Null || slot.Value.Kind != value.KindStruct {
		t.Fatalf("ReadSlot() = %+v, want a populated struct", slot)
	}
	if len(slot.Value.Items) != 2 || slot.Value.Items[0].Int32 != 100 || slot.Value.Items[1].Int32 != 200 {
		t.Fatalf("struct items = %+v, want [100, 200]", slot.Value.Items)
	}
}
