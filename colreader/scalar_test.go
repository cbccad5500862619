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

type thriftWriter struct {
	buf    []byte
	lastID int16
}

func (w *thriftWriter) putUvarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *thriftWriter) field(id int16, typ byte) {
	w.buf = append(w.buf, byte(id-w.lastID)<<4|typ)
	w.lastID = id
}

func (w *thriftWriter) i32(id int16, v int32) {
	w.field(id, 0x05)
	w.putUvarint(uint64(uint32((v << 1) ^ (v >> 31))))
}

func (w *thriftWriter) stop() { w.buf = append(w.buf, 0x00) }

func buildDataPageHeader(numValues int32, encoding format.Encoding) []byte {
	w := &thriftWriter{}
	w.i32(1, numValues)
	w.i32(2, int32(encoding))
	w.i32(3, int32(format.RLE))
	w.i32(4, int32(format.RLE))
	w.stop()
	return w.buf
}

func buildDictionaryPageHeader(numValues int32, encoding format.Encoding) []byte {
	w := &thriftWriter{}
	w.i32(1, numValues)
	w.i32(2, int32(encoding))
	w.stop()
	return w.buf
}

func buildPageHeader(typ format.PageType, uncompressedSize, compressedSize int32, nestedFieldID int16, nested []byte) []byte {
	w := &thriftWriter{}
	w.i32(1, int32(typ))
	w.i32(2, uncompressedSize)
	w.i32(3, compressedSize)
	if nested != nil {
		w.field(nestedFieldID, 0x0C)
		w.buf = append(w.buf, nested...)
	}
	w.stop()
	return w.buf
}

func int32PlainBody(values ...int32) []byte {
	buf := make([]byte, 0, 4*len(values))
	var b [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		buf = append(buf, b[:]...)
	}
	return buf
}

func requiredInt32LeafNode(t *testing.T) *schema.Node {
	t.Helper()
	elems := []format.SchemaElement{
		{Name: "root", HasRepetitionType: true, RepetitionType: format.Required, HasNumChildren: true, NumChildren: 1},
		{Name: "id", Type: format.Int32, HasRepetitionType: true, RepetitionType: format.Required},
	}
	tree, err := schema.Build(elems)
	if err != nil {
		t.Fatalf("schema.Build: %v", err)
	}
	return tree.Leaves[0]
}

func TestScalarColumnReaderPlainDataPage(t *testing.T) {
	node := requiredInt32LeafNode(t)
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	r := colreader.NewScalarColumnReader(ctx, node, compress.NewRegistry(), plain.DecodeInt32, value.OfInt32, nil)

	body := int32PlainBody(10, 20, 30)
	hdr := buildPageHeader(format.DataPage, int32(len(body)), int32(len(body)), 5, buildDataPageHeader(3, format.Plain))
	stream := bytestream.NewSlice(append(append([]byte{}, hdr...), body...), 0)

	meta := &format.ColumnMetaData{Type: format.Int32, Codec: format.Uncompressed, NumValues: 3}
	if err := r.Reset(meta, stream, fileversion.Version{}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	out := make([]value.Slot, 3)
	n, more, err := r.ReadValueBatch(out, nil)
	if err != nil {
		t.Fatalf("ReadValueBatch: %v", err)
	}
	if n != 3 || more {
		t.Fatalf("got (%d, %v), want (3, false)", n, more)
	}
	want := []int32{10, 20, 30}
	for i, w := range want {
		if out[i].Null || out[i].Value.Int32 != w {
			t.Errorf("out[%d] = %+v, want %d", i, out[i], w)
		}
	}
	if r.NumValuesRead() != 3 {
		t.Errorf("NumValuesRead() = %d, want 3", r.NumValuesRead())
	}
}

func TestScalarColumnReaderDictionaryEncoded(t *testing.T) {
	node := requiredInt32LeafNode(t)
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	r := colreader.NewScalarColumnReader(ctx, node, compress.NewRegistry(), plain.DecodeInt32, value.OfInt32, nil)

	dictBody := int32PlainBody(100, 200, 300)
	dictHdr := buildPageHeader(format.DictionaryPage, int32(len(dictBody)), int32(len(dictBody)), 7, buildDictionaryPageHeader(3, format.Plain))

	// index stream: bit width 2, three RLE runs of one index each: 0, 1, 2.
	dataBody := []byte{2, 2, 0, 2, 1, 2, 2}
	dataHdr := buildPageHeader(format.DataPage, int32(len(dataBody)), int32(len(dataBody)), 5, buildDataPageHeader(3, format.PlainDictionary))

	all := append(append([]byte{}, dictHdr...), dictBody...)
	all = append(all, dataHdr...)
	all = append(all, dataBody...)
	stream := bytestream.NewSlice(all, 0)

	meta := &format.ColumnMetaData{Type: format.Int32, Codec: format.Uncompressed, NumValues: 3}
	if err := r.Reset(meta, stream, fileversion.Version{}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	out := make([]value.Slot, 3)
	n, more, err := r.ReadValueBatch(out, nil)
	if err != nil {
		t.Fatalf("ReadValueBatch: %v", err)
	}
	if n != 3 || more {
		t.Fatalf("got (%d, %v), want (3, false)", n, more)
	}
	want := []int32{100, 200, 300}
	for i, w := range want {
		if out[i].Null || out[i].Value.Int32 != w {
			t.Errorf("out[%d] = %+v, want %d", i, out[i], w)
		}
	}
}

func TestScalarColumnReaderNextLevelsAndCurrentSlot(t *testing.T) {
	node := requiredInt32LeafNode(t)
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)
	r := colreader.NewScalarColumnReader(ctx, node, compress.NewRegistry(), plain.DecodeInt32, value.OfInt32, nil)

	body := int32PlainBody(7, 8)
	hdr := buildPageHeader(format.DataPage, int32(len(body)), int32(len(body)), 5, buildDataPageHeader(2, format.Plain))
	stream := bytestream.NewSlice(append(append([]byte{}, hdr...), body...), 0)

	meta := &format.ColumnMetaData{Type: format.Int32, Codec: format.Uncompressed, NumValues: 2}
	if err := r.Reset(meta, stream, fileversion.Version{}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	for _, want := range []int32{7, 8} {
		if err := r.NextLevels(); err != nil {
			t.Fatalf("NextLevels: %v", err)
		}
		if r.DefLevel() != 0 || r.RepLevel() != 0 {
			t.Fatalf("levels = (%d,%d), want (0,0) for a required top-level scalar", r.DefLevel(), r.RepLevel())
		}
		slot, err := r.CurrentSlot()
		if err != nil {
			t.Fatalf("CurrentSlot: %v", err)
		}
		if slot.Null || slot.Value.Int32 != want {
			t.Fatalf("CurrentSlot() = %+v, want %d", slot, want)
		}
	}

	if err := r.NextLevels(); err != nil {
		t.Fatalf("NextLevels at end: %v", err)
	}
	if r.RepLevel() != colreader.RowGroupEnd {
		t.Fatalf("RepLevel() = %d, want RowGroupEnd after the chunk is exhausted", r.RepLevel())
	}
}

func byteArrayPlainBody(values ...string) []byte {
	var buf []byte
	var lenBuf [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, v...)
	}
	return buf
}

func requiredByteArrayLeafNode(t *testing.T, name string) *schema.Node {
	t.Helper()
	elems := []format.SchemaElement{
		{Name: "root", HasRepetitionType: true, RepetitionType: format.Required, HasNumChildren: true, NumChildren: 1},
		{Name: name, Type: format.ByteArray, HasRepetitionType: true, RepetitionType: format.Required},
	}
	tree, err := schema.Build(elems)
	if err != nil {
		t.Fatalf("schema.Build: %v", err)
	}
	return tree.Leaves[0]
}

// TestBuildCharColumnPadsAndTruncates exercises the CHAR(n) slot conversion
// end to end through colreader.Build: a shorter value is right-padded with
// spaces to the declared length, a longer value is truncated to it.
func TestBuildCharColumnPadsAndTruncates(t *testing.T) {
	node := requiredByteArrayLeafNode(t, "name")
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil)

	reader, err := colreader.Build(ctx, node, compress.NewRegistry(), "",
		func(leaf *schema.Node) bool { return true },
		func(leaf *schema.Node) int { return 5 },
		false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	filler, ok := reader.(interface {
		ReadValueBatch(out []value.Slot, posOut []int64) (int, bool, error)
	})
	if !ok {
		t.Fatalf("reader %T does not implement ReadValueBatch", reader)
	}

	body := byteArrayPlainBody("ab", "abcdef")
	hdr := buildPageHeader(format.DataPage, int32(len(body)), int32(len(body)), 5, buildDataPageHeader(2, format.Plain))
	stream := bytestream.NewSlice(append(append([]byte{}, hdr...), body...), 0)

	meta := &format.ColumnMetaData{Type: format.ByteArray, Codec: format.Uncompressed, NumValues: 2}
	if err := reader.Reset(meta, stream, fileversion.Version{}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	out := make([]value.Slot, 2)
	n, more, err := filler.ReadValueBatch(out, nil)
	if err != nil {
		t.Fatalf("ReadValueBatch: %v", err)
	}
	if n != 2 || more {
		t.Fatalf("got (%d, %v), want (2, false)", n, more)
	}

	if out[0].Null || string(out[0].Value.Bytes) != "ab   " {
		t.Errorf("out[0] = %q, want %q (padded to 5 bytes)", out[0].Value.Bytes, "ab   ")
	}
	if out[1].Null || string(out[1].Value.Bytes) != "abcde" {
		t.Errorf("out[1] = %q, want %q (truncated to 5 bytes)", out[1].Value.Bytes, "abcde")
	}
}
