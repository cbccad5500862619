package format

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/encoding/thrift"
)

// ErrShortBuffer is returned when buf ends before the struct's STOP marker,
// the signal page.Reader's peek-and-retry loop watches for.
var ErrShortBuffer = errors.New("format: unexpected end of buffer decoding thrift value")

var protocol thrift.CompactProtocol

// decode runs v through the compact-protocol decoder and reports how many
// bytes of buf the struct actually occupied, the way the old hand-rolled
// decoder's d.pos did: callers that only have a lower-bound guess on a
// struct's length (page headers peeked off the front of a page) rely on
// that count to locate the body that follows.
func decode(buf []byte, v interface{}) (int, error) {
	r := bytes.NewReader(buf)
	if err := thrift.NewDecoder(protocol.NewReader(r)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrShortBuffer
		}
		return 0, err
	}
	return len(buf) - r.Len(), nil
}

// wireStatistics mirrors the Statistics struct's compact-protocol field ids.
// Counts are pointers so decode tells us whether they were present at all;
// everything else folds back into Statistics's HasX flags below.
type wireStatistics struct {
	Max           []byte `thrift:"1,optional"`
	Min           []byte `thrift:"2,optional"`
	NullCount     *int64 `thrift:"3,optional"`
	DistinctCount *int64 `thrift:"4,optional"`
	MaxValue      []byte `thrift:"5,optional"`
	MinValue      []byte `thrift:"6,optional"`
}

func (w *wireStatistics) into() Statistics {
	s := Statistics{Max: w.Max, Min: w.Min, MaxValue: w.MaxValue, MinValue: w.MinValue}
	if w.NullCount != nil {
		s.NullCount, s.HasNullCount = *w.NullCount, true
	}
	if w.DistinctCount != nil {
		s.DistinctCount, s.HasDistinctCount = *w.DistinctCount, true
	}
	return s
}

type wireKeyValue struct {
	Key   string `thrift:"1,required"`
	Value string `thrift:"2,optional"`
}

func (kv wireKeyValue) into() KeyValue { return KeyValue{Key: kv.Key, Value: kv.Value} }

type wireSchemaElement struct {
	Type           *int32  `thrift:"1,optional"`
	TypeLength     *int32  `thrift:"2,optional"`
	RepetitionType *int32  `thrift:"3,optional"`
	Name           string  `thrift:"4,required"`
	NumChildren    *int32  `thrift:"5,optional"`
	ConvertedType  *int32  `thrift:"6,optional"`
	Scale          *int32  `thrift:"7,optional"`
	Precision      *int32  `thrift:"8,optional"`
}

func (w wireSchemaElement) into() SchemaElement {
	e := SchemaElement{Name: w.Name}
	if w.Type != nil {
		e.Type = Type(*w.Type)
	}
	if w.TypeLength != nil {
		e.TypeLength, e.HasTypeLength = *w.TypeLength, true
	}
	if w.RepetitionType != nil {
		e.RepetitionType, e.HasRepetitionType = FieldRepetitionType(*w.RepetitionType), true
	}
	if w.NumChildren != nil {
		e.NumChildren, e.HasNumChildren = *w.NumChildren, true
	}
	if w.ConvertedType != nil {
		e.ConvertedType, e.HasConvertedType = ConvertedType(*w.ConvertedType), true
	}
	if w.Scale != nil {
		e.Scale, e.HasScale = *w.Scale, true
	}
	if w.Precision != nil {
		e.Precision, e.HasPrecision = *w.Precision, true
	}
	return e
}

type wireColumnMetaData struct {
	Type                  int32           `thrift:"1,required"`
	Encodings             []int32         `thrift:"2,required"`
	PathInSchema          []string        `thrift:"3,required"`
	Codec                 int32           `thrift:"4,required"`
	NumValues             int64           `thrift:"5,required"`
	TotalUncompressedSize int64           `thrift:"6,required"`
	TotalCompressedSize   int64           `thrift:"7,required"`
	KeyValueMetadata      []wireKeyValue  `thrift:"8,optional"`
	DataPageOffset        int64           `thrift:"9,required"`
	DictionaryPageOffset  *int64          `thrift:"11,optional"`
	Statistics            *wireStatistics `thrift:"12,optional"`
}

func (w wireColumnMetaData) into() ColumnMetaData {
	c := ColumnMetaData{
		Type:                  Type(w.Type),
		PathInSchema:          w.PathInSchema,
		Codec:                 CompressionCodec(w.Codec),
		NumValues:             w.NumValues,
		TotalUncompressedSize: w.TotalUncompressedSize,
		TotalCompressedSize:   w.TotalCompressedSize,
		DataPageOffset:        w.DataPageOffset,
	}
	for _, e := range w.Encodings {
		c.Encodings = append(c.Encodings, Encoding(e))
	}
	for _, kv := range w.KeyValueMetadata {
		c.KeyValueMetadata = append(c.KeyValueMetadata, kv.into())
	}
	if w.DictionaryPageOffset != nil {
		c.DictionaryPageOffset, c.HasDictionaryPageOffset = *w.DictionaryPageOffset, true
	}
	if w.Statistics != nil {
		c.Statistics, c.HasStatistics = w.Statistics.into(), true
	}
	return c
}

type wireColumnChunk struct {
	FilePath string             `thrift:"1,optional"`
	FileOffset int64            `thrift:"2,optional"`
	MetaData   wireColumnMetaData `thrift:"3,optional"`
}

func (w wireColumnChunk) into() ColumnChunk {
	return ColumnChunk{FilePath: w.FilePath, FileOffset: w.FileOffset, MetaData: w.MetaData.into()}
}

type wireRowGroup struct {
	Columns      []wireColumnChunk `thrift:"1,required"`
	TotalByteSize int64            `thrift:"2,required"`
	NumRows      int64             `thrift:"3,required"`
}

func (w wireRowGroup) into() RowGroup {
	rg := RowGroup{TotalByteSize: w.TotalByteSize, NumRows: w.NumRows}
	for _, c := range w.Columns {
		rg.Columns = append(rg.Columns, c.into())
	}
	return rg
}

type wireFileMetaData struct {
	Version          int32              `thrift:"1,required"`
	Schema           []wireSchemaElement `thrift:"2,required"`
	NumRows          int64              `thrift:"3,required"`
	RowGroups        []wireRowGroup     `thrift:"4,required"`
	KeyValueMetadata []wireKeyValue     `thrift:"5,optional"`
	CreatedBy        *string            `thrift:"6,optional"`
}

// DecodeFileMetaData parses a Thrift compact-protocol encoded FileMetaData
// struct, returning the number of bytes consumed from buf.
func DecodeFileMetaData(buf []byte) (*FileMetaData, int, error) {
	var w wireFileMetaData
	n, err := decode(buf, &w)
	if err != nil {
		return nil, 0, errors.Wrap(err, "format: decoding FileMetaData")
	}
	m := &FileMetaData{Version: w.Version, NumRows: w.NumRows}
	for _, e := range w.Schema {
		m.Schema = append(m.Schema, e.into())
	}
	for _, rg := range w.RowGroups {
		m.RowGroups = append(m.RowGroups, rg.into())
	}
	for _, kv := range w.KeyValueMetadata {
		m.KeyValueMetadata = append(m.KeyValueMetadata, kv.into())
	}
	if w.CreatedBy != nil {
		m.CreatedBy, m.HasCreatedBy = *w.CreatedBy, true
	}
	return m, n, nil
}

type wireDataPageHeader struct {
	NumValues               int32           `thrift:"1,required"`
	Encoding                int32           `thrift:"2,required"`
	DefinitionLevelEncoding int32           `thrift:"3,required"`
	RepetitionLevelEncoding int32           `thrift:"4,required"`
	Statistics              *wireStatistics `thrift:"5,optional"`
}

func (w wireDataPageHeader) into() DataPageHeader {
	h := DataPageHeader{
		NumValues:               w.NumValues,
		Encoding:                Encoding(w.Encoding),
		DefinitionLevelEncoding: Encoding(w.DefinitionLevelEncoding),
		RepetitionLevelEncoding: Encoding(w.RepetitionLevelEncoding),
	}
	if w.Statistics != nil {
		h.Statistics, h.HasStatistics = w.Statistics.into(), true
	}
	return h
}

type wireDictionaryPageHeader struct {
	NumValues int32 `thrift:"1,required"`
	Encoding  int32 `thrift:"2,required"`
	IsSorted  bool  `thrift:"3,optional"`
}

func (w wireDictionaryPageHeader) into() DictionaryPageHeader {
	return DictionaryPageHeader{NumValues: w.NumValues, Encoding: Encoding(w.Encoding), IsSorted: w.IsSorted}
}

type wireDataPageHeaderV2 struct {
	NumValues                  int32 `thrift:"1,required"`
	NumNulls                   int32 `thrift:"2,required"`
	NumRows                    int32 `thrift:"3,required"`
	Encoding                   int32 `thrift:"4,required"`
	DefinitionLevelsByteLength int32 `thrift:"5,required"`
	RepetitionLevelsByteLength int32 `thrift:"6,required"`
	IsCompressed               *bool `thrift:"7,optional"`
}

// into folds the wire struct into DataPageHeaderV2. IsCompressed defaults to
// true when the writer omits it, per the format's own default for that
// field (§3.3's level-streams-never-compressed rule governs the streams
// themselves, not this flag).
func (w wireDataPageHeaderV2) into() DataPageHeaderV2 {
	h := DataPageHeaderV2{
		NumValues:                  w.NumValues,
		NumNulls:                   w.NumNulls,
		NumRows:                    w.NumRows,
		Encoding:                   Encoding(w.Encoding),
		DefinitionLevelsByteLength: w.DefinitionLevelsByteLength,
		RepetitionLevelsByteLength: w.RepetitionLevelsByteLength,
		IsCompressed:               true,
	}
	if w.IsCompressed != nil {
		h.IsCompressed = *w.IsCompressed
	}
	return h
}

type wirePageHeader struct {
	Type                 int32                     `thrift:"1,required"`
	UncompressedPageSize int32                     `thrift:"2,required"`
	CompressedPageSize   int32                     `thrift:"3,required"`
	DataPageHeader       *wireDataPageHeader       `thrift:"5,optional"`
	DictionaryPageHeader *wireDictionaryPageHeader `thrift:"7,optional"`
	DataPageHeaderV2     *wireDataPageHeaderV2     `thrift:"8,optional"`
}

// DecodePageHeader parses a Thrift compact-protocol encoded PageHeader
// struct, returning the number of bytes consumed from buf.
func DecodePageHeader(buf []byte) (*PageHeader, int, error) {
	var w wirePageHeader
	n, err := decode(buf, &w)
	if err != nil {
		return nil, 0, errors.Wrap(err, "format: decoding PageHeader")
	}
	h := &PageHeader{
		Type:                 PageType(w.Type),
		UncompressedPageSize: w.UncompressedPageSize,
		CompressedPageSize:   w.CompressedPageSize,
	}
	if w.DataPageHeader != nil {
		v := w.DataPageHeader.into()
		h.DataPageHeader = &v
	}
	if w.DictionaryPageHeader != nil {
		v := w.DictionaryPageHeader.into()
		h.DictionaryPageHeader = &v
	}
	if w.DataPageHeaderV2 != nil {
		v := w.DataPageHeaderV2.into()
		h.DataPageHeaderV2 = &v
	}
	return h, n, nil
}
