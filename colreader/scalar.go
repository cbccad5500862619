package colreader

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/compress"
	"github.com/hexlake/pqscan/encoding/dict"
	"github.com/hexlake/pqscan/encoding/levels"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/page"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// ScalarColumnReader drives one leaf scalar column's page stream, decoding
// definition/repetition levels plus PLAIN- or dictionary-encoded values of
// type T into value.Slot batches. It is monomorphized per physical Go type
// at construction rather than per logical SQL type, matching §9's Design
// Notes preference for type-parameter specialization over a boxed Value
// decode path in the hot loop.
type ScalarColumnReader[T any] struct {
	node   *schema.Node
	ctx    *scannerctx.Ctx
	codecs *compress.Registry

	decodePlain  func([]byte) (T, int, error)
	toValue      func(T) value.Value
	convertValue func(value.Value) value.Value

	// Materialized is false for columns retained only to drive level
	// synchronization (e.g. dropped from the projection but needed to count
	// rows inside a collection); InCollection is true when this reader's
	// output is consumed by a CollectionColumnReader rather than emitted
	// directly to the output batch.
	Materialized bool
	InCollection bool

	pages  *page.Reader
	dict   *dict.Decoder[T]
	defDec *levels.Decoder
	repDec *levels.Decoder

	physicalType format.Type
	version      fileversion.Version

	isDictEncoded     bool
	pageData          []byte
	numBufferedValues int

	chunkNumValues int64
	numValuesRead  int64

	posCurrentValue int64

	curDef, curRep int8
}

// NewScalarColumnReader constructs a reader for node, decoding PLAIN values
// with decodePlain and lifting each to a value.Value with toValue. convert,
// if non-nil, is applied after every materialized (non-null) value, e.g. to
// turn a legacy INT96 timestamp into Unix nanoseconds.
func NewScalarColumnReader[T any](ctx *scannerctx.Ctx, node *schema.Node, codecs *compress.Registry, decodePlain func([]byte) (T, int, error), toValue func(T) value.Value, convert func(value.Value) value.Value) *ScalarColumnReader[T] {
	return &ScalarColumnReader[T]{
		node:         node,
		ctx:          ctx,
		codecs:       codecs,
		decodePlain:  decodePlain,
		toValue:      toValue,
		convertValue: convert,
		Materialized: true,
		dict:         dict.NewDecoder(decodePlain),
		defDec:       levels.NewDecoder(ctx.Config.BatchSize),
		repDec:       levels.NewDecoder(ctx.Config.BatchSize),
		curDef:       Invalid,
		curRep:       Invalid,
	}
}

func (r *ScalarColumnReader[T]) Node() *schema.Node    { return r.node }
func (r *ScalarColumnReader[T]) MaxDefLevel() int8     { return int8(r.node.MaxDefLevel) }
func (r *ScalarColumnReader[T]) MaxRepLevel() int8     { return int8(r.node.MaxRepLevel) }
func (r *ScalarColumnReader[T]) DefLevel() int8        { return r.curDef }
func (r *ScalarColumnReader[T]) RepLevel() int8        { return r.curRep }
func (r *ScalarColumnReader[T]) NumValuesRead() int64  { return r.numValuesRead }

// NeedsSeeding is false: ReadValueBatch seeds its own first page.
func (r *ScalarColumnReader[T]) NeedsSeeding() bool { return false }

func (r *ScalarColumnReader[T]) Reset(meta *format.ColumnMetaData, stream bytestream.ByteStream, version fileversion.Version) error {
	r.physicalType = meta.Type
	r.version = version
	r.pages = page.NewReader(stream, meta.Codec, r.codecs, meta.Type, version, r.ctx.Config.MaxPageHeaderSize)
	r.chunkNumValues = meta.NumValues
	r.numValuesRead = 0
	r.numBufferedValues = 0
	r.pageData = nil
	r.isDictEncoded = false
	r.posCurrentValue = 0
	r.curDef = Invalid
	r.curRep = Invalid
	return nil
}

func (r *ScalarColumnReader[T]) Close() {}

// NextLevels advances one (def, rep) pair at a time; used when a
// CollectionColumnReader needs to step this reader in lockstep rather than
// pull a batch.
func (r *ScalarColumnReader[T]) NextLevels() error {
	if r.numBufferedValues == 0 {
		more, err := r.advancePage()
		if err != nil {
			return err
		}
		if !more {
			r.curRep = RowGroupEnd
			r.curDef = Invalid
			return nil
		}
	}

	if r.defDec.MaxLevel() == 0 {
		r.curDef = int8(r.node.MaxDefLevel)
	} else {
		if !r.defDec.CacheHasNext() {
			if _, err := r.defDec.CacheNextBatch(1); err != nil {
				return err
			}
		}
		r.curDef = int8(r.defDec.CacheGetNext())
	}

	if r.repDec.MaxLevel() == 0 {
		r.curRep = 0
	} else {
		if !r.repDec.CacheHasNext() {
			if _, err := r.repDec.CacheNextBatch(1); err != nil {
				return err
			}
		}
		r.curRep = int8(r.repDec.CacheGetNext())
	}

	r.numBufferedValues--
	return nil
}

// ReadValueBatch implements §4.4's materialize_value_batch loop: it fills up
// to len(out) rows (out may be nil for a counting-only reader), writing the
// ARRAY_POS position slot to posOut when requested, and reports whether more
// remains in the row group.
func (r *ScalarColumnReader[T]) ReadValueBatch(out []value.Slot, posOut []int64) (int, bool, error) {
	capacity := len(out)
	if out == nil {
		capacity = cap(posOut)
	}
	produced := 0

	for produced < capacity {
		if r.numBufferedValues == 0 {
			more, err := r.advancePage()
			if err != nil {
				return produced, false, err
			}
			if !more {
				return produced, false, nil
			}
		}

		if r.defDec.MaxLevel() > 0 && !r.defDec.CacheHasNext() {
			n := capacity - produced
			if n > r.numBufferedValues {
				n = r.numBufferedValues
			}
			if _, err := r.defDec.CacheNextBatch(n); err != nil {
				return produced, false, err
			}
			if r.repDec.MaxLevel() > 0 {
				if _, err := r.repDec.CacheNextBatch(n); err != nil {
					return produced, false, err
				}
			}
		}

		// Fast path: this column is consumed only to drive levels (not
		// materialized, and not feeding a collection boundary), so skip
		// whole cached runs without touching the value stream.
		if !r.Materialized && !r.InCollection {
			skip := r.defDec.CacheRemaining()
			if skip == 0 {
				skip = r.numBufferedValues
			}
			if skip > capacity-produced {
				skip = capacity - produced
			}
			r.defDec.CacheSkip(skip)
			if r.repDec.MaxLevel() > 0 {
				r.repDec.CacheSkip(skip)
			}
			r.numBufferedValues -= skip
			r.numValuesRead += int64(skip)
			produced += skip
			continue
		}

		var d int8
		if r.defDec.MaxLevel() == 0 {
			d = int8(r.node.MaxDefLevel)
		} else {
			d = int8(r.defDec.CacheGetNext())
		}
		var rep int8
		if r.repDec.MaxLevel() > 0 {
			rep = int8(r.repDec.CacheGetNext())
		}
		r.numBufferedValues--
		r.numValuesRead++

		if posOut != nil {
			if rep == 0 {
				r.posCurrentValue = 0
			}
			posOut[produced] = r.posCurrentValue
			r.posCurrentValue++
		}

		if r.Materialized {
			if int(d) >= int(r.node.MaxDefLevel) {
				v, err := r.readSlotValue()
				if err != nil {
					return produced, false, err
				}
				out[produced] = value.ValueSlot(v)
			} else {
				out[produced] = value.NullSlot()
			}
		}
		produced++
	}

	return produced, r.numValuesRead < r.chunkNumValues || r.numBufferedValues > 0, nil
}

// CurrentSlot decodes the value at the level last produced by NextLevels,
// without advancing the page or dictionary cursors further.
func (r *ScalarColumnReader[T]) CurrentSlot() (value.Slot, error) {
	if int(r.curDef) >= int(r.node.MaxDefLevel) {
		v, err := r.readSlotValue()
		if err != nil {
			return value.Slot{}, err
		}
		return value.ValueSlot(v), nil
	}
	return value.NullSlot(), nil
}

func (r *ScalarColumnReader[T]) readSlotValue() (value.Value, error) {
	var t T
	var err error
	if r.isDictEncoded {
		t, err = r.dict.GetValue()
	} else {
		var n int
		t, n, err = r.decodePlain(r.pageData)
		if err == nil {
			r.pageData = r.pageData[n:]
		}
	}
	if err != nil {
		return value.Value{}, err
	}
	v := r.toValue(t)
	if r.convertValue != nil {
		v = r.convertValue(v)
	}
	return v, nil
}

// advancePage pulls pages until a data page is ready for value decoding,
// absorbing any dictionary page it encounters along the way, or reports
// false once the column chunk's declared num_values have all been read.
func (r *ScalarColumnReader[T]) advancePage() (bool, error) {
	for {
		if r.chunkNumValues > 0 && r.numValuesRead >= r.chunkNumValues {
			return false, nil
		}
		pg, err := r.pages.ReadNextPage()
		if err != nil {
			return false, err
		}
		if pg == nil {
			return false, nil
		}
		switch pg.Kind {
		case page.KindDictionary:
			if err := r.dict.Reset(pg.Data); err != nil {
				return false, err
			}
		case page.KindOther:
			// skip index pages and anything else this scanner does not read
		case page.KindData:
			if err := r.initDataPage(pg); err != nil {
				return false, err
			}
			if r.numBufferedValues == 0 {
				continue
			}
			return true, nil
		}
	}
}

func (r *ScalarColumnReader[T]) initDataPage(pg *page.Page) error {
	data := pg.Data
	var numValues int
	var valueEncoding format.Encoding

	if pg.Header.Type == format.DataPageV2 {
		h := pg.Header.DataPageHeaderV2
		numValues = int(h.NumValues)
		valueEncoding = h.Encoding
		repLen := int(h.RepetitionLevelsByteLength)
		defLen := int(h.DefinitionLevelsByteLength)
		if repLen+defLen > len(data) {
			return errors.New("colreader: v2 page level lengths exceed page body")
		}
		repBytes := data[:repLen]
		defBytes := data[repLen : repLen+defLen]
		data = data[repLen+defLen:]
		if err := r.repDec.InitV2(int(r.node.MaxRepLevel), numValues, repBytes); err != nil {
			return errors.Wrap(err, "colreader: initializing v2 repetition levels")
		}
		if err := r.defDec.InitV2(int(r.node.MaxDefLevel), numValues, defBytes); err != nil {
			return errors.Wrap(err, "colreader: initializing v2 definition levels")
		}
	} else {
		h := pg.Header.DataPageHeader
		numValues = int(h.NumValues)
		valueEncoding = h.Encoding
		if err := r.repDec.Init(h.RepetitionLevelEncoding, int(r.node.MaxRepLevel), numValues, &data); err != nil {
			return errors.Wrap(err, "colreader: initializing repetition levels")
		}
		if err := r.defDec.Init(h.DefinitionLevelEncoding, int(r.node.MaxDefLevel), numValues, &data); err != nil {
			return errors.Wrap(err, "colreader: initializing definition levels")
		}
	}

	r.numBufferedValues = numValues
	r.isDictEncoded = valueEncoding == format.PlainDictionary || valueEncoding == format.RLEDictionary
	if r.isDictEncoded {
		if err := r.dict.SetData(data); err != nil {
			return errors.Wrap(err, "colreader: initializing dictionary index stream")
		}
		r.pageData = nil
	} else if valueEncoding == format.Plain {
		r.pageData = data
	} else {
		return errors.Newf("colreader: unsupported value encoding %v", valueEncoding)
	}
	return nil
}
