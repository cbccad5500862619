package colreader

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/compress"
	"github.com/hexlake/pqscan/encoding/levels"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/page"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// ErrInvalidBool is returned by advancePage if a dictionary page reaches a
// BoolColumnReader. The page.Reader that Reset builds already rejects a
// dictionary page on a BOOLEAN column with its own error, so that error is
// what ReadValueBatch and NextLevels surface for such a page.
var ErrInvalidBool = errors.New("colreader: BOOLEAN column cannot be dictionary encoded")

// BoolColumnReader reads PLAIN-encoded BOOLEAN values, one bit at a time,
// LSB-first within each byte. It is split out from ScalarColumnReader
// because the bit-packed value stream shares nothing with plain.Decode*:
// there is no dictionary path, and a single byte holds eight values.
type BoolColumnReader struct {
	node   *schema.Node
	ctx    *scannerctx.Ctx
	codecs *compress.Registry

	Materialized bool
	InCollection bool

	pages  *page.Reader
	defDec *levels.Decoder
	repDec *levels.Decoder

	pageData          []byte
	bitPos            int
	numBufferedValues int

	chunkNumValues int64
	numValuesRead  int64

	posCurrentValue int64

	curDef, curRep int8
}

func NewBoolColumnReader(ctx *scannerctx.Ctx, node *schema.Node, codecs *compress.Registry) *BoolColumnReader {
	return &BoolColumnReader{
		node:         node,
		ctx:          ctx,
		codecs:       codecs,
		Materialized: true,
		defDec:       levels.NewDecoder(ctx.Config.BatchSize),
		repDec:       levels.NewDecoder(ctx.Config.BatchSize),
		curDef:       Invalid,
		curRep:       Invalid,
	}
}

func (r *BoolColumnReader) Node() *schema.Node   { return r.node }
func (r *BoolColumnReader) MaxDefLevel() int8    { return int8(r.node.MaxDefLevel) }
func (r *BoolColumnReader) MaxRepLevel() int8    { return int8(r.node.MaxRepLevel) }
func (r *BoolColumnReader) DefLevel() int8       { return r.curDef }
func (r *BoolColumnReader) RepLevel() int8       { return r.curRep }
func (r *BoolColumnReader) NumValuesRead() int64 { return r.numValuesRead }
func (r *BoolColumnReader) NeedsSeeding() bool   { return false }
func (r *BoolColumnReader) Close()               {}

func (r *BoolColumnReader) Reset(meta *format.ColumnMetaData, stream bytestream.ByteStream, version fileversion.Version) error {
	if meta.Type != format.Boolean {
		return errors.Newf("colreader: BoolColumnReader given non-BOOLEAN column of type %v", meta.Type)
	}
	r.pages = page.NewReader(stream, meta.Codec, r.codecs, meta.Type, version, r.ctx.Config.MaxPageHeaderSize)
	r.chunkNumValues = meta.NumValues
	r.numValuesRead = 0
	r.numBufferedValues = 0
	r.pageData = nil
	r.bitPos = 0
	r.posCurrentValue = 0
	r.curDef = Invalid
	r.curRep = Invalid
	return nil
}

func (r *BoolColumnReader) NextLevels() error {
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

func (r *BoolColumnReader) ReadValueBatch(out []value.Slot, posOut []int64) (int, bool, error) {
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
				b, err := r.nextBit()
				if err != nil {
					return produced, false, err
				}
				out[produced] = value.ValueSlot(value.Of(b))
			} else {
				out[produced] = value.NullSlot()
			}
		} else if !r.InCollection {
			if int(d) >= int(r.node.MaxDefLevel) {
				if _, err := r.nextBit(); err != nil {
					return produced, false, err
				}
			}
		}
		produced++
	}

	return produced, r.numValuesRead < r.chunkNumValues || r.numBufferedValues > 0, nil
}

// CurrentSlot decodes the bit at the level last produced by NextLevels,
// without advancing further.
func (r *BoolColumnReader) CurrentSlot() (value.Slot, error) {
	if int(r.curDef) >= int(r.node.MaxDefLevel) {
		b, err := r.nextBit()
		if err != nil {
			return value.Slot{}, err
		}
		return value.ValueSlot(value.Of(b)), nil
	}
	return value.NullSlot(), nil
}

func (r *BoolColumnReader) nextBit() (bool, error) {
	byteIdx := r.bitPos / 8
	if byteIdx >= len(r.pageData) {
		return false, errors.New("colreader: BOOLEAN value stream exhausted mid-page")
	}
	bit := (r.pageData[byteIdx] >> uint(r.bitPos%8)) & 1
	r.bitPos++
	return bit == 1, nil
}

func (r *BoolColumnReader) advancePage() (bool, error) {
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
			return false, ErrInvalidBool
		case page.KindOther:
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

func (r *BoolColumnReader) initDataPage(pg *page.Page) error {
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
			return err
		}
		if err := r.defDec.InitV2(int(r.node.MaxDefLevel), numValues, defBytes); err != nil {
			return err
		}
	} else {
		h := pg.Header.DataPageHeader
		numValues = int(h.NumValues)
		valueEncoding = h.Encoding
		if err := r.repDec.Init(h.RepetitionLevelEncoding, int(r.node.MaxRepLevel), numValues, &data); err != nil {
			return err
		}
		if err := r.defDec.Init(h.DefinitionLevelEncoding, int(r.node.MaxDefLevel), numValues, &data); err != nil {
			return err
		}
	}

	if valueEncoding != format.Plain {
		return errors.Newf("colreader: BOOLEAN column must use PLAIN encoding, got %v", valueEncoding)
	}
	r.numBufferedValues = numValues
	r.pageData = data
	r.bitPos = 0
	return nil
}
