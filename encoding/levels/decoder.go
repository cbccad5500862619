// Package levels implements the definition/repetition level decoder: an
// unsigned, narrow (<=8 bit) integer stream under Parquet's RLE or the
// deprecated BIT_PACKED encoding, with a batch cache so the row group
// assembler can pull levels ahead of the value stream without re-decoding.
package levels

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/internal/bits"
	"github.com/hexlake/pqscan/internal/rle"
)

// Decoder decodes a single column chunk's worth of definition or repetition
// levels, one page at a time. Init must be called once per page before
// CacheNextBatch is used.
type Decoder struct {
	maxLevel int
	bitWidth int

	hybrid *rle.HybridReader

	cache    []byte
	cacheLen int
	cachePos int
}

// NewDecoder allocates a decoder whose batch cache can hold up to
// cacheCapacity levels; cacheCapacity should equal the scanner's batch size
// so the cache never needs to grow mid-scan.
func NewDecoder(cacheCapacity int) *Decoder {
	return &Decoder{
		hybrid: rle.NewHybridReader(nil, 0),
		cache:  make([]byte, cacheCapacity),
	}
}

// Init prepares the decoder to read numBufferedValues levels (the page's
// num_values) from data, encoded per encoding with the column's max level.
// It advances *data past the bytes this level stream occupies (including the
// RLE length prefix, if any) so the caller can continue reading whatever
// follows (the definition levels, then the value stream, for example).
func (d *Decoder) Init(encoding format.Encoding, maxLevel int, numBufferedValues int, data *[]byte) error {
	d.maxLevel = maxLevel
	d.bitWidth = bits.MaxLevelBitWidth(maxLevel)
	d.cacheLen = 0
	d.cachePos = 0

	if maxLevel == 0 {
		// Nothing is ever encoded on the wire in this case; CacheNextBatch
		// hands out zeros without reading from data.
		return nil
	}

	switch encoding {
	case format.RLE:
		if len(*data) < 4 {
			return errors.New("levels: truncated RLE length prefix")
		}
		n := int(binary.LittleEndian.Uint32((*data)[:4]))
		rest := (*data)[4:]
		if n < 0 || n > len(rest) {
			return errors.Newf("levels: RLE body length %d exceeds available %d bytes", n, len(rest))
		}
		d.hybrid.Reset(rest[:n], d.bitWidth)
		*data = rest[n:]
		return nil
	case format.BitPacked:
		nbytes := bits.ByteCount(uint(numBufferedValues) * uint(d.bitWidth))
		if nbytes > len(*data) {
			return errors.Newf("levels: BIT_PACKED body length %d exceeds available %d bytes", nbytes, len(*data))
		}
		// The deprecated encoding has no run headers: synthesize a single
		// literal bit-packed run header covering the whole page so the
		// shared hybrid reader can still drive it.
		body := (*data)[:nbytes]
		*data = (*data)[nbytes:]
		groups := (numBufferedValues + 7) / 8
		header := make([]byte, 0, binary.MaxVarintLen32+len(body))
		header = appendUvarint(header, uint64(groups)<<1|1)
		header = append(header, body...)
		d.hybrid.Reset(header, d.bitWidth)
		return nil
	default:
		return errors.Newf("levels: unsupported level encoding %v", encoding)
	}
}

// InitV2 prepares the decoder from a DataPageHeaderV2's level stream, whose
// length is given explicitly by the header rather than by a 4-byte prefix on
// the wire, and which is always RLE-encoded even when BIT_PACKED would
// otherwise apply to a V1 page of the same column.
func (d *Decoder) InitV2(maxLevel int, numBufferedValues int, body []byte) error {
	d.maxLevel = maxLevel
	d.bitWidth = bits.MaxLevelBitWidth(maxLevel)
	d.cacheLen = 0
	d.cachePos = 0
	if maxLevel == 0 {
		return nil
	}
	d.hybrid.Reset(body, d.bitWidth)
	return nil
}

func appendUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// CacheNextBatch decodes up to n additional levels into the internal cache,
// discarding any levels left over from a previous call. It returns the
// number of levels actually cached, which is less than n only at end of page.
func (d *Decoder) CacheNextBatch(n int) (int, error) {
	if n > len(d.cache) {
		d.cache = append(d.cache[:0], make([]byte, n)...)
	}
	d.cacheLen = 0
	d.cachePos = 0

	if d.maxLevel == 0 {
		for d.cacheLen < n {
			d.cache[d.cacheLen] = 0
			d.cacheLen++
		}
		return d.cacheLen, nil
	}

	for d.cacheLen < n {
		v, ok, err := d.hybrid.Next()
		if err != nil {
			return d.cacheLen, errors.Wrap(err, "levels: decoding level batch")
		}
		if !ok {
			break
		}
		if int(v) > d.maxLevel {
			return d.cacheLen, errors.Newf("levels: decoded level %d exceeds max %d", v, d.maxLevel)
		}
		d.cache[d.cacheLen] = byte(v)
		d.cacheLen++
	}
	return d.cacheLen, nil
}

// CacheGetNext returns the next cached level and advances the read cursor.
func (d *Decoder) CacheGetNext() byte {
	v := d.cache[d.cachePos]
	d.cachePos++
	return v
}

// CacheHasNext reports whether any cached level remains unread.
func (d *Decoder) CacheHasNext() bool { return d.cachePos < d.cacheLen }

// CacheSkip advances the read cursor by k cached levels.
func (d *Decoder) CacheSkip(k int) {
	d.cachePos += k
	if d.cachePos > d.cacheLen {
		d.cachePos = d.cacheLen
	}
}

// CacheRemaining returns the number of unread cached levels.
func (d *Decoder) CacheRemaining() int { return d.cacheLen - d.cachePos }

// MaxLevel returns the maximum level this decoder was initialized with.
func (d *Decoder) MaxLevel() int { return d.maxLevel }
