// Package rle implements Parquet's hybrid RLE/bit-packed run decoder for
// unsigned integers of a fixed bit width. It underlies both the
// definition/repetition level decoder and the dictionary-index decoder; the
// two differ only in bit width and in whether the stream carries a 4-byte
// length prefix, which callers strip themselves before constructing a
// HybridReader.
package rle

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/internal/bits"
)

// ErrCorruptRLEBytes is returned when a run header or bit-packed group
// cannot be read from the underlying buffer.
var ErrCorruptRLEBytes = errors.New("rle: corrupt bytes, underflow or invalid run header")

// HybridReader decodes a sequence of alternating RLE (repeated-value) and
// bit-packed (literal) runs, all sharing one bit width, from an in-memory
// buffer with no further framing.
type HybridReader struct {
	body     []byte
	bitWidth int

	repeatedRemaining int
	repeatedValue     uint32

	bitpackRemaining int
	bitBuf           uint64
	bitBufN          uint
}

// NewHybridReader wraps body, which must contain only run headers and their
// payloads (no length prefix), to be decoded at the given bit width.
func NewHybridReader(body []byte, bitWidth int) *HybridReader {
	return &HybridReader{body: body, bitWidth: bitWidth}
}

// Reset reinitializes the reader over a new buffer, reusing its state.
func (r *HybridReader) Reset(body []byte, bitWidth int) {
	r.body = body
	r.bitWidth = bitWidth
	r.repeatedRemaining = 0
	r.bitpackRemaining = 0
	r.bitBuf = 0
	r.bitBufN = 0
}

// Next decodes the next unsigned integer. ok is false once the buffer is
// exhausted.
func (r *HybridReader) Next() (value uint32, ok bool, err error) {
	if r.bitWidth == 0 {
		if len(r.body) == 0 && r.repeatedRemaining == 0 {
			return 0, false, nil
		}
	}
	for {
		if r.repeatedRemaining > 0 {
			r.repeatedRemaining--
			return r.repeatedValue, true, nil
		}
		if r.bitpackRemaining > 0 {
			v, err := r.readBits(r.bitWidth)
			if err != nil {
				return 0, false, err
			}
			r.bitpackRemaining--
			return v, true, nil
		}
		if !r.nextRun() {
			return 0, false, nil
		}
	}
}

// Skip discards the next n decoded values, returning the number actually
// skipped (less than n at end of stream).
func (r *HybridReader) Skip(n int) (int, error) {
	skipped := 0
	for skipped < n {
		_, ok, err := r.Next()
		if err != nil {
			return skipped, err
		}
		if !ok {
			break
		}
		skipped++
	}
	return skipped, nil
}

func (r *HybridReader) nextRun() bool {
	u, n := binary.Uvarint(r.body)
	if n <= 0 {
		return false
	}
	r.body = r.body[n:]

	count, isBitPacked := uint32(u>>1), u&1 == 1
	if isBitPacked {
		r.bitpackRemaining = int(count) * 8
		r.bitBuf = 0
		r.bitBufN = 0
		return true
	}

	width := bits.ByteCount(uint(r.bitWidth))
	var value uint32
	for i := 0; i < width && i < len(r.body); i++ {
		value |= uint32(r.body[i]) << (8 * i)
	}
	if width > len(r.body) {
		r.body = nil
	} else {
		r.body = r.body[width:]
	}
	r.repeatedRemaining = int(count)
	r.repeatedValue = value
	return true
}

func (r *HybridReader) readBits(width int) (uint32, error) {
	for r.bitBufN < uint(width) {
		if len(r.body) == 0 {
			return 0, ErrCorruptRLEBytes
		}
		r.bitBuf |= uint64(r.body[0]) << r.bitBufN
		r.body = r.body[1:]
		r.bitBufN += 8
	}
	mask := uint64(1)<<uint(width) - 1
	v := uint32(r.bitBuf & mask)
	r.bitBuf >>= uint(width)
	r.bitBufN -= uint(width)
	return v, nil
}
