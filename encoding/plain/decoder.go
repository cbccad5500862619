// Package plain decodes values encoded with Parquet's PLAIN (and
// FIXED_LEN_BYTE_ARRAY) physical encoding. Every decode call consumes a
// prefix of the caller-owned byte slice and returns how many bytes it used;
// BYTE_ARRAY and FIXED_LEN_BYTE_ARRAY values are zero-copy views into that
// slice, so callers must keep the backing buffer alive for as long as the
// decoded value is in use (typically: until the owning page's pool buffer is
// released into the output batch).
package plain

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// ErrCorruptPlainValue is returned when the input is shorter than the value
// being decoded requires.
var ErrCorruptPlainValue = errors.New("plain: corrupt value, insufficient bytes")

func DecodeInt32(data []byte) (int32, int, error) {
	if len(data) < 4 {
		return 0, 0, ErrCorruptPlainValue
	}
	return int32(binary.LittleEndian.Uint32(data)), 4, nil
}

func DecodeInt64(data []byte) (int64, int, error) {
	if len(data) < 8 {
		return 0, 0, ErrCorruptPlainValue
	}
	return int64(binary.LittleEndian.Uint64(data)), 8, nil
}

func DecodeFloat32(data []byte) (float32, int, error) {
	if len(data) < 4 {
		return 0, 0, ErrCorruptPlainValue
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4, nil
}

func DecodeFloat64(data []byte) (float64, int, error) {
	if len(data) < 8 {
		return 0, 0, ErrCorruptPlainValue
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8, nil
}

// Int96 is the raw 12-byte INT96 timestamp representation: 8 bytes of
// nanoseconds-within-day followed by a 4-byte little-endian Julian day.
type Int96 [12]byte

func (v Int96) NanosOfDay() int64 {
	return int64(binary.LittleEndian.Uint64(v[0:8]))
}

func (v Int96) JulianDay() int32 {
	return int32(binary.LittleEndian.Uint32(v[8:12]))
}

// julianDayUnixEpoch is the Julian day number of 1970-01-01.
const julianDayUnixEpoch = 2440588

// UnixNanos converts the INT96 timestamp to nanoseconds since the Unix
// epoch, the representation legacy Impala/Hive writers used before adopting
// INT64 TIMESTAMP logical types.
func (v Int96) UnixNanos() int64 {
	const nanosPerDay = 86400 * 1000 * 1000 * 1000
	days := int64(v.JulianDay()) - julianDayUnixEpoch
	return days*nanosPerDay + v.NanosOfDay()
}

func DecodeInt96(data []byte) (Int96, int, error) {
	var v Int96
	if len(data) < 12 {
		return v, 0, ErrCorruptPlainValue
	}
	copy(v[:], data[:12])
	return v, 12, nil
}

// DecodeByteArray returns a zero-copy view of the 4-byte-length-prefixed
// BYTE_ARRAY value starting at data[0].
func DecodeByteArray(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, ErrCorruptPlainValue
	}
	n := int(binary.LittleEndian.Uint32(data))
	if n < 0 || len(data) < 4+n {
		return nil, 0, ErrCorruptPlainValue
	}
	return data[4 : 4+n], 4 + n, nil
}

// DecodeFixedLenByteArray returns a zero-copy view of the next size bytes,
// used for CHAR(n) and for decimals backed by FIXED_LEN_BYTE_ARRAY.
func DecodeFixedLenByteArray(data []byte, size int) ([]byte, int, error) {
	if size < 0 || len(data) < size {
		return nil, 0, ErrCorruptPlainValue
	}
	return data[:size], size, nil
}

// DecodeBigEndianDecimal interprets a big-endian two's-complement fixed
// length byte array (length 4, 8 or 16) as a signed integer, the unscaled
// value of a DECIMAL logical type.
func DecodeBigEndianDecimal(b []byte) (int64, error) {
	switch len(b) {
	case 4, 8:
		var v int64
		neg := b[0]&0x80 != 0
		for _, by := range b {
			v = v<<8 | int64(by)
		}
		if neg && len(b) < 8 {
			v |= -1 << (8 * uint(len(b)))
		}
		return v, nil
	default:
		// 16-byte decimals (and any other length up to 8 after trimming
		// leading sign-extension bytes) overflow int64; scanners that need
		// the full precision should decode via DecodeBigEndianDecimal128.
		return 0, errors.Newf("plain: decimal of %d bytes does not fit in int64", len(b))
	}
}

// DecodeBigEndianDecimal128 interprets a big-endian two's-complement 16-byte
// fixed length byte array as a signed 128-bit integer, returned as
// (high, low) with high carrying the sign.
func DecodeBigEndianDecimal128(b []byte) (hi int64, lo uint64, err error) {
	if len(b) != 16 {
		return 0, 0, errors.Newf("plain: decimal128 requires 16 bytes, got %d", len(b))
	}
	hi = int64(binary.BigEndian.Uint64(b[0:8]))
	lo = binary.BigEndian.Uint64(b[8:16])
	return hi, lo, nil
}
