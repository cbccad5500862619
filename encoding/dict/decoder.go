// Package dict implements the random-access dictionary decoder: the
// dictionary page's values are decoded once into an owned array, then data
// pages reference them by an RLE/bit-packed index stream.
package dict

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/internal/rle"
)

// ErrDictDecodeFailure is returned when an index stream references a
// dictionary entry out of bounds, or underflows before num_values indices
// have been produced.
var ErrDictDecodeFailure = errors.New("dict: failed to decode dictionary index")

// ErrCorruptDictionary is returned when the dictionary page itself fails to
// decode into a whole number of values.
var ErrCorruptDictionary = errors.New("dict: corrupt dictionary page")

// Decoder is a dictionary of T values addressed by RLE-encoded indices.
// DecodeValue turns the raw dictionary page bytes into one T, consuming a
// prefix and reporting how many bytes it used; it is supplied once at
// construction and reused across Reset calls (and across row groups, since
// the physical type of a column chunk never changes).
type Decoder[T any] struct {
	decodeValue func([]byte) (T, int, error)
	values      []T
	indices     *rle.HybridReader
}

// NewDecoder constructs a dictionary decoder for values decoded by
// decodeValue (ordinarily plain.DecodeInt32, plain.DecodeByteArray, etc).
func NewDecoder[T any](decodeValue func([]byte) (T, int, error)) *Decoder[T] {
	return &Decoder[T]{
		decodeValue: decodeValue,
		indices:     rle.NewHybridReader(nil, 0),
	}
}

// Reset decodes the dictionary page body into an owned slice of T. Callers
// must copy out of dictBytes inside decodeValue if T retains references to
// it (see plain.DecodeByteArray), since the dictionary page's buffer is
// returned to the scanner-wide dictionary pool once decoded.
func (d *Decoder[T]) Reset(dictBytes []byte) error {
	d.values = d.values[:0]
	for len(dictBytes) > 0 {
		v, n, err := d.decodeValue(dictBytes)
		if err != nil || n <= 0 {
			return errors.Wrap(ErrCorruptDictionary, "dict: decoding dictionary entry")
		}
		d.values = append(d.values, v)
		dictBytes = dictBytes[n:]
	}
	return nil
}

// Len returns the number of entries in the dictionary.
func (d *Decoder[T]) Len() int { return len(d.values) }

// SetData initializes index decoding over a dictionary-encoded data page
// body: a single leading byte giving the index bit width, followed by the
// RLE/bit-packed index stream (no length prefix, unlike level streams).
func (d *Decoder[T]) SetData(pageBytes []byte) error {
	if len(pageBytes) < 1 {
		return errors.Wrap(ErrDictDecodeFailure, "dict: missing index bit-width byte")
	}
	bitWidth := int(pageBytes[0])
	d.indices.Reset(pageBytes[1:], bitWidth)
	return nil
}

// GetValue decodes and returns the next dictionary-indexed value.
func (d *Decoder[T]) GetValue() (T, error) {
	var zero T
	idx, ok, err := d.indices.Next()
	if err != nil {
		return zero, errors.Wrap(ErrDictDecodeFailure, err.Error())
	}
	if !ok {
		return zero, errors.Wrap(ErrDictDecodeFailure, "dict: index stream exhausted")
	}
	if int(idx) >= len(d.values) {
		return zero, errors.Wrapf(ErrDictDecodeFailure, "dict: index %d out of range [0,%d)", idx, len(d.values))
	}
	return d.values[idx], nil
}
