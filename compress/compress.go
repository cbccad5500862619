// Package compress adapts the page-body compression codecs the scanner
// supports (UNCOMPRESSED, SNAPPY, GZIP) behind one small interface, pooled
// per codec so repeated page decompression does not allocate a new Codec
// per page.
package compress

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/format"
)

// Codec decompresses a single page body. Implementations must be safe for
// reuse across many pages, but are not required to be safe for
// concurrent use — callers pool one Codec per goroutine (see Registry).
type Codec interface {
	// Decode decompresses src into dst, reallocating and returning dst if its
	// capacity was insufficient, and fails if the result does not match
	// uncompressedSize exactly.
	Decode(dst, src []byte, uncompressedSize int) ([]byte, error)
}

// Registry looks up a Codec by its format.CompressionCodec value and pools
// instances so PageReader does not allocate one per page.
type Registry struct {
	pools [8]sync.Pool
	new   [8]func() Codec
}

// NewRegistry builds the codec registry used throughout the scanner.
func NewRegistry() *Registry {
	r := &Registry{}
	r.new[format.Uncompressed] = func() Codec { return uncompressedCodec{} }
	r.new[format.Snappy] = func() Codec { return &snappyCodec{} }
	r.new[format.Gzip] = func() Codec { return &gzipCodec{} }
	return r
}

// Acquire returns a pooled Codec for codec, or an UnsupportedCompression
// error if the codec isn't one of the three this scanner implements.
func (r *Registry) Acquire(codec format.CompressionCodec) (Codec, error) {
	if int(codec) < 0 || int(codec) >= len(r.new) || r.new[codec] == nil {
		return nil, errors.Wrapf(ErrUnsupportedCompression, "codec %v", codec)
	}
	if c, ok := r.pools[codec].Get().(Codec); ok {
		return c, nil
	}
	return r.new[codec](), nil
}

// Release returns c to the pool for codec.
func (r *Registry) Release(codec format.CompressionCodec, c Codec) {
	r.pools[codec].Put(c)
}

// ErrUnsupportedCompression is returned by Acquire for any codec outside
// {UNCOMPRESSED, SNAPPY, GZIP}.
var ErrUnsupportedCompression = errors.New("compress: unsupported compression codec")

type uncompressedCodec struct{}

func (uncompressedCodec) Decode(dst, src []byte, uncompressedSize int) ([]byte, error) {
	if len(src) != uncompressedSize {
		return nil, errors.Newf("compress: uncompressed page size mismatch: header says %d, body is %d", uncompressedSize, len(src))
	}
	return append(dst[:0], src...), nil
}

// decodeWithReader is the shared pattern for the two real compression
// codecs: wrap src in a bytes.Reader, open a new stream reader over it with
// newReader, and read exactly uncompressedSize bytes into dst.
func decodeWithReader(dst, src []byte, uncompressedSize int, newReader func(io.Reader) (io.ReadCloser, error)) ([]byte, error) {
	zr, err := newReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	if cap(dst) < uncompressedSize {
		dst = make([]byte, uncompressedSize)
	} else {
		dst = dst[:uncompressedSize]
	}
	n, err := io.ReadFull(zr, dst)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if n != uncompressedSize {
		return nil, errors.Newf("compress: decompressed length %d does not match header's uncompressed_page_size %d", n, uncompressedSize)
	}
	// A compliant stream ends exactly here; confirm there is nothing left.
	var extra [1]byte
	if m, _ := zr.Read(extra[:]); m > 0 {
		return nil, errors.Newf("compress: decompressed length exceeds header's uncompressed_page_size %d", uncompressedSize)
	}
	return dst, nil
}

func decompressedSizeMismatch(got, want int) error {
	return errors.Newf("compress: decompressed length %d does not match header's uncompressed_page_size %d", got, want)
}
