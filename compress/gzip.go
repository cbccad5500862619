package compress

import (
	"compress/gzip"
	"io"
)

type gzipCodec struct{}

func (gzipCodec) Decode(dst, src []byte, uncompressedSize int) ([]byte, error) {
	return decodeWithReader(dst, src, uncompressedSize, func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	})
}
