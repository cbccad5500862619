package compress

import (
	"github.com/klauspost/compress/snappy"
)

type snappyCodec struct{}

func (snappyCodec) Decode(dst, src []byte, uncompressedSize int) ([]byte, error) {
	out, err := snappy.Decode(dst[:0], src)
	if err != nil {
		return nil, err
	}
	if len(out) != uncompressedSize {
		return nil, decompressedSizeMismatch(len(out), uncompressedSize)
	}
	return out, nil
}
