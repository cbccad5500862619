// Package bytestream defines the ByteStream interface the scanner core
// consumes to pull bytes for one column chunk's scan range. The concrete
// implementation (backed by a distributed filesystem's block cache) lives
// outside this module; this package also provides a simple in-memory
// implementation used by tests and by callers driving small local files.
package bytestream

import (
	"io"

	"github.com/cockroachdb/errors"
)

// ByteStream is the I/O collaborator a PageReader pulls bytes from. All
// methods may block on network or disk I/O; no other scanner call suspends.
type ByteStream interface {
	// ReadBytes returns the next n bytes, advancing the stream past them.
	ReadBytes(n int) ([]byte, error)
	// PeekBytes returns the next n bytes without advancing the stream. It
	// may return fewer than n bytes if the stream has less remaining, but
	// never returns an error solely because n exceeds what remains.
	PeekBytes(n int) ([]byte, error)
	// SkipBytes advances the stream past n bytes without returning them.
	SkipBytes(n int) error
	// EOF reports whether the stream is exhausted.
	EOF() bool
	// FileOffset returns the stream's current absolute position in the file.
	FileOffset() int64
}

// Slice is an in-memory ByteStream over a fixed byte slice, anchored at a
// given absolute file offset. It never blocks; useful for tests and for
// scanning files already materialized in memory.
type Slice struct {
	data   []byte
	pos    int
	origin int64
}

// NewSlice wraps data as a ByteStream whose FileOffset starts at origin.
func NewSlice(data []byte, origin int64) *Slice {
	return &Slice{data: data, origin: origin}
}

func (s *Slice) ReadBytes(n int) ([]byte, error) {
	if n < 0 || s.pos+n > len(s.data) {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "bytestream: requested %d bytes, %d remain", n, len(s.data)-s.pos)
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

func (s *Slice) PeekBytes(n int) ([]byte, error) {
	end := s.pos + n
	if end > len(s.data) {
		end = len(s.data)
	}
	return s.data[s.pos:end], nil
}

func (s *Slice) SkipBytes(n int) error {
	if n < 0 || s.pos+n > len(s.data) {
		return errors.Wrapf(io.ErrUnexpectedEOF, "bytestream: cannot skip %d bytes, %d remain", n, len(s.data)-s.pos)
	}
	s.pos += n
	return nil
}

func (s *Slice) EOF() bool { return s.pos >= len(s.data) }

func (s *Slice) FileOffset() int64 { return s.origin + int64(s.pos) }
