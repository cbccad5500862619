// Package footer reads and validates a Parquet file's trailing metadata:
// the magic bytes, the Thrift-encoded FileMetaData, and the created_by
// writer version, stitching in a second I/O when the planner's initial
// footer-range guess was too small.
package footer

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
)

const (
	magic = "PAR1"
	// FooterRangeGuess is the planner's initial footer-only read size: the
	// last min(100 KiB, file_length) bytes, per §4.10.
	FooterRangeGuess = 100 * 1024
	// CurrentVersion is the highest FileMetaData.Version this scanner
	// accepts.
	CurrentVersion = 2
)

var (
	ErrFileTooShort              = errors.New("footer: file too short to contain a Parquet footer")
	ErrBadMagic                  = errors.New("footer: missing PAR1 magic")
	ErrStaleMetadataFileTooShort = errors.New("footer: declared metadata length exceeds file length")
	ErrUnsupportedVersion        = errors.New("footer: unsupported FileMetaData version")
)

// FileSource is the consumed random-access file collaborator: a thin
// adapter over whatever the I/O layer's scan-range API actually returns.
type FileSource interface {
	Size() (int64, error)
	ReadRange(offset, length int64) ([]byte, error)
}

// Footer is the fully decoded, validated footer.
type Footer struct {
	Meta       *format.FileMetaData
	Version    fileversion.Version
	FileLength int64
}

// NumRows is a convenience accessor for the pure-count fast path.
func (f *Footer) NumRows() int64 { return f.Meta.NumRows }

// Read implements §4.10: it issues (or is handed) the initial
// min(100KiB,file_length) tail read, validates the magic and length, and
// reissues a wider read if the metadata does not fit in that initial range.
func Read(fs FileSource) (*Footer, error) {
	size, err := fs.Size()
	if err != nil {
		return nil, errors.Wrap(err, "footer: getting file size")
	}
	if size < 8 {
		return nil, ErrFileTooShort
	}

	rangeLen := int64(FooterRangeGuess)
	if rangeLen > size {
		rangeLen = size
	}
	tail, err := fs.ReadRange(size-rangeLen, rangeLen)
	if err != nil {
		return nil, errors.Wrap(err, "footer: reading initial footer range")
	}

	meta, err := decode(fs, size, tail)
	if err != nil {
		return nil, err
	}

	fmd, _, err := format.DecodeFileMetaData(meta)
	if err != nil {
		return nil, errors.Wrap(err, "footer: decoding FileMetaData")
	}
	if fmd.Version > CurrentVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "footer: version %d exceeds supported %d", fmd.Version, CurrentVersion)
	}

	createdBy := ""
	if fmd.HasCreatedBy {
		createdBy = fmd.CreatedBy
	}
	return &Footer{
		Meta:       fmd,
		Version:    fileversion.Parse(createdBy),
		FileLength: size,
	}, nil
}

// decode validates the trailing magic and length prefix within tail and
// returns the metadata bytes, refetching a wider range via fs if tail's
// initial read did not reach far enough back to cover the whole metadata.
func decode(fs FileSource, fileLength int64, tail []byte) ([]byte, error) {
	if len(tail) < 8 || string(tail[len(tail)-4:]) != magic {
		return nil, ErrBadMagic
	}
	metadataLen := int64(binary.LittleEndian.Uint32(tail[len(tail)-8 : len(tail)-4]))

	metadataStart := len(tail) - 8 - int(metadataLen)
	if metadataStart >= 0 {
		return tail[metadataStart : len(tail)-8], nil
	}

	fullLen := metadataLen + 8
	if fullLen > fileLength {
		return nil, errors.Wrapf(ErrStaleMetadataFileTooShort, "footer: metadata length %d exceeds file length %d", metadataLen, fileLength)
	}
	full, err := fs.ReadRange(fileLength-fullLen, fullLen)
	if err != nil {
		return nil, errors.Wrap(err, "footer: re-reading full footer range")
	}
	if string(full[len(full)-4:]) != magic {
		return nil, ErrBadMagic
	}
	return full[:len(full)-8], nil
}
