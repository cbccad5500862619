// Package page reads, validates and decompresses successive pages from a
// column chunk's compressed byte stream, classifying each as a dictionary,
// data, or other page.
package page

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/compress"
	"github.com/hexlake/pqscan/fileversion"
	"github.com/hexlake/pqscan/format"
)

// DefaultMaxPageHeaderSize is the §6 max_page_header_size default: 8 MiB.
const DefaultMaxPageHeaderSize = 8 << 20

// Kind classifies a decoded page.
type Kind int

const (
	KindDictionary Kind = iota
	KindData
	KindOther
)

// Page is one decoded, decompressed page ready for level/value decoding.
type Page struct {
	Kind   Kind
	Header *format.PageHeader
	// Data is the uncompressed page body. For dictionary and data pages this
	// is either the body slice read from the stream (uncompressed chunks) or
	// the slice the codec's Decode returned; for other pages it is nil, since
	// the body is never materialized.
	Data []byte
}

var (
	ErrHeaderEOF              = errors.New("page: header exceeds max_page_header_size or stream ended")
	ErrUnsupportedCompression = compress.ErrUnsupportedCompression
	ErrCorruptDictionary      = errors.New("page: dictionary page missing header and file is not a recognized bug-compatible writer")
)

// Reader reads successive pages from one column chunk's byte stream.
type Reader struct {
	stream            bytestream.ByteStream
	codec             format.CompressionCodec
	codecs            *compress.Registry
	maxPageHeaderSize int
	physicalType      format.Type
	sawDictionaryPage bool

	version fileversion.Version
}

// NewReader constructs a page reader over stream, decompressing bodies with
// codec, for a column chunk of the given physical type. version identifies
// the writer, used only for the dictionary-page-without-header quirk.
func NewReader(stream bytestream.ByteStream, codec format.CompressionCodec, codecs *compress.Registry, physicalType format.Type, version fileversion.Version, maxPageHeaderSize int) *Reader {
	if maxPageHeaderSize <= 0 {
		maxPageHeaderSize = DefaultMaxPageHeaderSize
	}
	return &Reader{
		stream:            stream,
		codec:             codec,
		codecs:            codecs,
		maxPageHeaderSize: maxPageHeaderSize,
		physicalType:      physicalType,
		version:           version,
	}
}

// ReadNextPage implements §4.3's five-step algorithm. It returns (nil, nil)
// when the stream is exhausted, as reported by bytestream.ByteStream.EOF.
func (r *Reader) ReadNextPage() (*Page, error) {
	if r.stream.EOF() {
		return nil, nil
	}

	header, headerLen, err := r.readHeader()
	if err != nil {
		return nil, err
	}
	if err := r.stream.SkipBytes(headerLen); err != nil {
		return nil, errors.Wrap(err, "page: consuming header bytes")
	}

	body, err := r.stream.ReadBytes(int(header.CompressedPageSize))
	if err != nil {
		return nil, errors.Wrap(err, "page: reading compressed page body")
	}

	kind := classify(header.Type)

	if kind == KindOther {
		return &Page{Kind: KindOther, Header: header}, nil
	}

	if kind == KindDictionary {
		if r.sawDictionaryPage {
			return nil, errors.New("page: a second dictionary page is illegal in one column chunk")
		}
		r.sawDictionaryPage = true
		if r.physicalType == format.Boolean {
			return nil, errors.New("page: dictionary page is illegal for BOOLEAN columns")
		}
		if header.DictionaryPageHeader == nil {
			if !r.isBugCompatibleMissingDictHeader() {
				return nil, ErrCorruptDictionary
			}
			// Treat as PLAIN-encoded with an inferred header.
			header.DictionaryPageHeader = &format.DictionaryPageHeader{Encoding: format.Plain}
		}
	}

	if header.Type == format.DataPageV2 {
		data, err := r.decompressV2(header.DataPageHeaderV2, body, int(header.UncompressedPageSize))
		if err != nil {
			return nil, err
		}
		return &Page{Kind: kind, Header: header, Data: data}, nil
	}

	data, err := r.decompress(body, int(header.UncompressedPageSize))
	if err != nil {
		return nil, err
	}
	return &Page{Kind: kind, Header: header, Data: data}, nil
}

// decompressV2 handles DataPageHeaderV2's split layout: the definition and
// repetition level streams are never compressed, even when IsCompressed is
// set, so only the trailing value bytes run through the codec.
func (r *Reader) decompressV2(h *format.DataPageHeaderV2, body []byte, uncompressedSize int) ([]byte, error) {
	levelsLen := int(h.DefinitionLevelsByteLength) + int(h.RepetitionLevelsByteLength)
	if levelsLen > len(body) {
		return nil, errors.New("page: v2 level lengths exceed page body")
	}
	levels, rest := body[:levelsLen], body[levelsLen:]
	if !h.IsCompressed || r.codec == format.Uncompressed {
		return body, nil
	}
	values, err := r.decompress(rest, uncompressedSize-levelsLen)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, levelsLen+len(values))
	out = append(out, levels...)
	out = append(out, values...)
	return out, nil
}

// isBugCompatibleMissingDictHeader implements the bug-compat rule: accept a
// dictionary page without a dictionary_page_header if the file was written
// by Impala 1.1.0, or by an Impala-internal build of 1.2.0.
func (r *Reader) isBugCompatibleMissingDictHeader() bool {
	if !r.version.IsApplication("impala") {
		return false
	}
	if r.version.Eq(1, 1, 0) {
		return true
	}
	return r.version.IsImpalaInternal && r.version.Eq(1, 2, 0)
}

func classify(t format.PageType) Kind {
	switch t {
	case format.DictionaryPage:
		return KindDictionary
	case format.DataPage, format.DataPageV2:
		return KindData
	default:
		return KindOther
	}
}

// readHeader implements the peek-and-retry-doubling loop: peek an
// increasing window until the Thrift decoder either succeeds or the window
// reaches maxPageHeaderSize.
func (r *Reader) readHeader() (*format.PageHeader, int, error) {
	peekSize := 256
	for {
		buf, err := r.stream.PeekBytes(peekSize)
		if err != nil {
			return nil, 0, errors.Wrap(err, "page: peeking header bytes")
		}

		header, consumed, err := format.DecodePageHeader(buf)
		if err == nil {
			return header, consumed, nil
		}
		if !errors.Is(err, format.ErrShortBuffer) {
			return nil, 0, errors.Wrap(err, "page: decoding page header")
		}
		if len(buf) < peekSize {
			// The stream itself ran out of bytes; no amount of peeking helps.
			return nil, 0, errors.Wrap(ErrHeaderEOF, "page: stream ended inside page header")
		}
		if peekSize >= r.maxPageHeaderSize {
			return nil, 0, errors.Wrapf(ErrHeaderEOF, "page: header exceeds max_page_header_size of %d bytes", r.maxPageHeaderSize)
		}
		peekSize *= 2
		if peekSize > r.maxPageHeaderSize {
			peekSize = r.maxPageHeaderSize
		}
	}
}

func (r *Reader) decompress(body []byte, uncompressedSize int) ([]byte, error) {
	if r.codec == format.Uncompressed {
		return body, nil
	}
	codec, err := r.codecs.Acquire(r.codec)
	if err != nil {
		return nil, err
	}
	defer r.codecs.Release(r.codec, codec)

	out, err := codec.Decode(nil, body, uncompressedSize)
	if err != nil {
		return nil, errors.Wrapf(err, "page: decompressing %v page body", r.codec)
	}
	return out, nil
}
