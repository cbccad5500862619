package colreader

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/compress"
	"github.com/hexlake/pqscan/encoding/plain"
	"github.com/hexlake/pqscan/format"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/value"
)

// Wanted reports whether a leaf column should be materialized into the
// output batch rather than merely counted for level synchronization. The
// row group assembler supplies this from the query's column projection.
type Wanted func(leaf *schema.Node) bool

// CharLenFunc reports the declared CHAR(n) slot length for a leaf column, or
// 0 if the leaf isn't bound to a CHAR slot. A BYTE_ARRAY or
// FIXED_LEN_BYTE_ARRAY leaf with a nonzero length is right-padded with ASCII
// spaces (or truncated) to exactly that length at decode time.
type CharLenFunc func(leaf *schema.Node) int

// Build constructs the reader tree rooted at node: a ValueReader for a leaf,
// or a CollectionColumnReader recursively wrapping one reader per schema
// child for a struct or repeated group. wanted prunes which leaves actually
// materialize values; charLen supplies the CHAR(n) conversion for leaves
// bound to a declared SQL CHAR slot (nil or always-0 disables it entirely);
// inCollection is true once construction has descended past any repeated
// ancestor, since such columns can never use the drop-to-count fast path
// (their levels always drive collection assembly).
func Build(ctx *scannerctx.Ctx, node *schema.Node, codecs *compress.Registry, createdBy string, wanted Wanted, charLen CharLenFunc, inCollection bool) (Reader, error) {
	if node.IsLeaf() {
		if node.IsRepeated() {
			// A bare repeated leaf (the one-level array encoding has no
			// wrapping group around it) still needs a CollectionColumnReader
			// above it to turn its level stream into a list rather than one
			// output row per element.
			leaf, err := buildLeaf(ctx, node, codecs, createdBy, wanted(node), charLenOf(charLen, node), true)
			if err != nil {
				return nil, err
			}
			return NewCollectionColumnReader(node, []Reader{leaf}), nil
		}
		return buildLeaf(ctx, node, codecs, createdBy, wanted(node), charLenOf(charLen, node), inCollection)
	}

	childInCollection := inCollection || node.IsRepeated()
	children := make([]Reader, len(node.Children))
	for i, child := range node.Children {
		r, err := Build(ctx, child, codecs, createdBy, wanted, charLen, childInCollection)
		if err != nil {
			return nil, err
		}
		children[i] = r
	}
	return NewCollectionColumnReader(node, children), nil
}

func charLenOf(f CharLenFunc, node *schema.Node) int {
	if f == nil {
		return 0
	}
	return f(node)
}

func buildLeaf(ctx *scannerctx.Ctx, node *schema.Node, codecs *compress.Registry, createdBy string, materialize bool, charLen int, inCollection bool) (Reader, error) {
	elem := node.Element
	switch elem.Type {
	case format.Boolean:
		r := NewBoolColumnReader(ctx, node, codecs)
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	case format.Int32:
		r := NewScalarColumnReader(ctx, node, codecs, plain.DecodeInt32, value.OfInt32, nil)
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	case format.Int64:
		r := NewScalarColumnReader(ctx, node, codecs, plain.DecodeInt64, value.OfInt64, nil)
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	case format.Float:
		r := NewScalarColumnReader(ctx, node, codecs, plain.DecodeFloat32, value.OfFloat32, nil)
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	case format.Double:
		r := NewScalarColumnReader(ctx, node, codecs, plain.DecodeFloat64, value.OfFloat64, nil)
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	case format.Int96:
		convert := int96Converter(ctx, createdBy)
		r := NewScalarColumnReader(ctx, node, codecs, plain.DecodeInt96, value.OfInt96, convert)
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	case format.ByteArray:
		r := NewScalarColumnReader(ctx, node, codecs, plain.DecodeByteArray, value.OfBytes, charConverter(charLen))
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	case format.FixedLenByteArray:
		size := int(elem.TypeLength)
		decode := func(data []byte) ([]byte, int, error) {
			return plain.DecodeFixedLenByteArray(data, size)
		}
		r := NewScalarColumnReader(ctx, node, codecs, decode, value.OfBytes, charConverter(charLen))
		r.Materialized = materialize
		r.InCollection = inCollection
		return r, nil
	default:
		return nil, errors.Newf("colreader: unsupported physical type %v for column %q", elem.Type, elem.Name)
	}
}

// BuildPositionReader builds a bare, unwrapped reader over node purely to
// drive ARRAY_POS: it decodes no values (Materialized is always false) and
// exists only so ReadValueBatch's posOut parameter can be fed from node's
// own repetition level stream. node must be the scalar leaf that carries the
// requested array's own repeated boundary (the array item itself for a
// one/two-level encoding, or its single child for three-level); a group
// reached through a deeper nested array or struct has no column chunk to
// read and is rejected.
func BuildPositionReader(ctx *scannerctx.Ctx, node *schema.Node, codecs *compress.Registry) (Reader, error) {
	if !node.IsLeaf() {
		return nil, errors.Newf("colreader: ARRAY_POS requires a scalar array, got group %q", node.Element.Name)
	}
	return buildLeaf(ctx, node, codecs, "", false, 0, true)
}

// charConverter returns the CHAR(n) pad/truncate conversion for a declared
// length, or nil when charLen is 0 (not a CHAR slot). Matches the fixed-
// width SQL CHAR semantics: values longer than the declared length are
// truncated, shorter ones are right-padded with ASCII spaces.
func charConverter(charLen int) func(value.Value) value.Value {
	if charLen <= 0 {
		return nil
	}
	return func(v value.Value) value.Value {
		if v.Kind != value.KindBytes {
			return v
		}
		if len(v.Bytes) == charLen {
			return v
		}
		if len(v.Bytes) > charLen {
			return value.OfBytes(v.Bytes[:charLen])
		}
		padded := make([]byte, charLen)
		copy(padded, v.Bytes)
		for i := len(v.Bytes); i < charLen; i++ {
			padded[i] = ' '
		}
		return value.OfBytes(padded)
	}
}

// int96Converter returns the INT96 conversion hook when the scanner's legacy
// timestamp option is on and the file was written by parquet-mr. The hook
// turns each INT96 value into a KindInt64 value holding
// plain.Int96.UnixNanos; it applies no time-zone offset, so the result is
// still UTC. nil disables the conversion, leaving INT96 values as KindInt96.
func int96Converter(ctx *scannerctx.Ctx, createdBy string) func(value.Value) value.Value {
	if !ctx.Config.ConvertLegacyHiveParquetUTCTimestamps {
		return nil
	}
	if !hasPrefixFold(createdBy, "parquet-mr") {
		return nil
	}
	return func(v value.Value) value.Value {
		if v.Kind != value.KindInt96 {
			return v
		}
		return value.OfInt64(v.Int96.UnixNanos())
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
