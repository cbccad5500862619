package schema

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/format"
)

// PathStep sentinels used in a RequestedPath in place of a real child index
// at array and map positions.
const (
	ArrayPos  = -1
	ArrayItem = -2
	MapKey    = -3
	MapValue  = -4
)

// RequestedPath is an ordered sequence of child indices (or sentinels) that
// names a column the planner wants materialized, possibly nested inside
// structs, arrays or maps. Index 0 names a top-level table column.
type RequestedPath []int

// ArrayEncoding is one of the three legal on-disk conventions for
// representing a LIST-typed column.
type ArrayEncoding int

const (
	TwoLevel ArrayEncoding = iota
	ThreeLevel
	OneLevel
)

// resolutionOrder is the sequence §4.9 specifies: try two-level, then
// three-level, then the bare one-level encoding.
var resolutionOrder = [...]ArrayEncoding{TwoLevel, ThreeLevel, OneLevel}

// NameResolution controls whether struct/top-level fields resolve by name
// or by position, the parquet_fallback_schema_resolution option.
type NameResolution int

const (
	ByName NameResolution = iota
	ByPosition
)

// ErrMissingField signals that the path named a field absent from this
// file's schema; the caller should NULL the slot rather than treat this as
// fatal.
var ErrMissingField = errors.New("schema: path names a field missing from the file schema")

// ErrUnrecognizedSchema signals that none of the three array conventions
// could make sense of the physical schema at this path step.
var ErrUnrecognizedSchema = errors.New("schema: unrecognized array/map schema shape")

// PathResolver resolves RequestedPaths against one Tree, honoring
// partitionKeyCount (top-level table columns before column 0 that are
// synthesized by the planner rather than stored in the file) and the
// configured name/position resolution mode.
type PathResolver struct {
	Tree              *Tree
	PartitionKeyCount int
	Mode              NameResolution
	// ColumnNames maps a top-level logical column index to its name, used in
	// ByName mode alongside the raw schema; the planner supplies this.
	ColumnNames []string
}

// Resolve implements §4.9's three-convention fallback: the first convention
// that resolves without reporting a missing field wins; if none succeed but
// at least one reports missing-field, that is returned; otherwise the
// three-level convention's error is surfaced (the Parquet standard).
func (r *PathResolver) Resolve(path RequestedPath) (*Node, error) {
	var missing bool
	var threeLevelErr error

	for _, conv := range resolutionOrder {
		node, err := r.resolveWith(path, conv)
		switch {
		case err == nil:
			return node, nil
		case errors.Is(err, ErrMissingField):
			missing = true
		case conv == ThreeLevel:
			threeLevelErr = err
		}
	}

	if missing {
		return nil, ErrMissingField
	}
	if threeLevelErr != nil {
		return nil, threeLevelErr
	}
	return nil, ErrUnrecognizedSchema
}

func (r *PathResolver) resolveWith(path RequestedPath, conv ArrayEncoding) (*Node, error) {
	if len(path) == 0 {
		return nil, errors.New("schema: empty requested path")
	}

	top := path[0]
	if top < r.PartitionKeyCount {
		// Partition keys are synthesized by the planner, not stored in the
		// file; the core skips them entirely.
		return nil, ErrMissingField
	}

	var node *Node
	switch r.Mode {
	case ByName:
		name := ""
		if top < len(r.ColumnNames) {
			name = r.ColumnNames[top]
		}
		node, _ = childByName(r.Tree.Root, name)
		if node == nil {
			return nil, ErrMissingField
		}
	default: // ByPosition
		idx := top - r.PartitionKeyCount
		node = r.Tree.Root.ChildByIndex(idx)
		if node == nil {
			return nil, ErrMissingField
		}
	}

	rest := path[1:]
	for len(rest) > 0 {
		next, consumed, err := stepInto(node, rest, conv, r.Mode)
		if err != nil {
			return nil, err
		}
		node = next
		rest = rest[consumed:]
		if node == nil {
			return nil, ErrMissingField
		}
		if node.IsLeaf() {
			break
		}
	}

	if node.IsLeaf() {
		if err := ValidateScalar(node); err != nil {
			return nil, err
		}
	}
	// A STRUCT reached with no further path steps is a legal terminal: the
	// whole nested record is requested (e.g. to detect SQL NULL on it).
	return node, nil
}

func childByName(n *Node, name string) (*Node, int) {
	return n.ChildByName(name)
}

// stepInto advances one RequestedPath step from node, returning the next
// node and how many path elements were consumed (1, except struct steps
// which consume exactly 1 too; arrays/maps consume their own grouping
// levels implicitly and then 1 element for ARRAY_POS/ARRAY_ITEM/MAP_KEY/
// MAP_VALUE).
func stepInto(node *Node, rest RequestedPath, conv ArrayEncoding, mode NameResolution) (*Node, int, error) {
	isArray := looksLikeArray(node, conv)
	isMap := looksLikeMap(node)

	switch {
	case isArray:
		return stepArray(node, rest, conv)
	case isMap:
		return stepMap(node, rest, mode)
	default:
		// STRUCT: advance by the next path element (name or position).
		if len(rest) == 0 {
			return nil, 0, errors.New("schema: path ended inside a struct")
		}
		idx := rest[0]
		if idx < 0 {
			return nil, 0, errors.New("schema: array/map sentinel used against a struct field")
		}
		var child *Node
		if mode == ByName {
			// Nested struct fields are taken by index in both modes; only the
			// top-level column is matched by name (via ColumnNames), and
			// nested field names are not compared.
			child = node.ChildByIndex(idx)
		} else {
			child = node.ChildByIndex(idx)
		}
		if child == nil {
			return nil, 0, ErrMissingField
		}
		return child, 1, nil
	}
}

// looksLikeArray reports whether node's physical layout matches the LIST
// convention being tried. One-level: node itself is REPEATED with no
// further group wrapper. Two/three-level: node is a group (often annotated
// LIST) containing exactly one REPEATED child.
func looksLikeArray(node *Node, conv ArrayEncoding) bool {
	switch conv {
	case OneLevel:
		return node.IsRepeated() && node.IsLeaf()
	default: // TwoLevel, ThreeLevel
		if node.IsLeaf() || len(node.Children) != 1 {
			return false
		}
		return node.Children[0].IsRepeated()
	}
}

// looksLikeMap reports whether node is a group with exactly one repeated
// child that itself has exactly two children (key, value).
func looksLikeMap(node *Node) bool {
	if node.IsLeaf() || len(node.Children) != 1 {
		return false
	}
	repeated := node.Children[0]
	return repeated.IsRepeated() && len(repeated.Children) == 2
}

func stepArray(node *Node, rest RequestedPath, conv ArrayEncoding) (*Node, int, error) {
	if len(rest) == 0 {
		return nil, 0, errors.New("schema: path ended at an array without ARRAY_POS/ARRAY_ITEM")
	}
	sentinel := rest[0]

	var repeatedNode *Node
	switch conv {
	case OneLevel:
		repeatedNode = node // the repeated node is the item itself
	default:
		repeatedNode = node.Children[0]
	}

	switch sentinel {
	case ArrayPos:
		// Artificial position field; no SchemaNode backs it, the assembler
		// materializes pos_current_value instead. Stay on the repeated node
		// so deeper steps (if any) still see the array's item type.
		return repeatedNode, 1, nil
	case ArrayItem:
		if len(rest) == 1 {
			// Terminal: the caller wants the array's elements themselves, not
			// a field further inside them. Stay on the repeated node itself
			// so Build assembles a list from it instead of flattening each
			// element into its own row.
			return repeatedNode, 1, nil
		}
		switch conv {
		case OneLevel:
			return repeatedNode, 1, nil
		case ThreeLevel:
			if len(repeatedNode.Children) != 1 {
				return nil, 0, errors.Wrap(ErrUnrecognizedSchema, "schema: three-level array's repeated group must have exactly one child")
			}
			return repeatedNode.Children[0], 1, nil
		case TwoLevel:
			return repeatedNode, 1, nil
		}
	}
	return nil, 0, errors.New("schema: expected ARRAY_POS or ARRAY_ITEM sentinel")
}

func stepMap(node *Node, rest RequestedPath, mode NameResolution) (*Node, int, error) {
	if len(rest) == 0 {
		return nil, 0, errors.New("schema: path ended at a map without MAP_KEY/MAP_VALUE")
	}
	repeated := node.Children[0]
	if len(repeated.Children) != 2 {
		return nil, 0, errors.Wrap(ErrUnrecognizedSchema, "schema: map's repeated group must have exactly two children")
	}
	switch rest[0] {
	case MapKey:
		return repeated.Children[0], 1, nil
	case MapValue:
		return repeated.Children[1], 1, nil
	default:
		// NAME mode falls back to positional for key/value, per §4.9.
		if mode == ByName {
			return nil, 0, errors.New("schema: expected MAP_KEY or MAP_VALUE sentinel")
		}
		return nil, 0, errors.New("schema: expected MAP_KEY or MAP_VALUE sentinel")
	}
}

// DecimalSize returns the minimum number of bytes needed to hold an unscaled
// decimal value of the given precision, used to validate FIXED_LEN_BYTE_ARRAY
// decimal columns (§4.9's scalar verification step).
func DecimalSize(precision int32) int32 {
	switch {
	case precision <= 0:
		return 0
	case precision <= 2:
		return 1
	case precision <= 4:
		return 2
	case precision <= 6:
		return 3
	case precision <= 9:
		return 4
	case precision <= 11:
		return 5
	case precision <= 14:
		return 6
	case precision <= 16:
		return 7
	case precision <= 18:
		return 8
	case precision <= 21:
		return 9
	case precision <= 24:
		return 10
	case precision <= 26:
		return 11
	case precision <= 29:
		return 12
	case precision <= 31:
		return 13
	case precision <= 34:
		return 14
	case precision <= 36:
		return 15
	default:
		return 16
	}
}

// ValidateScalar verifies that the Parquet physical type at node matches the
// expected logical type for a terminal scalar path step, per §4.9.
func ValidateScalar(node *Node) error {
	if !node.IsLeaf() {
		return errors.New("schema: expected a scalar leaf")
	}
	elem := node.Element
	if elem.HasConvertedType && elem.ConvertedType == format.Decimal {
		if elem.Type != format.FixedLenByteArray {
			return errors.Wrap(ErrBadConvertedType, "schema: DECIMAL requires FIXED_LEN_BYTE_ARRAY")
		}
		if !elem.HasPrecision || elem.Precision == 0 {
			return ErrMissingPrecision
		}
		if !elem.HasScale {
			return ErrMissingScale
		}
		want := DecimalSize(elem.Precision)
		if elem.TypeLength != want {
			return errors.Wrapf(ErrWrongPrecision, "schema: decimal(%d) needs %d bytes, column declares %d", elem.Precision, want, elem.TypeLength)
		}
	}
	return nil
}

var (
	ErrBadConvertedType   = errors.New("schema: converted type incompatible with physical type")
	ErrIncompatibleDecimal = errors.New("schema: decimal physical type incompatible with declared precision/scale")
	ErrWrongPrecision     = errors.New("schema: decimal byte length does not match declared precision")
	ErrMissingPrecision   = errors.New("schema: decimal column missing precision")
	ErrMissingScale       = errors.New("schema: decimal column missing scale")
)
