// Package schema builds the nested schema tree from a Parquet file's flat
// SchemaElement list and resolves logical request paths (which may traverse
// structs, arrays and maps) onto it under the three legal array-encoding
// conventions.
package schema

import (
	"github.com/cockroachdb/errors"
	"github.com/hexlake/pqscan/format"
)

// Node is one node of the file's schema tree, either an internal (struct,
// list, or map) node or a leaf bound to a physical column.
type Node struct {
	Element  *format.SchemaElement
	Parent   *Node
	Children []*Node

	// ColIdx is the 0-based index into the flat column list of each row
	// group; -1 for internal nodes.
	ColIdx int

	MaxDefLevel uint8
	MaxRepLevel uint8

	// DefLevelOfImmediateRepeatedAncestor is the definition level at which
	// the nearest enclosing repeated node becomes empty.
	DefLevelOfImmediateRepeatedAncestor uint8
}

// IsLeaf reports whether this node is bound to a physical column.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// IsRepeated reports whether the node's own repetition type is REPEATED.
func (n *Node) IsRepeated() bool {
	return n.Element.HasRepetitionType && n.Element.RepetitionType == format.Repeated
}

// IsOptional reports whether the node's own repetition type is OPTIONAL.
func (n *Node) IsOptional() bool {
	return n.Element.HasRepetitionType && n.Element.RepetitionType == format.Optional
}

// ChildByIndex returns the i-th child, used by PathResolver to advance by
// RequestedPath child index.
func (n *Node) ChildByIndex(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// ChildByName returns the child whose element name matches name, used by
// NAME resolution mode.
func (n *Node) ChildByName(name string) (*Node, int) {
	for i, c := range n.Children {
		if c.Element.Name == name {
			return c, i
		}
	}
	return nil, -1
}

// Tree is the decoded schema tree for one file, plus a flat index from
// column chunk position (as stored in each row group) to the leaf node.
type Tree struct {
	Root   *Node
	Leaves []*Node
}

// Build walks the flat, depth-first-serialized schema element list (as
// stored in FileMetaData.Schema) into a Tree.
func Build(elems []format.SchemaElement) (*Tree, error) {
	if len(elems) == 0 {
		return nil, errors.New("schema: empty schema element list")
	}
	pos := 0
	colIdx := 0
	root, err := build(elems, &pos, nil, 0, 0, 0, &colIdx)
	if err != nil {
		return nil, err
	}
	if pos != len(elems) {
		return nil, errors.Newf("schema: %d trailing schema elements not consumed", len(elems)-pos)
	}
	leaves := make([]*Node, colIdx)
	collectLeaves(root, leaves)
	return &Tree{Root: root, Leaves: leaves}, nil
}

func collectLeaves(n *Node, leaves []*Node) {
	if n.IsLeaf() {
		if n.ColIdx >= 0 {
			leaves[n.ColIdx] = n
		}
		return
	}
	for _, c := range n.Children {
		collectLeaves(c, leaves)
	}
}

func build(elems []format.SchemaElement, pos *int, parent *Node, parentMaxDef, parentMaxRep, parentRepAncestorDef uint8, colIdx *int) (*Node, error) {
	if *pos >= len(elems) {
		return nil, errors.New("schema: truncated schema element list")
	}
	elem := &elems[*pos]
	*pos++

	maxDef, maxRep := parentMaxDef, parentMaxRep
	switch {
	case parent == nil:
		// Root message: no repetition type semantics of its own.
	case elem.RepetitionType == format.Optional:
		maxDef++
	case elem.RepetitionType == format.Repeated:
		maxDef++
		maxRep++
	}

	node := &Node{
		Element:                              elem,
		Parent:                               parent,
		ColIdx:                               -1,
		MaxDefLevel:                          maxDef,
		MaxRepLevel:                          maxRep,
		DefLevelOfImmediateRepeatedAncestor:  parentRepAncestorDef,
	}

	childRepAncestorDef := parentRepAncestorDef
	if parent != nil && elem.RepetitionType == format.Repeated {
		childRepAncestorDef = maxDef
	}

	numChildren := 0
	if elem.HasNumChildren {
		numChildren = int(elem.NumChildren)
	}
	if numChildren == 0 {
		if *colIdx > 255 {
			return nil, errors.New("schema: column index exceeds supported depth")
		}
		node.ColIdx = *colIdx
		*colIdx++
		return node, nil
	}

	node.Children = make([]*Node, numChildren)
	for i := 0; i < numChildren; i++ {
		child, err := build(elems, pos, node, maxDef, maxRep, childRepAncestorDef, colIdx)
		if err != nil {
			return nil, err
		}
		node.Children[i] = child
	}
	return node, nil
}
