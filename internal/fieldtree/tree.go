// Package fieldtree holds the snapshot of a screen's fillable field
// hierarchy. The session core treats it as an opaque, queryable structure:
// lookup is a pure function, and values are written back in place only when
// preparing a save request.
package fieldtree

import "github.com/fillmgr/fillmgr/internal/model"

// Node is one field (or container) in the captured hierarchy. Leaf fields
// carry the value the screen had at capture time.
type Node struct {
	ID       model.FieldID
	Value    model.Value
	Bounds   *model.Rect
	Children []*Node
}

// Tree is the snapshot captured once at session start. It is mutated in
// place with user-edited values before being handed to the provider's save
// operation.
type Tree struct {
	Roots []*Node
}

// FindByID walks the tree depth-first and returns the node with the given
// id, or nil.
func (t *Tree) FindByID(id model.FieldID) *Node {
	if t == nil {
		return nil
	}
	for _, root := range t.Roots {
		if root.ID == id {
			return root
		}
		if n := findChild(root, id); n != nil {
			return n
		}
	}
	return nil
}

func findChild(parent *Node, id model.FieldID) *Node {
	for _, child := range parent.Children {
		if child.ID == id {
			return child
		}
		if n := findChild(child, id); n != nil {
			return n
		}
	}
	return nil
}

// SetValue writes a value into the node for id and reports whether the node
// was found.
func (t *Tree) SetValue(id model.FieldID, v model.Value) bool {
	n := t.FindByID(id)
	if n == nil {
		return false
	}
	n.Value = v
	return true
}

// OriginalValue returns the value currently recorded for id. For fields the
// user never touched this is the value captured at session start.
func (t *Tree) OriginalValue(id model.FieldID) (model.Value, bool) {
	n := t.FindByID(id)
	if n == nil {
		return model.Value{}, false
	}
	return n.Value, true
}
