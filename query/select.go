package query

import "strings"

// SelectNode is either a bare field or a relation with nested entries.
// Trees are built per call and never mutated afterwards.
type SelectNode interface {
	Name() string
	writeSelect(sb *strings.Builder)
}

type (
	field    struct{ name string }
	relation struct {
		name     string
		children []SelectNode
	}
)

// Field selects a scalar attribute, or "*".
func Field(name string) SelectNode { return field{name} }

// Relation selects a related entity with its own nested selection.
func Relation(name string, children ...SelectNode) SelectNode {
	return relation{name: name, children: append([]SelectNode(nil), children...)}
}

func (f field) Name() string    { return f.name }
func (r relation) Name() string { return r.name }

// Children returns the nested entries of a relation.
func (r relation) Children() []SelectNode { return append([]SelectNode(nil), r.children...) }

// IsRelation reports whether n carries a nested selection.
func IsRelation(n SelectNode) bool {
	_, ok := n.(relation)
	return ok
}
