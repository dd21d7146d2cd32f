package schema

import (
	"errors"
	"fmt"

	"github.com/manojoshi/restorm/query"
)

const wildcard = "*"

var (
	ErrUnknownField    = errors.New("unknown attribute")
	ErrRelationAsField = errors.New("relation must be selected with Relation")
	ErrFieldAsRelation = errors.New("scalar attribute cannot take a nested selection")
)

// SelectError pins a failed selection to its entity and attribute.
type SelectError struct {
	Entity string
	Field  string
	Err    error
}

func (e *SelectError) Error() string {
	return fmt.Sprintf("schema: %s.%s: %v", e.Entity, e.Field, e.Err)
}

func (e *SelectError) Unwrap() error { return e.Err }

// Selector builds a select tree checked against a Schema. The first
// invalid call is remembered and every later call is a no-op.
type Selector struct {
	schema *Schema
	nodes  []query.SelectNode
	err    error
}

// Select runs fn against a fresh Selector and returns the validated tree.
func (s *Schema) Select(fn func(*Selector)) ([]query.SelectNode, error) {
	sel := &Selector{schema: s}
	fn(sel)
	if sel.err != nil {
		return nil, sel.err
	}
	return sel.nodes, nil
}

// All selects every scalar column ("*").
func (sel *Selector) All() *Selector {
	if sel.err == nil {
		sel.nodes = append(sel.nodes, query.Field(wildcard))
	}
	return sel
}

// Field selects scalar attributes by name.
func (sel *Selector) Field(names ...string) *Selector {
	for _, name := range names {
		if sel.err != nil {
			return sel
		}
		if name == wildcard {
			sel.All()
			continue
		}
		a, ok := sel.schema.byName[name]
		switch {
		case !ok:
			sel.fail(name, ErrUnknownField)
		case a.Kind == KindRelation:
			sel.fail(name, ErrRelationAsField)
		default:
			sel.nodes = append(sel.nodes, query.Field(name))
		}
	}
	return sel
}

// Relation selects a related entity; fn picks its attributes against the
// related schema. An empty nested selection means "*".
func (sel *Selector) Relation(name string, fn func(*Selector)) *Selector {
	if sel.err != nil {
		return sel
	}
	a, ok := sel.schema.byName[name]
	switch {
	case !ok:
		return sel.fail(name, ErrUnknownField)
	case a.Kind != KindRelation:
		return sel.fail(name, ErrFieldAsRelation)
	}

	child := &Selector{schema: a.Target}
	if fn != nil {
		fn(child)
	}
	if child.err != nil {
		sel.err = child.err
		return sel
	}
	if len(child.nodes) == 0 {
		child.All()
	}
	sel.nodes = append(sel.nodes, query.Relation(name, child.nodes...))
	return sel
}

func (sel *Selector) fail(name string, err error) *Selector {
	sel.err = &SelectError{Entity: sel.schema.entity, Field: name, Err: err}
	return sel
}

// Validate checks a select tree built directly with query.Field and
// query.Relation.
func (s *Schema) Validate(nodes ...query.SelectNode) error {
	for _, n := range nodes {
		name := n.Name()
		if name == wildcard && !query.IsRelation(n) {
			continue
		}
		a, ok := s.byName[name]
		if !ok {
			return &SelectError{Entity: s.entity, Field: name, Err: ErrUnknownField}
		}

		rel, isRel := n.(interface{ Children() []query.SelectNode })
		switch {
		case isRel && a.Kind != KindRelation:
			return &SelectError{Entity: s.entity, Field: name, Err: ErrFieldAsRelation}
		case !isRel && a.Kind == KindRelation:
			return &SelectError{Entity: s.entity, Field: name, Err: ErrRelationAsField}
		case isRel:
			if err := a.Target.Validate(rel.Children()...); err != nil {
				return err
			}
		}
	}
	return nil
}
