// Package query builds PostgREST-style filter and select strings from a
// fluent description of what to fetch.
//
//	import q "github.com/manojoshi/restorm/query"
//
//	f := q.NewFilter().
//	    WhereIn("id", 1, 2, 3).
//	    Or(func(f *q.FilterBuilder) {
//	        f.Where("active", true).WhereGte("created_at", "2019-01-01")
//	    })
//
//	f.Build() // and(id.in.(1,2,3),or(active.eq.true,created_at.gte.2019-01-01))
package query

import (
	"strings"

	"github.com/manojoshi/restorm/internal"
)

// Operator is the comparison applied by a leaf expression. The set is closed.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGte      Operator = "gte"
	OpGt       Operator = "gt"
	OpLte      Operator = "lte"
	OpLt       Operator = "lt"
	OpSearch   Operator = "search"
	OpILike    Operator = "ilike"
	OpLike     Operator = "like"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

// Combinator joins the children of a BooleanGroup.
type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

// -------------------------------------------------------------------
// Node – the sealed union of Expression and *BooleanGroup. Nodes only
// hold data; the writers live in compile.go.
// -------------------------------------------------------------------

type Node interface {
	compile(*strings.Builder)
}

// Expression is an immutable key.operator.value leaf.
//
// Value must be a string, bool, integer or float for every operator but
// OpIn, which takes a slice of strings or numbers. This is not checked.
type Expression struct {
	key   string
	op    Operator
	value any
}

func NewExpression(key string, op Operator, value any) Expression {
	return Expression{key: key, op: op, value: value}
}

func (e Expression) Key() string        { return e.key }
func (e Expression) Operator() Operator { return e.op }
func (e Expression) Value() any         { return e.value }

// Seq boxes a typed slice so it can be spread into WhereIn.
//
//	f.WhereIn("id", q.Seq(ids...)...)
func Seq[T internal.Scalar](vs ...T) []any { return internal.Boxed(vs) }
