package repository

import (
	"github.com/manojoshi/restorm/query"
	"github.com/manojoshi/restorm/schema"
)

// call is the per-operation state options act on.
type call struct {
	b      *query.Builder
	schema *schema.Schema
	fields []string
}

// Opt is applied to the builder of a single repository call. Options that
// need the entity schema (Select, Fields) validate against it and fail the
// call before anything is sent.
type Opt interface {
	apply(*call) error
}

type optFunc struct {
	fn func(*call) error
}

func (o optFunc) apply(c *call) error { return o.fn(c) }

func builderOpt(fn func(*query.Builder)) Opt {
	return optFunc{fn: func(c *call) error { fn(c.b); return nil }}
}

// ---------- filtering ----------

// Where adds to the call's filter. Several Where options share one root.
func Where(fn func(*query.FilterBuilder)) Opt {
	return builderOpt(func(b *query.Builder) { b.Where(fn) })
}

// ---------- selection ----------

// Select picks attributes, checked against the entity schema.
func Select(fn func(*schema.Selector)) Opt {
	return optFunc{fn: func(c *call) error {
		nodes, err := c.schema.Select(fn)
		if err != nil {
			return err
		}
		c.b.Select(nodes...)
		return nil
	}}
}

// RawSelect passes s through unchecked.
func RawSelect(s string) Opt {
	return builderOpt(func(b *query.Builder) { b.RawSelect(s) })
}

// ---------- ordering / limits ----------

func SortAsc(key string) Opt  { return sortOpt(key, query.Asc) }
func SortDesc(key string) Opt { return sortOpt(key, query.Desc) }

func sortOpt(key string, d query.Dir) Opt {
	return builderOpt(func(b *query.Builder) { b.SortBy(key, d) })
}

func Limit(n int) Opt {
	return builderOpt(func(b *query.Builder) { b.Limit(n) })
}

// ---------- escape hatches ----------

// Param adds an unchecked query parameter.
func Param(key string, v any) Opt {
	return builderOpt(func(b *query.Builder) { b.Param(key, v) })
}

func Header(key, value string) Opt {
	return builderOpt(func(b *query.Builder) { b.Header(key, value) })
}

// ---------- writes ----------

// Fields restricts the body of Update to the named scalar attributes.
func Fields(names ...string) Opt {
	return optFunc{fn: func(c *call) error {
		if _, err := c.schema.Select(func(s *schema.Selector) { s.Field(names...) }); err != nil {
			return err
		}
		c.fields = append(c.fields, names...)
		return nil
	}}
}
