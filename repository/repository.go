// Package repository offers a typed CRUD façade over the query builder,
// one Repository per backend collection. It follows the functional-options
// pattern so call sites stay terse.
//
//	posts, _ := repository.New[Post]("posts", conn)
//	list, err := posts.List(ctx,
//	    repository.Where(func(f *query.FilterBuilder) {
//	        f.Where("published", true)
//	    }),
//	    repository.Select(func(s *schema.Selector) {
//	        s.All().Relation("comments", func(c *schema.Selector) { c.Field("body") })
//	    }),
//	    repository.SortDesc("created_at"),
//	    repository.Limit(20),
//	)
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manojoshi/restorm/driver"
	"github.com/manojoshi/restorm/query"
	"github.com/manojoshi/restorm/scan"
	"github.com/manojoshi/restorm/schema"
)

// ErrEmptyResponse is returned when a read yields no payload at all.
var ErrEmptyResponse = errors.New("repository: empty response")

// Repository is generic over the domain model T.
type Repository[T any] struct {
	path     string
	exec     driver.Executor
	schema   *schema.Schema
	defaults []Opt
}

// New binds T to the collection at path. defaults are applied before the
// options of every call.
func New[T any](path string, exec driver.Executor, defaults ...Opt) (*Repository[T], error) {
	s, err := schema.For[T]()
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	return &Repository[T]{path: path, exec: exec, schema: s, defaults: defaults}, nil
}

func (r *Repository[T]) Schema() *schema.Schema { return r.schema }

// Query returns the configured builder without dispatching it.
func (r *Repository[T]) Query(opts ...Opt) (*query.Builder, error) {
	c, err := r.prepare(opts)
	if err != nil {
		return nil, err
	}
	return c.b, nil
}

func (r *Repository[T]) prepare(opts []Opt) (*call, error) {
	c := &call{b: query.NewQuery(r.path).Using(r.exec), schema: r.schema}
	for _, o := range append(append([]Opt(nil), r.defaults...), opts...) {
		if err := o.apply(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// -------------------------------------------------------------------
// READ
// -------------------------------------------------------------------

func (r *Repository[T]) List(ctx context.Context, opts ...Opt) ([]T, error) {
	c, err := r.prepare(opts)
	if err != nil {
		return nil, err
	}
	raw, err := c.b.List(ctx)
	if err != nil {
		return nil, err
	}
	return scan.DecodeSlice[T](raw)
}

func (r *Repository[T]) Get(ctx context.Context, id string, opts ...Opt) (T, error) {
	var zero T
	c, err := r.prepare(opts)
	if err != nil {
		return zero, err
	}
	raw, err := c.b.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	return decodeOne[T](raw)
}

// -------------------------------------------------------------------
// WRITE
// -------------------------------------------------------------------

// Create posts payload, typically a T or a map of attributes.
func (r *Repository[T]) Create(ctx context.Context, payload any, opts ...Opt) (T, error) {
	var zero T
	c, err := r.prepare(opts)
	if err != nil {
		return zero, err
	}
	raw, err := c.b.Create(ctx, payload)
	if err != nil {
		return zero, err
	}
	return decodeOne[T](raw)
}

// Update patches the item identified by entity's pk attribute. With the
// Fields option only those attributes are sent. A response without a
// payload returns entity unchanged.
func (r *Repository[T]) Update(ctx context.Context, entity T, opts ...Opt) (T, error) {
	c, err := r.prepare(opts)
	if err != nil {
		return entity, err
	}
	id, err := r.schema.ID(entity)
	if err != nil {
		return entity, err
	}
	raw, err := c.b.Update(ctx, id, payload(r.schema, entity, c.fields))
	if err != nil {
		return entity, err
	}
	if raw == nil {
		return entity, nil
	}
	return decodeOne[T](raw)
}

// Delete removes the item identified by entity's pk attribute.
func (r *Repository[T]) Delete(ctx context.Context, entity T, opts ...Opt) error {
	c, err := r.prepare(opts)
	if err != nil {
		return err
	}
	id, err := r.schema.ID(entity)
	if err != nil {
		return err
	}
	_, err = c.b.Delete(ctx, id)
	return err
}

func decodeOne[T any](raw json.RawMessage) (T, error) {
	if raw == nil {
		var zero T
		return zero, ErrEmptyResponse
	}
	return scan.Decode[T](raw)
}
