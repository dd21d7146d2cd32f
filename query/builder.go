package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manojoshi/restorm/driver"
	"github.com/manojoshi/restorm/internal"
	"github.com/manojoshi/restorm/scan"
)

// -------------------------------------------------------------------
// Builder – fluent request builder for one collection path
// -------------------------------------------------------------------

type Dir string

const (
	Asc  Dir = "asc"
	Desc Dir = "desc"
)

// Sort is one ordering directive. Descending keys are sent as !key.
type Sort struct {
	Key string
	Dir Dir
}

func (s Sort) String() string {
	if s.Dir == Desc {
		return "!" + s.Key
	}
	return s.Key
}

var (
	ErrNoExecutor = errors.New("query: executor not set (call Using())")
	ErrMissingID  = errors.New("query: id is required")
)

const (
	ParamFilter = "filter"
	ParamSelect = "select"
	ParamLimit  = "limit"
	ParamSort   = "sort"
)

type Builder struct {
	path      string
	filter    *FilterBuilder
	selection []SelectNode
	rawSelect string
	sorts     []Sort
	limit     *int
	params    map[string]any
	headers   http.Header
	executor  driver.Executor
}

// NewQuery starts a builder for the collection at path, relative to the
// executor's base URL.
func NewQuery(path string) *Builder {
	return &Builder{path: path, params: map[string]any{}, headers: http.Header{}}
}

// Where hands fn the builder's filter; repeated calls keep adding to the
// same root group.
func (b *Builder) Where(fn func(*FilterBuilder)) *Builder {
	if b.filter == nil {
		b.filter = NewFilter()
	}
	fn(b.filter)
	return b
}

// Filter replaces the filter with f.
func (b *Builder) Filter(f *FilterBuilder) *Builder { b.filter = f; return b }

func (b *Builder) Select(nodes ...SelectNode) *Builder {
	b.selection = append(b.selection, nodes...)
	return b
}

// RawSelect sends s as the select parameter unchecked. It wins over Select.
func (b *Builder) RawSelect(s string) *Builder { b.rawSelect = s; return b }

func (b *Builder) SortBy(key string, d Dir) *Builder {
	b.sorts = append(b.sorts, Sort{Key: key, Dir: d})
	return b
}

func (b *Builder) Limit(n int) *Builder { b.limit = &n; return b }

// Param adds an arbitrary, unchecked query parameter. nil values are
// dropped at encoding time.
func (b *Builder) Param(key string, v any) *Builder { b.params[key] = v; return b }

func (b *Builder) Header(key, value string) *Builder { b.headers.Set(key, value); return b }

func (b *Builder) Using(ex driver.Executor) *Builder { b.executor = ex; return b }

func (b *Builder) Path() string { return b.path }

// Params assembles the query parameters: the extra params first, then
// filter, select, limit and sort on top when they are set.
func (b *Builder) Params() map[string]any {
	out := make(map[string]any, len(b.params)+4)
	for k, v := range b.params {
		out[k] = v
	}

	if b.filter != nil {
		if f := b.filter.Build(); f != "" {
			out[ParamFilter] = f
		}
	}

	sel := b.rawSelect
	if sel == "" && len(b.selection) > 0 {
		sel = SerializeSelect(b.selection...)
	}
	if sel != "" {
		out[ParamSelect] = sel
	}

	if b.limit != nil {
		out[ParamLimit] = *b.limit
	}

	if len(b.sorts) > 0 {
		out[ParamSort] = internal.Map(b.sorts, Sort.String)
	}
	return out
}

func (b *Builder) Headers() http.Header { return b.headers.Clone() }

// Request renders the driver request for method against the collection,
// or against the item when id is set.
func (b *Builder) Request(method, id string, body any) *driver.Request {
	return &driver.Request{
		Method: method,
		Path:   b.path,
		ID:     id,
		Query:  b.Params(),
		Header: b.Headers(),
		Body:   body,
	}
}

// List issues GET on the collection.
func (b *Builder) List(ctx context.Context) (json.RawMessage, error) {
	return b.run(ctx, http.MethodGet, "", nil)
}

// Get issues GET on one item.
func (b *Builder) Get(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	return b.run(ctx, http.MethodGet, id, nil)
}

// Create issues POST on the collection with payload as the JSON body.
func (b *Builder) Create(ctx context.Context, payload any) (json.RawMessage, error) {
	return b.run(ctx, http.MethodPost, "", payload)
}

// Update issues PATCH on the item identified by id.
func (b *Builder) Update(ctx context.Context, id string, payload any) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	return b.run(ctx, http.MethodPatch, id, payload)
}

// Delete issues DELETE on the item identified by id.
func (b *Builder) Delete(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	return b.run(ctx, http.MethodDelete, id, nil)
}

// run dispatches and unwraps the data envelope. An empty body (204) yields
// a nil payload.
func (b *Builder) run(ctx context.Context, method, id string, body any) (json.RawMessage, error) {
	if b.executor == nil {
		return nil, ErrNoExecutor
	}

	resp, err := b.executor.Do(ctx, b.Request(method, id, body))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, nil
	}
	return scan.Unwrap(resp.Body)
}
