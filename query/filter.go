package query

// -------------------------------------------------------------------
// FilterBuilder – fluent builder for the filter parameter
// -------------------------------------------------------------------

// FilterBuilder accumulates expressions into one tree rooted at an
// implicit and-group. It is not safe for concurrent mutation; hand a
// Clone to other goroutines instead.
type FilterBuilder struct {
	group *BooleanGroup
}

// NewFilter starts an empty builder whose root group is an and-group.
func NewFilter() *FilterBuilder {
	return &FilterBuilder{group: newGroup(And)}
}

// AddExpression appends key.op.value to the group the builder is
// currently populating.
func (b *FilterBuilder) AddExpression(key string, op Operator, value any) *FilterBuilder {
	b.group.children = append(b.group.children, NewExpression(key, op, value))
	return b
}

func (b *FilterBuilder) Where(key string, v any) *FilterBuilder { return b.AddExpression(key, OpEq, v) }
func (b *FilterBuilder) WhereNot(key string, v any) *FilterBuilder {
	return b.AddExpression(key, OpNeq, v)
}
func (b *FilterBuilder) WhereGte(key string, v any) *FilterBuilder {
	return b.AddExpression(key, OpGte, v)
}
func (b *FilterBuilder) WhereGt(key string, v any) *FilterBuilder {
	return b.AddExpression(key, OpGt, v)
}
func (b *FilterBuilder) WhereLte(key string, v any) *FilterBuilder {
	return b.AddExpression(key, OpLte, v)
}
func (b *FilterBuilder) WhereLt(key string, v any) *FilterBuilder {
	return b.AddExpression(key, OpLt, v)
}
func (b *FilterBuilder) WhereLike(key, pattern string) *FilterBuilder {
	return b.AddExpression(key, OpLike, pattern)
}
func (b *FilterBuilder) WhereILike(key, pattern string) *FilterBuilder {
	return b.AddExpression(key, OpILike, pattern)
}
func (b *FilterBuilder) WhereSearch(key, term string) *FilterBuilder {
	return b.AddExpression(key, OpSearch, term)
}
func (b *FilterBuilder) WhereContains(key string, v any) *FilterBuilder {
	return b.AddExpression(key, OpContains, v)
}

// WhereIn adds key.in.(v1,v2,...). Use Seq to spread a typed slice.
func (b *FilterBuilder) WhereIn(key string, vs ...any) *FilterBuilder {
	return b.AddExpression(key, OpIn, append([]any{}, vs...))
}

// And scopes fn under an and-group. See scope.
func (b *FilterBuilder) And(fn func(*FilterBuilder)) *FilterBuilder { return b.scope(And, fn) }

// Or scopes fn under an or-group. See scope.
func (b *FilterBuilder) Or(fn func(*FilterBuilder)) *FilterBuilder { return b.scope(Or, fn) }

// scope has two cases. While the current group is still empty it is
// relabelled to c and fn populates it directly, so a filter made only of
// Or(...) yields or(...) rather than and(or(...)). Otherwise fn populates a
// fresh group owned by a separate builder, appended once fn returns.
func (b *FilterBuilder) scope(c Combinator, fn func(*FilterBuilder)) *FilterBuilder {
	if len(b.group.children) == 0 {
		b.group.combinator = c
		fn(b)
		return b
	}

	sub := &FilterBuilder{group: newGroup(c)}
	fn(sub)
	b.group.children = append(b.group.children, sub.group)
	return b
}

// Group exposes the root group for inspection.
func (b *FilterBuilder) Group() *BooleanGroup { return b.group }

// Empty reports whether nothing has been added yet.
func (b *FilterBuilder) Empty() bool { return len(b.group.children) == 0 }

// Clone deep-copies the tree.
func (b *FilterBuilder) Clone() *FilterBuilder { return &FilterBuilder{group: b.group.clone()} }

// Build serialises the tree. It never mutates and may be called repeatedly.
func (b *FilterBuilder) Build() string { return Compile(b.group) }

func (b *FilterBuilder) String() string { return b.Build() }
