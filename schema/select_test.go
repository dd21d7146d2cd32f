package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manojoshi/restorm/query"
	"github.com/manojoshi/restorm/schema"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	s, err := schema.For[Post]()
	require.NoError(t, err)

	cases := []struct {
		name     string
		fn       func(*schema.Selector)
		expected string
		wantErr  error
		wantPath string
	}{
		{
			name:     "scalars",
			fn:       func(sel *schema.Selector) { sel.Field("id", "title") },
			expected: "id,title",
		},
		{
			name: "nested relations",
			fn: func(sel *schema.Selector) {
				sel.All().Relation("comments", func(c *schema.Selector) {
					c.Field("body").Relation("author", func(a *schema.Selector) { a.Field("name") })
				})
			},
			expected: "*,comments(body,author(name))",
		},
		{
			name:     "empty relation selection means everything",
			fn:       func(sel *schema.Selector) { sel.Field("id").Relation("author", nil) },
			expected: "id,author(*)",
		},
		{
			name:     "wildcard through Field",
			fn:       func(sel *schema.Selector) { sel.Field("*") },
			expected: "*",
		},
		{
			name:     "relation as bare field",
			fn:       func(sel *schema.Selector) { sel.Field("id", "author") },
			wantErr:  schema.ErrRelationAsField,
			wantPath: "schema: post.author",
		},
		{
			name:     "scalar as relation",
			fn:       func(sel *schema.Selector) { sel.Relation("title", nil) },
			wantErr:  schema.ErrFieldAsRelation,
			wantPath: "schema: post.title",
		},
		{
			name:     "unknown attribute",
			fn:       func(sel *schema.Selector) { sel.Field("nope") },
			wantErr:  schema.ErrUnknownField,
			wantPath: "schema: post.nope",
		},
		{
			name: "error inside a relation names the related entity",
			fn: func(sel *schema.Selector) {
				sel.Relation("comments", func(c *schema.Selector) { c.Field("author") })
			},
			wantErr:  schema.ErrRelationAsField,
			wantPath: "schema: comment.author",
		},
		{
			name: "first error wins",
			fn: func(sel *schema.Selector) {
				sel.Field("nope").Relation("title", nil).Field("id")
			},
			wantErr:  schema.ErrUnknownField,
			wantPath: "schema: post.nope",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			nodes, err := s.Select(tc.fn)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Contains(t, err.Error(), tc.wantPath)

				var se *schema.SelectError
				require.ErrorAs(t, err, &se)
				require.Nil(t, nodes)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, query.SerializeSelect(nodes...))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	s, err := schema.For[Post]()
	require.NoError(t, err)

	require.NoError(t, s.Validate(
		query.Field("*"),
		query.Field("id"),
		query.Relation("comments", query.Field("body"), query.Relation("author", query.Field("*"))),
	))

	err = s.Validate(query.Field("comments"))
	require.ErrorIs(t, err, schema.ErrRelationAsField)

	err = s.Validate(query.Relation("title", query.Field("x")))
	require.ErrorIs(t, err, schema.ErrFieldAsRelation)

	err = s.Validate(query.Relation("comments", query.Field("missing")))
	require.ErrorIs(t, err, schema.ErrUnknownField)
	require.Contains(t, err.Error(), "comment.missing")
}
