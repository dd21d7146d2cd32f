package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/manojoshi/restorm/driver"
	"github.com/manojoshi/restorm/internal"
	"github.com/manojoshi/restorm/query"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

var operators = []query.Operator{
	query.OpEq, query.OpNeq, query.OpGte, query.OpGt, query.OpLte, query.OpLt,
	query.OpSearch, query.OpILike, query.OpLike, query.OpContains, query.OpIn,
}

// QueryOptions holds the flags shared by list and get.
type QueryOptions struct {
	Select  string
	Where   []string
	Or      []string
	Sort    []string
	Limit   int
	Params  []string
	Headers []string
	DryRun  bool
}

func (o *QueryOptions) bindRead(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Select, "select", "", "raw select string, e.g. '*,posts(title)'")
	cmd.Flags().StringArrayVar(&o.Params, "param", nil, "extra query parameter key=value (repeatable)")
	cmd.Flags().StringArrayVar(&o.Headers, "header", nil, "request header Name:value (repeatable)")
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "print the request URL instead of sending it")
}

func (o *QueryOptions) bindFilter(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.Where, "where", nil, "condition key[.op]=value, and-ed (repeatable)")
	cmd.Flags().StringArrayVar(&o.Or, "or", nil, "condition key[.op]=value, or-ed together as one group (repeatable)")
	cmd.Flags().StringSliceVar(&o.Sort, "sort", nil, "sort keys, prefix with - for descending")
	cmd.Flags().IntVar(&o.Limit, "limit", -1, "maximum number of rows")
}

// NewListCommand creates `restq list <path>`.
func NewListCommand(root *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "list <path>",
		Short: "List a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := buildQuery(args[0], opts)
			if err != nil {
				return err
			}
			return dispatch(cmd.Context(), cmd.OutOrStdout(), root, opts, b, "")
		},
	}
	opts.bindRead(cmd)
	opts.bindFilter(cmd)

	return cmd
}

// NewGetCommand creates `restq get <path> <id>`.
func NewGetCommand(root *RootOptions) *cobra.Command {
	opts := &QueryOptions{Limit: -1}

	cmd := &cobra.Command{
		Use:   "get <path> <id>",
		Short: "Fetch one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := buildQuery(args[0], opts)
			if err != nil {
				return err
			}
			return dispatch(cmd.Context(), cmd.OutOrStdout(), root, opts, b, args[1])
		},
	}
	opts.bindRead(cmd)

	return cmd
}

func buildQuery(path string, o *QueryOptions) (*query.Builder, error) {
	b := query.NewQuery(path)

	where, err := parseConditions(o.Where)
	if err != nil {
		return nil, err
	}
	or, err := parseConditions(o.Or)
	if err != nil {
		return nil, err
	}
	if len(where)+len(or) > 0 {
		b.Where(func(f *query.FilterBuilder) {
			for _, c := range where {
				f.AddExpression(c.Key(), c.Operator(), c.Value())
			}
			if len(or) > 0 {
				f.Or(func(g *query.FilterBuilder) {
					for _, c := range or {
						g.AddExpression(c.Key(), c.Operator(), c.Value())
					}
				})
			}
		})
	}

	if o.Select != "" {
		b.RawSelect(o.Select)
	}
	for _, s := range internal.Filter(o.Sort, func(s string) bool { return strings.TrimSpace(s) != "" }) {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "-") {
			b.SortBy(s[1:], query.Desc)
			continue
		}
		b.SortBy(s, query.Asc)
	}
	if o.Limit >= 0 {
		b.Limit(o.Limit)
	}
	for _, p := range o.Params {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q: want key=value", p)
		}
		b.Param(k, v)
	}
	for _, h := range o.Headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --header %q: want Name:value", h)
		}
		b.Header(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return b, nil
}

// parseConditions reads key[.op]=value flags. The value of an in
// condition is split on commas.
func parseConditions(raw []string) ([]query.Expression, error) {
	out := make([]query.Expression, 0, len(raw))
	for _, r := range raw {
		lhs, value, ok := strings.Cut(r, "=")
		if !ok || lhs == "" {
			return nil, fmt.Errorf("invalid condition %q: want key[.op]=value", r)
		}

		key, op := lhs, query.OpEq
		if i := strings.LastIndexByte(lhs, '.'); i > 0 {
			candidate := query.Operator(lhs[i+1:])
			if !internal.Contains(operators, candidate) {
				return nil, fmt.Errorf("invalid condition %q: unknown operator %q", r, candidate)
			}
			key, op = lhs[:i], candidate
		}

		if op == query.OpIn {
			out = append(out, query.NewExpression(key, op, internal.Map(strings.Split(value, ","), parseScalar)))
			continue
		}
		out = append(out, query.NewExpression(key, op, parseScalar(value)))
	}
	return out, nil
}

// parseScalar types flag text so numbers and booleans go out unquoted.
func parseScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	return s
}

func dispatch(ctx context.Context, w io.Writer, root *RootOptions, o *QueryOptions, b *query.Builder, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if o.DryRun {
		conn := driver.NewHTTPConn(root.cfg.API.BaseURL)
		_, err := fmt.Fprintln(w, conn.URL(b.Request(http.MethodGet, id, nil)))
		return err
	}

	log := root.cfg.Logger()
	exec, closeFn, err := root.cfg.Executor(log)
	if err != nil {
		return err
	}
	defer closeFn()

	b.Using(exec)
	var raw json.RawMessage
	if id == "" {
		raw, err = b.List(ctx)
	} else {
		raw, err = b.Get(ctx, id)
	}
	if err != nil {
		return err
	}

	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return render(w, root.Output, raw)
}

func render(w io.Writer, format string, raw json.RawMessage) error {
	if format == outputYAML {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("formatting response: %w", err)
		}
		_, err = w.Write(out)
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
