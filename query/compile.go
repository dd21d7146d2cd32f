package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/manojoshi/restorm/internal"
)

// Compile turns a filter tree into its PostgREST text form.
// It is exported so callers can pre-view the filter (logging, dry runs).
func Compile(n Node) string {
	sb := internal.GetBuilder()
	defer internal.PutBuilder(sb)
	n.compile(sb)
	return sb.String()
}

// SerializeSelect renders select entries as name or name(children),
// comma separated, in the order given.
func SerializeSelect(nodes ...SelectNode) string {
	sb := internal.GetBuilder()
	defer internal.PutBuilder(sb)
	writeSelect(sb, nodes)
	return sb.String()
}

// -------------------------------------------------------------------
// node writers – kept in one file so expr.go and select.go stay dumb
// data containers.
// -------------------------------------------------------------------

func (e Expression) compile(sb *strings.Builder) {
	sb.WriteString(e.key)
	sb.WriteByte('.')
	sb.WriteString(string(e.op))
	sb.WriteByte('.')
	writeValue(sb, e.value)
}

// empty groups render as nothing, whatever their combinator
func (g *BooleanGroup) compile(sb *strings.Builder) {
	if len(g.children) == 0 {
		return
	}
	sb.WriteString(string(g.combinator))
	sb.WriteByte('(')
	for i, c := range g.children {
		if i > 0 {
			sb.WriteByte(',')
		}
		c.compile(sb)
	}
	sb.WriteByte(')')
}

func (f field) writeSelect(sb *strings.Builder) { sb.WriteString(f.name) }

func (r relation) writeSelect(sb *strings.Builder) {
	sb.WriteString(r.name)
	sb.WriteByte('(')
	writeSelect(sb, r.children)
	sb.WriteByte(')')
}

func writeSelect(sb *strings.Builder, nodes []SelectNode) {
	for i, n := range nodes {
		if i > 0 {
			sb.WriteByte(',')
		}
		n.writeSelect(sb)
	}
}

// -------------------------------------------------------------------
// value formatting
// -------------------------------------------------------------------

func writeValue(sb *strings.Builder, v any) {
	rv := reflect.ValueOf(v)
	if isSequence(rv) {
		writeSequence(sb, rv)
		return
	}
	s, isString := scalarText(v)
	if isString {
		s = quote(s)
	}
	sb.WriteString(s)
}

// Sequence elements are written raw: no quoting, no escaping. A comma or
// parenthesis inside an element will corrupt the list.
func writeSequence(sb *strings.Builder, rv reflect.Value) {
	sb.WriteByte('(')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		s, _ := scalarText(rv.Index(i).Interface())
		sb.WriteString(s)
	}
	sb.WriteByte(')')
}

func isSequence(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	default:
		return false
	}
}

// scalarText returns the natural text of v and whether it is string-like
// (and therefore subject to quoting).
func scalarText(v any) (string, bool) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		for rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return "null", false
			}
			rv = rv.Elem()
		}
		v = rv.Interface()
	}

	switch t := v.(type) {
	case nil:
		return "null", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return t.Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return t.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), false
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), false
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), false
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), false
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), false
	}
	return fmt.Sprint(v), true
}

// reserved characters of the filter grammar
const reserved = ",.:()\"\\\x00"

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\x00", `\0`)

// quote wraps s in double quotes when it is empty or would otherwise
// collide with the grammar, escaping \, " and NUL.
func quote(s string) string {
	if !needsQuote(s) {
		return s
	}
	return `"` + escaper.Replace(s) + `"`
}

func needsQuote(s string) bool {
	if s == "" || strings.ContainsAny(s, reserved) {
		return true
	}
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}
