// Package schema derives, from a Go struct, which attributes of an entity
// may be selected by bare name and which are relations needing a nested
// selection.
//
//	type Post struct {
//	    ID       int64     `restorm:"id,pk"`
//	    Title    string    `restorm:"title"`
//	    Author   *User     `restorm:"author"`   // relation (struct)
//	    Comments []Comment `restorm:"comments"` // relation (collection)
//	    Meta     Meta      `restorm:"meta,scalar"`
//	}
//
//	s, _ := schema.For[Post]()
//	nodes, err := s.Select(func(sel *schema.Selector) {
//	    sel.Field("id", "title").Relation("comments", func(c *schema.Selector) {
//	        c.Field("body")
//	    })
//	})
package schema

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/manojoshi/restorm/query"
)

const tagName = "restorm"

type Kind int

const (
	KindScalar Kind = iota
	KindRelation
)

func (k Kind) String() string {
	if k == KindRelation {
		return "relation"
	}
	return "scalar"
}

// Attribute describes one selectable attribute of an entity.
type Attribute struct {
	Name   string
	Kind   Kind
	Target *Schema // set for relations
	PK     bool

	index []int
}

// Index is the reflect field path of the attribute on its struct.
func (a Attribute) Index() []int { return append([]int(nil), a.index...) }

// Schema is the descriptor of one entity type. It is immutable once built.
type Schema struct {
	entity string
	typ    reflect.Type
	attrs  []*Attribute
	byName map[string]*Attribute
	pk     *Attribute
}

var cache sync.Map // reflect.Type → *Schema

// For returns the schema of T.
func For[T any]() (*Schema, error) {
	return Of(*new(T))
}

// Of returns the schema of model, a struct or pointer to struct.
func Of(model any) (*Schema, error) {
	rt := reflect.TypeOf(model)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %v is not a struct", rt)
	}
	if s, ok := cache.Load(rt); ok {
		return s.(*Schema), nil
	}

	building := map[reflect.Type]*Schema{}
	build(rt, building)
	for t, b := range building {
		cache.LoadOrStore(t, b)
	}
	// a concurrent build of the same type may have been stored first
	s, _ := cache.Load(rt)
	return s.(*Schema), nil
}

// build tolerates cycles (Post → Author → Posts) by registering each
// schema before its attributes are walked.
func build(rt reflect.Type, building map[reflect.Type]*Schema) *Schema {
	if s, ok := cache.Load(rt); ok {
		return s.(*Schema)
	}
	if s, ok := building[rt]; ok {
		return s
	}

	s := &Schema{entity: snake(rt.Name()), typ: rt, byName: map[string]*Attribute{}}
	building[rt] = s
	walk(s, rt, nil, building)
	return s
}

func walk(s *Schema, rt reflect.Type, prefix []int, building map[reflect.Type]*Schema) {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		index := append(append([]int(nil), prefix...), i)

		tag := f.Tag.Get(tagName)
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" && deref(f.Type).Kind() == reflect.Struct && f.Type.Kind() != reflect.Pointer {
			walk(s, f.Type, index, building)
			continue
		}
		if !f.IsExported() {
			continue
		}

		parts := strings.Split(tag, ",")
		name := parts[0]
		if name == "" {
			name = jsonName(f)
		}
		if name == "" {
			continue
		}

		a := &Attribute{Name: name, index: index}
		target, isRel := relationTarget(f.Type)
		for _, opt := range parts[1:] {
			switch strings.ToLower(strings.TrimSpace(opt)) {
			case "relation":
				isRel = target != nil
			case "scalar":
				isRel = false
			case "pk":
				a.PK = true
			}
		}
		if isRel {
			a.Kind = KindRelation
			a.Target = build(target, building)
		}

		if _, dup := s.byName[name]; dup {
			continue
		}
		s.attrs = append(s.attrs, a)
		s.byName[name] = a
		if a.PK && s.pk == nil {
			s.pk = a
		}
	}
}

var (
	timeType          = reflect.TypeOf(time.Time{})
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// relationTarget reports whether t is a nested-model type, or a
// collection of one, and returns the model struct type.
func relationTarget(t reflect.Type) (reflect.Type, bool) {
	t = deref(t)
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = deref(t.Elem())
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return nil, false
	}
	if implements(t, jsonMarshalerType) || implements(t, textMarshalerType) {
		return nil, false
	}
	return t, true
}

func implements(t, iface reflect.Type) bool {
	return t.Implements(iface) || reflect.PointerTo(t).Implements(iface)
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func jsonName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		name := strings.Split(tag, ",")[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return snake(f.Name)
}

// ------------------------------------------------------------------
// Accessors
// ------------------------------------------------------------------

func (s *Schema) Entity() string { return s.entity }

// Attributes returns the attributes in declaration order.
func (s *Schema) Attributes() []Attribute {
	out := make([]Attribute, len(s.attrs))
	for i, a := range s.attrs {
		out[i] = *a
	}
	return out
}

func (s *Schema) Lookup(name string) (Attribute, bool) {
	a, ok := s.byName[name]
	if !ok {
		return Attribute{}, false
	}
	return *a, true
}

// PrimaryKey returns the attribute tagged pk.
func (s *Schema) PrimaryKey() (Attribute, bool) {
	if s.pk == nil {
		return Attribute{}, false
	}
	return *s.pk, true
}

// ID reads the primary key of entity as a string. It fails with
// query.ErrMissingID when there is no pk attribute or its value is zero.
func (s *Schema) ID(entity any) (string, error) {
	if s.pk == nil {
		return "", fmt.Errorf("%w: %s has no pk attribute", query.ErrMissingID, s.entity)
	}
	rv := reflect.ValueOf(entity)
	if !rv.IsValid() {
		return "", fmt.Errorf("%w: nil %s", query.ErrMissingID, s.entity)
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", fmt.Errorf("%w: nil %s", query.ErrMissingID, s.entity)
		}
		rv = rv.Elem()
	}
	if rv.Type() != s.typ {
		return "", fmt.Errorf("schema: %s is not a %s", rv.Type(), s.entity)
	}

	fv, err := rv.FieldByIndexErr(s.pk.index)
	if err != nil || fv.IsZero() {
		return "", fmt.Errorf("%w: %s.%s is empty", query.ErrMissingID, s.entity, s.pk.Name)
	}
	return idString(fv), nil
}

func idString(v reflect.Value) string {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if st, ok := v.Interface().(fmt.Stringer); ok {
		return st.String()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// snake converts CamelCase to snake_case.
func snake(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prev < 'A' || prev > 'Z' || nextLower {
				sb.WriteByte('_')
			}
		}
		sb.WriteRune(r)
	}
	return strings.ToLower(sb.String())
}
