package repository

import (
	"reflect"

	"github.com/manojoshi/restorm/schema"
)

// payload returns entity itself, or when fields is non-empty a map of
// just those attributes keyed by their wire names.
func payload(s *schema.Schema, entity any, fields []string) any {
	if len(fields) == 0 {
		return entity
	}
	return structToMap(s, entity, fields)
}

// structToMap reads the named attributes off a struct value.
func structToMap(s *schema.Schema, v any, fields []string) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}

	out := make(map[string]any, len(fields))
	for _, name := range fields {
		a, ok := s.Lookup(name)
		if !ok {
			continue
		}
		fv, err := rv.FieldByIndexErr(a.Index())
		if err != nil {
			out[name] = nil
			continue
		}
		out[name] = fv.Interface()
	}
	return out
}
