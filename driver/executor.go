// Package driver is the transport seam between the query builders and a
// REST backend. Anything satisfying Executor can serve a Builder or a
// Repository; HTTPConn is the net/http implementation.
//
//	conn := driver.NewHTTPConn("https://api.example.com/v1",
//	    driver.WithTimeout(10*time.Second),
//	    driver.WithHeader("Authorization", "Bearer ..."),
//	)
//	raw, err := query.NewQuery("posts").Using(conn).List(ctx)
package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Executor sends one request and returns the raw response.
type Executor interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Request is relative to the executor's base URL. ID, when set, is
// appended to Path as its own segment.
type Request struct {
	Method string
	Path   string
	ID     string
	Query  map[string]any
	Header http.Header
	Body   any
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

var (
	ErrCircuitOpen     = errors.New("driver: circuit breaker is open")
	ErrTooManyRequests = errors.New("driver: too many requests in half-open state")
)

// maxErrorBody caps the response body quoted in StatusError messages.
const maxErrorBody = 256

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "…"
	}
	msg := fmt.Sprintf("driver: %s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if body != "" {
		msg += ": " + body
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// ResolvePath joins base, rel and id with single slashes, stripping
// trailing slashes from each part.
func ResolvePath(base, rel, id string) string {
	p := strings.TrimRight(base, "/")
	if rel = strings.Trim(rel, "/"); rel != "" {
		p += "/" + rel
	}
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// EncodeQuery flattens params into url.Values. Slices use the bracketed
// array form (sort[]=a&sort[]=b), maps use key[sub]=v, and nil values are
// skipped.
func EncodeQuery(params map[string]any) url.Values {
	out := url.Values{}
	for k, v := range params {
		encodeValue(out, k, v)
	}
	return out
}

func encodeValue(out url.Values, key string, v any) {
	if v == nil {
		return
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out.Add(key, toString(rv.Interface()))
			return
		}
		for i := 0; i < rv.Len(); i++ {
			encodeValue(out, key+"[]", rv.Index(i).Interface())
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			encodeValue(out, key+"["+toString(iter.Key().Interface())+"]", iter.Value().Interface())
		}
	default:
		out.Add(key, toString(rv.Interface()))
	}
}

// ----------------------------------------------------------------------------
// internal helpers
// ----------------------------------------------------------------------------

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
