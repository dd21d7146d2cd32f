package driver_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/manojoshi/restorm/driver"
)

func TestResolvePath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		base     string
		rel      string
		id       string
		expected string
	}{
		{name: "plain", base: "http://api/v1", rel: "posts", expected: "http://api/v1/posts"},
		{name: "trailing slashes", base: "http://api/v1/", rel: "/posts/", expected: "http://api/v1/posts"},
		{name: "with id", base: "http://api/v1", rel: "posts", id: "42", expected: "http://api/v1/posts/42"},
		{name: "id is escaped", base: "http://api", rel: "files", id: "a/b c", expected: "http://api/files/a%2Fb%20c"},
		{name: "nested rel", base: "http://api", rel: "users/1/posts", expected: "http://api/users/1/posts"},
		{name: "empty rel", base: "http://api/", id: "1", expected: "http://api/1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.expected, driver.ResolvePath(tc.base, tc.rel, tc.id))
		})
	}
}

func TestEncodeQuery(t *testing.T) {
	t.Parallel()

	var nilPtr *int
	limit := 10

	got := driver.EncodeQuery(map[string]any{
		"filter":  "and(a.eq.1)",
		"sort":    []string{"!created_at", "title"},
		"limit":   &limit,
		"offset":  nilPtr,
		"skip":    nil,
		"active":  true,
		"ratio":   0.25,
		"page":    map[string]any{"size": 5, "number": 2},
		"raw":     []byte("bytes"),
		"since":   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"ids":     [2]int{1, 2},
		"empties": []string{},
	})

	require.Equal(t, url.Values{
		"filter":       {"and(a.eq.1)"},
		"sort[]":       {"!created_at", "title"},
		"limit":        {"10"},
		"active":       {"true"},
		"ratio":        {"0.25"},
		"page[size]":   {"5"},
		"page[number]": {"2"},
		"raw":          {"bytes"},
		"since":        {"2024-01-02T03:04:05Z"},
		"ids[]":        {"1", "2"},
	}, got)
}

func TestEncodeQueryNested(t *testing.T) {
	t.Parallel()

	got := driver.EncodeQuery(map[string]any{
		"where": map[string]any{"tags": []string{"a", "b"}, "none": nil},
	})

	require.Equal(t, url.Values{"where[tags][]": {"a", "b"}}, got)
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := &driver.StatusError{
		Method:     http.MethodGet,
		URL:        "http://api/posts",
		StatusCode: http.StatusNotFound,
		Body:       []byte(` {"error":"not found"} `),
	}
	require.Equal(t, `driver: GET http://api/posts: 404 Not Found: {"error":"not found"}`, err.Error())

	wrapped := fmt.Errorf("loading: %w", err)
	require.True(t, driver.IsStatus(wrapped, http.StatusNotFound))
	require.False(t, driver.IsStatus(wrapped, http.StatusConflict))
	require.False(t, driver.IsStatus(errors.New("other"), http.StatusNotFound))

	long := &driver.StatusError{Method: "GET", URL: "u", StatusCode: 500, Body: []byte(strings.Repeat("x", 1000))}
	require.Less(t, len(long.Error()), 400)
	require.True(t, strings.HasSuffix(long.Error(), "…"))

	multibyte := &driver.StatusError{Method: "GET", URL: "u", StatusCode: 500, Body: []byte("x" + strings.Repeat("é", 200))}
	require.True(t, utf8.ValidString(multibyte.Error()))
	require.True(t, strings.HasSuffix(multibyte.Error(), ": x"+strings.Repeat("é", 127)+"…"))

	empty := &driver.StatusError{Method: "DELETE", URL: "u", StatusCode: 502}
	require.Equal(t, "driver: DELETE u: 502 Bad Gateway", empty.Error())
}
