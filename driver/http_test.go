package driver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/manojoshi/restorm/driver"
	"github.com/manojoshi/restorm/logger"
)

type captured struct {
	method string
	path   string
	query  map[string][]string
	header http.Header
	body   []byte
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, chan captured) {
	t.Helper()

	ch := make(chan captured, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		ch <- captured{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			query:  r.URL.Query(),
			header: r.Header.Clone(),
			body:   raw,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv, ch
}

func TestHTTPConnGet(t *testing.T) {
	t.Parallel()

	srv, ch := newServer(t, http.StatusOK, `{"data":[{"id":1}]}`)

	var logs bytes.Buffer
	conn := driver.NewHTTPConn(srv.URL+"/api/",
		driver.WithHeader("Authorization", "Bearer token"),
		driver.WithLogger(logger.NewBufferedTestLogger(&logs)),
	)

	resp, err := conn.Do(context.Background(), &driver.Request{
		Path:   "posts",
		ID:     "7",
		Query:  map[string]any{"filter": "and(a.eq.1)", "sort": []string{"!id"}, "limit": 5},
		Header: http.Header{"X-Tenant": {"acme"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"data":[{"id":1}]}`, string(resp.Body))

	got := <-ch
	require.Equal(t, http.MethodGet, got.method)
	require.Equal(t, "/api/posts/7", got.path)
	require.Equal(t, []string{"and(a.eq.1)"}, got.query["filter"])
	require.Equal(t, []string{"!id"}, got.query["sort[]"])
	require.Equal(t, []string{"5"}, got.query["limit"])
	require.Equal(t, "application/json", got.header.Get("Accept"))
	require.Equal(t, "Bearer token", got.header.Get("Authorization"))
	require.Equal(t, "acme", got.header.Get("X-Tenant"))
	require.NotEmpty(t, got.header.Get(driver.HeaderRequestID))
	require.Empty(t, got.body)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry))
	require.Equal(t, "request done", entry["message"])
	require.Equal(t, got.header.Get(driver.HeaderRequestID), entry["request_id"])
	require.EqualValues(t, http.StatusOK, entry["status"])
}

func TestHTTPConnRequestHeadersWin(t *testing.T) {
	t.Parallel()

	srv, ch := newServer(t, http.StatusOK, `{"data":null}`)
	conn := driver.NewHTTPConn(srv.URL, driver.WithHeaders(http.Header{"accept": {"text/csv"}}))

	_, err := conn.Do(context.Background(), &driver.Request{
		Path:   "posts",
		Header: http.Header{driver.HeaderRequestID: {"fixed-id"}, "Accept": {"application/vnd.pgrst.object+json"}},
	})
	require.NoError(t, err)

	got := <-ch
	require.Equal(t, "fixed-id", got.header.Get(driver.HeaderRequestID))
	require.Equal(t, "application/vnd.pgrst.object+json", got.header.Get("Accept"))
}

func TestHTTPConnWritesJSONBody(t *testing.T) {
	t.Parallel()

	srv, ch := newServer(t, http.StatusCreated, `{"data":{"id":3,"title":"x"}}`)
	conn := driver.NewHTTPConn(srv.URL)

	resp, err := conn.Do(context.Background(), &driver.Request{
		Method: http.MethodPost,
		Path:   "posts",
		Body:   map[string]any{"title": "x"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := <-ch
	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "application/json", got.header.Get("Content-Type"))
	require.JSONEq(t, `{"title":"x"}`, string(got.body))
}

func TestHTTPConnStatusError(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, http.StatusUnprocessableEntity, `{"message":"bad filter"}`)
	conn := driver.NewHTTPConn(srv.URL)

	resp, err := conn.Do(context.Background(), &driver.Request{Method: http.MethodPatch, Path: "posts", ID: "1", Body: struct{}{}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var se *driver.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.MethodPatch, se.Method)
	require.Equal(t, srv.URL+"/posts/1", se.URL)
	require.JSONEq(t, `{"message":"bad filter"}`, string(se.Body))
	require.True(t, driver.IsStatus(err, http.StatusUnprocessableEntity))
}

func TestHTTPConnUnencodableBody(t *testing.T) {
	t.Parallel()

	conn := driver.NewHTTPConn("http://127.0.0.1:0")

	_, err := conn.Do(context.Background(), &driver.Request{Method: http.MethodPost, Body: make(chan int)})
	require.ErrorContains(t, err, "encoding body")
}

func TestHTTPConnTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	conn := driver.NewHTTPConn(srv.URL, driver.WithTimeout(50*time.Millisecond))

	_, err := conn.Do(context.Background(), &driver.Request{Path: "slow"})
	require.Error(t, err)

	var se *driver.StatusError
	require.False(t, errors.As(err, &se))
}

func TestHTTPConnURL(t *testing.T) {
	t.Parallel()

	conn := driver.NewHTTPConn("http://api.example.com/v1/")
	require.Equal(t, "http://api.example.com/v1", conn.Base())

	require.Equal(t, "http://api.example.com/v1/posts", conn.URL(&driver.Request{Path: "posts"}))
	require.Equal(t,
		"http://api.example.com/v1/posts?limit=2&sort%5B%5D=%21id",
		conn.URL(&driver.Request{Path: "posts", Query: map[string]any{"limit": 2, "sort": []string{"!id"}}}),
	)
}

func TestHTTPConnBreaker(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)

	conn := driver.NewHTTPConn(srv.URL, driver.WithBreaker(driver.BreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Timeout:          time.Hour,
	}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := conn.Do(ctx, &driver.Request{Path: "posts"})
		require.True(t, driver.IsStatus(err, http.StatusInternalServerError))
	}

	_, err := conn.Do(ctx, &driver.Request{Path: "posts"})
	require.ErrorIs(t, err, driver.ErrCircuitOpen)
	require.EqualValues(t, 2, hits.Load())
}

func TestHTTPConnBreakerIgnoresClientErrors(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, http.StatusNotFound, `{}`)
	conn := driver.NewHTTPConn(srv.URL, driver.WithBreaker(driver.BreakerConfig{FailureThreshold: 1}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := conn.Do(ctx, &driver.Request{Path: "missing"})
		require.True(t, driver.IsStatus(err, http.StatusNotFound))
	}
}

func TestHTTPConnRateLimit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	t.Cleanup(srv.Close)

	conn := driver.NewHTTPConn(srv.URL, driver.WithRateLimit(0.01, 1))

	_, err := conn.Do(context.Background(), &driver.Request{Path: "posts"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = conn.Do(ctx, &driver.Request{Path: "posts"})
	require.ErrorContains(t, err, "driver: rate limit")
	require.EqualValues(t, 1, hits.Load())
}
