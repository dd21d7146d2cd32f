// Package cache puts a Redis read-through cache in front of any
// driver.Executor. GET responses are stored per collection path; a
// successful write to a path drops every cached read under it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/manojoshi/restorm/driver"
	"github.com/manojoshi/restorm/internal"
	"github.com/manojoshi/restorm/logger"
)

const (
	DefaultPrefix = "restorm:v1"
	DefaultTTL    = time.Minute

	scanCount = 100
)

// skipped when hashing request headers
var volatileHeaders = []string{driver.HeaderRequestID}

type cachedResponse struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
}

// Executor implements driver.Executor.
type Executor struct {
	next   driver.Executor
	rdb    *redis.Client
	logger logger.Logger
	ttl    time.Duration
	prefix string
}

type Option func(*Executor)

func WithTTL(d time.Duration) Option    { return func(e *Executor) { e.ttl = d } }
func WithPrefix(p string) Option        { return func(e *Executor) { e.prefix = strings.TrimRight(p, ":") } }
func WithLogger(l logger.Logger) Option { return func(e *Executor) { e.logger = l } }

// New wraps next. Redis errors never fail a call: reads fall through to
// next and are logged.
func New(next driver.Executor, rdb *redis.Client, opts ...Option) *Executor {
	e := &Executor{
		next:   next,
		rdb:    rdb,
		logger: logger.Nop(),
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Do satisfies driver.Executor.
func (e *Executor) Do(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if req.Method != "" && req.Method != http.MethodGet {
		resp, err := e.next.Do(ctx, req)
		if err == nil {
			if ierr := e.Invalidate(ctx, req.Path); ierr != nil {
				log := e.logger.WithContext(ctx)
				log.Warn().Err(ierr).Str("path", req.Path).Msg("cache invalidation failed")
			}
		}
		return resp, err
	}

	key := e.Key(req)
	log := e.logger.WithContext(ctx)

	startTime := time.Now()
	data, err := e.rdb.Get(ctx, key).Bytes()
	log.Debug().
		Str("key", key).
		Int64("duration_ms", time.Since(startTime).Milliseconds()).
		Bool("hit", err == nil).
		Msg("cache get")

	if err == nil {
		var cached cachedResponse
		if jerr := json.Unmarshal(data, &cached); jerr == nil {
			return &driver.Response{StatusCode: cached.StatusCode, Header: cached.Header, Body: cached.Body}, nil
		}
		log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}

	resp, err := e.next.Do(ctx, req)
	if err != nil {
		return resp, err
	}

	buf, err := json.Marshal(cachedResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body})
	if err == nil {
		err = e.rdb.Set(ctx, key, buf, e.ttl).Err()
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return resp, nil
}

// Invalidate deletes every cached read of path and its items.
func (e *Executor) Invalidate(ctx context.Context, path string) error {
	iter := e.rdb.Scan(ctx, 0, globEscaper.Replace(e.pathPrefix(path))+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		if err := e.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache: deleting %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scanning %s: %w", path, err)
	}
	return nil
}

// Key is the Redis key a GET for req is cached under.
func (e *Executor) Key(req *driver.Request) string {
	h := xxhash.New()
	_, _ = h.WriteString(req.ID)
	_, _ = h.WriteString("\n")
	_, _ = h.WriteString(driver.EncodeQuery(req.Query).Encode())
	_, _ = h.WriteString("\n")
	writeHeaders(h, req.Header)
	return e.pathPrefix(req.Path) + strconv.FormatUint(h.Sum64(), 16)
}

// globEscaper quotes the MATCH metacharacters so a path is matched literally.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (e *Executor) pathPrefix(path string) string {
	return e.prefix + ":" + strings.Trim(path, "/") + ":"
}

func writeHeaders(h *xxhash.Digest, hdr http.Header) {
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		if internal.Contains(volatileHeaders, http.CanonicalHeaderKey(k)) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.WriteString(http.CanonicalHeaderKey(k))
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(strings.Join(hdr[k], ","))
		_, _ = h.WriteString("\n")
	}
}
