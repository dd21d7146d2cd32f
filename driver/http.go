package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/manojoshi/restorm/logger"
)

const (
	HeaderRequestID = "X-Request-Id"

	tracerName = "restorm.driver"
)

// BreakerConfig mirrors gobreaker.Settings with the fields worth exposing.
type BreakerConfig struct {
	Name string

	// MaxRequests allowed through while half-open. 0 means 1.
	MaxRequests uint

	// Interval clears the closed-state counts. 0 never clears.
	Interval time.Duration

	// Timeout of the open state before probing again. 0 means 60s.
	Timeout time.Duration

	// FailureThreshold consecutive failures trip the breaker.
	FailureThreshold uint
}

// HTTPConn implements Executor on top of *http.Client.
type HTTPConn struct {
	base    string
	client  *http.Client
	headers http.Header
	logger  logger.Logger
	breaker *gobreaker.CircuitBreaker[*Response]
	limiter *rate.Limiter
}

type Option func(*HTTPConn)

func WithHTTPClient(c *http.Client) Option { return func(h *HTTPConn) { h.client = c } }
func WithLogger(l logger.Logger) Option    { return func(h *HTTPConn) { h.logger = l } }

func WithTimeout(d time.Duration) Option {
	return func(h *HTTPConn) { h.client.Timeout = d }
}

// WithHeader sets a default header sent with every request. Request
// headers win over defaults.
func WithHeader(key, value string) Option {
	return func(h *HTTPConn) { h.headers.Set(key, value) }
}

func WithHeaders(hdr http.Header) Option {
	return func(h *HTTPConn) {
		for k, vs := range hdr {
			h.headers[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
		}
	}
}

// WithBreaker guards every call with a circuit breaker. Transport errors
// and 5xx responses count as failures; 4xx responses do not.
func WithBreaker(cfg BreakerConfig) Option {
	return func(h *HTTPConn) {
		threshold := uint32(cfg.FailureThreshold)
		if threshold == 0 {
			threshold = 5
		}
		h.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: uint32(cfg.MaxRequests),
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				var se *StatusError
				if errors.As(err, &se) {
					return se.StatusCode < http.StatusInternalServerError
				}
				return err == nil
			},
		})
	}
}

// WithRateLimit caps outgoing calls at rps per second with the given burst.
// Callers block until a slot frees up or their context ends.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *HTTPConn) {
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPConn builds a connection rooted at base. The default client
// propagates trace context through otelhttp.
func NewHTTPConn(base string, opts ...Option) *HTTPConn {
	h := &HTTPConn{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		headers: http.Header{},
		logger:  logger.Nop(),
	}
	h.headers.Set("Accept", "application/json")
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *HTTPConn) Base() string { return h.base }

// URL renders the absolute URL req would be sent to.
func (h *HTTPConn) URL(req *Request) string {
	u := ResolvePath(h.base, req.Path, req.ID)
	if q := EncodeQuery(req.Query).Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// Do satisfies the Executor interface.
func (h *HTTPConn) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := h.URL(req)

	header := h.headers.Clone()
	for k, vs := range req.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if header.Get(HeaderRequestID) == "" {
		header.Set(HeaderRequestID, uuid.NewString())
	}
	ctx = logger.WithRequestID(ctx, header.Get(HeaderRequestID))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "http."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("driver: rate limit: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	start := time.Now()
	resp, err := h.execute(func() (*Response, error) {
		return h.roundTrip(ctx, method, target, header, req.Body)
	})
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", target),
		attribute.Float64("http.duration_ms", float64(elapsed.Milliseconds())),
	)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}

	log := h.logger.WithContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug().Err(err).Str("method", method).Str("url", target).
			Int64("duration_ms", elapsed.Milliseconds()).Msg("request failed")
		return resp, err
	}

	log.Debug().Str("method", method).Str("url", target).Int("status", resp.StatusCode).
		Int64("duration_ms", elapsed.Milliseconds()).Msg("request done")
	return resp, nil
}

func (h *HTTPConn) execute(fn func() (*Response, error)) (*Response, error) {
	if h.breaker == nil {
		return fn()
	}
	resp, err := h.breaker.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, ErrCircuitOpen
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrTooManyRequests
	}
	return resp, err
}

func (h *HTTPConn) roundTrip(ctx context.Context, method, target string, header http.Header, body any) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("driver: encoding body: %w", err)
		}
		rdr = bytes.NewReader(buf)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	}

	hr, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("driver: building request: %w", err)
	}
	hr.Header = header

	res, err := h.client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("driver: %s %s: %w", method, target, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("driver: reading response: %w", err)
	}

	resp := &Response{StatusCode: res.StatusCode, Header: res.Header, Body: raw}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return resp, &StatusError{Method: method, URL: target, StatusCode: res.StatusCode, Body: raw}
	}
	return resp, nil
}
