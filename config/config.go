// Package config reads client settings from the environment.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/manojoshi/restorm/cache"
	"github.com/manojoshi/restorm/driver"
	"github.com/manojoshi/restorm/logger"
)

type (
	ClientConfig struct {
		API            API            `json:"api"`
		CircuitBreaker CircuitBreaker `json:"circuit_breaker"`
		Cache          Cache          `json:"cache"`
		Logging        Logging        `json:"logging"`
	}

	API struct {
		BaseURL string        `envconfig:"RESTORM_BASE_URL" default:"http://localhost:8080" json:"base_url"`
		Timeout time.Duration `envconfig:"RESTORM_TIMEOUT" default:"30s" json:"timeout"`
		// Headers are "Name:value" pairs sent with every request.
		Headers []string `envconfig:"RESTORM_HEADERS" json:"headers,omitempty"`
		// RateLimit in requests per second; 0 disables limiting.
		RateLimit float64 `envconfig:"RESTORM_RATE_LIMIT" default:"0" json:"rate_limit"`
		RateBurst int     `envconfig:"RESTORM_RATE_BURST" default:"1" json:"rate_burst"`
	}

	CircuitBreaker struct {
		Enabled          bool          `envconfig:"RESTORM_CB_ENABLED" default:"false" json:"enabled"`
		MaxRequests      uint          `envconfig:"RESTORM_CB_MAX_REQUESTS" default:"5" json:"max_requests"`
		Interval         time.Duration `envconfig:"RESTORM_CB_INTERVAL" default:"60s" json:"interval"`
		Timeout          time.Duration `envconfig:"RESTORM_CB_TIMEOUT" default:"30s" json:"timeout"`
		FailureThreshold uint          `envconfig:"RESTORM_CB_FAILURE_THRESHOLD" default:"5" json:"failure_threshold"`
	}

	Cache struct {
		Enabled  bool          `envconfig:"RESTORM_CACHE_ENABLED" default:"false" json:"enabled"`
		Address  string        `envconfig:"RESTORM_CACHE_ADDRESS" default:"localhost:6379" json:"address"`
		Password string        `envconfig:"RESTORM_CACHE_PASSWORD" default:"" json:"password,omitempty"`
		DB       uint          `envconfig:"RESTORM_CACHE_DB" default:"0" json:"db"`
		TTL      time.Duration `envconfig:"RESTORM_CACHE_TTL" default:"1m" json:"ttl"`
		Prefix   string        `envconfig:"RESTORM_CACHE_PREFIX" default:"restorm:v1" json:"prefix"`
	}

	Logging struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info" json:"level"`
		Format string `envconfig:"LOG_FORMAT" default:"console" json:"format"`
	}
)

func Init() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client configuration: %w", err)
	}

	return cfg, nil
}

// DefaultHeaders parses API.Headers.
func (c *ClientConfig) DefaultHeaders() (http.Header, error) {
	hdr := http.Header{}
	for _, pair := range c.API.Headers {
		name, value, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("config: malformed header %q (want Name:value)", pair)
		}
		hdr.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return hdr, nil
}

func (c *ClientConfig) Logger() logger.Logger {
	return logger.New(c.Logging.Level, c.Logging.Format)
}

// Executor wires the HTTP connection and, when enabled, the Redis cache in
// front of it. The returned close func releases the Redis client.
func (c *ClientConfig) Executor(log logger.Logger) (driver.Executor, func() error, error) {
	hdr, err := c.DefaultHeaders()
	if err != nil {
		return nil, nil, err
	}

	opts := []driver.Option{
		driver.WithTimeout(c.API.Timeout),
		driver.WithHeaders(hdr),
		driver.WithLogger(log),
	}
	if c.CircuitBreaker.Enabled {
		opts = append(opts, driver.WithBreaker(driver.BreakerConfig{
			Name:             c.API.BaseURL,
			MaxRequests:      c.CircuitBreaker.MaxRequests,
			Interval:         c.CircuitBreaker.Interval,
			Timeout:          c.CircuitBreaker.Timeout,
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
		}))
	}
	if c.API.RateLimit > 0 {
		opts = append(opts, driver.WithRateLimit(c.API.RateLimit, c.API.RateBurst))
	}
	conn := driver.NewHTTPConn(c.API.BaseURL, opts...)

	if !c.Cache.Enabled {
		return conn, func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Cache.Address,
		Password: c.Cache.Password,
		DB:       int(c.Cache.DB),
	})
	exec := cache.New(conn, rdb,
		cache.WithTTL(c.Cache.TTL),
		cache.WithPrefix(c.Cache.Prefix),
		cache.WithLogger(log),
	)
	return exec, rdb.Close, nil
}
