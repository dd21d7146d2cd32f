package config_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/manojoshi/restorm/cache"
	"github.com/manojoshi/restorm/config"
	"github.com/manojoshi/restorm/driver"
	"github.com/manojoshi/restorm/logger"
)

func TestInitDefaults(t *testing.T) {
	cfg, err := config.Init()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	require.Equal(t, 30*time.Second, cfg.API.Timeout)
	require.Empty(t, cfg.API.Headers)
	require.Zero(t, cfg.API.RateLimit)
	require.False(t, cfg.CircuitBreaker.Enabled)
	require.EqualValues(t, 5, cfg.CircuitBreaker.FailureThreshold)
	require.False(t, cfg.Cache.Enabled)
	require.Equal(t, time.Minute, cfg.Cache.TTL)
	require.Equal(t, cache.DefaultPrefix, cfg.Cache.Prefix)
	require.Equal(t, logger.LogLevelInfo, cfg.Logging.Level)
}

func TestInitFromEnvironment(t *testing.T) {
	t.Setenv("RESTORM_BASE_URL", "https://api.example.com/v1")
	t.Setenv("RESTORM_TIMEOUT", "5s")
	t.Setenv("RESTORM_HEADERS", "Authorization:Bearer abc,X-Tenant: acme")
	t.Setenv("RESTORM_RATE_LIMIT", "2.5")
	t.Setenv("RESTORM_RATE_BURST", "4")
	t.Setenv("RESTORM_CB_ENABLED", "true")
	t.Setenv("RESTORM_CB_FAILURE_THRESHOLD", "3")
	t.Setenv("RESTORM_CACHE_TTL", "10s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Init()
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com/v1", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.Equal(t, 2.5, cfg.API.RateLimit)
	require.Equal(t, 4, cfg.API.RateBurst)
	require.True(t, cfg.CircuitBreaker.Enabled)
	require.EqualValues(t, 3, cfg.CircuitBreaker.FailureThreshold)
	require.Equal(t, 10*time.Second, cfg.Cache.TTL)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, logger.JSONLoggingFormat, cfg.Logging.Format)

	hdr, err := cfg.DefaultHeaders()
	require.NoError(t, err)
	require.Equal(t, "Bearer abc", hdr.Get("Authorization"))
	require.Equal(t, "acme", hdr.Get("X-Tenant"))
}

func TestInitInvalidValue(t *testing.T) {
	t.Setenv("RESTORM_TIMEOUT", "soon")

	_, err := config.Init()
	require.ErrorContains(t, err, "unable to parse client configuration")
}

func TestExecutorMalformedHeader(t *testing.T) {
	t.Setenv("RESTORM_HEADERS", "no-colon")

	cfg, err := config.Init()
	require.NoError(t, err)

	_, _, err = cfg.Executor(logger.NewTestLogger())
	require.ErrorContains(t, err, "malformed header")
}

func TestExecutorWithoutCache(t *testing.T) {
	cfg, err := config.Init()
	require.NoError(t, err)

	exec, closeFn, err := cfg.Executor(logger.NewTestLogger())
	require.NoError(t, err)
	require.IsType(t, &driver.HTTPConn{}, exec)
	require.NoError(t, closeFn())
}

func TestExecutorWithCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	t.Setenv("RESTORM_CACHE_ENABLED", "true")
	t.Setenv("RESTORM_CACHE_ADDRESS", mr.Addr())

	cfg, err := config.Init()
	require.NoError(t, err)

	exec, closeFn, err := cfg.Executor(cfg.Logger())
	require.NoError(t, err)
	require.IsType(t, &cache.Executor{}, exec)
	require.NoError(t, closeFn())
}
