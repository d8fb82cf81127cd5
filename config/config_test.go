package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWildApricotConfig_Sanitize(t *testing.T) {
	cfg := WildApricotConfig{PageSize: 0, RateLimitBackoff: 0, RateLimitRetries: 0}
	cfg.Sanitize()

	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 10*time.Second, cfg.RateLimitBackoff)
	assert.Equal(t, 1, cfg.RateLimitRetries)
}

func TestWildApricotConfig_Sanitize_ClampsPageSize(t *testing.T) {
	cfg := WildApricotConfig{PageSize: 500, RateLimitBackoff: time.Second, RateLimitRetries: 3}
	cfg.Sanitize()

	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, time.Second, cfg.RateLimitBackoff)
	assert.Equal(t, 3, cfg.RateLimitRetries)
}

func TestJobsConfig_Sanitize(t *testing.T) {
	cfg := JobsConfig{}
	cfg.Sanitize()

	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.TTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
}

func TestAppConfig_Sanitize_DetectsDevMode(t *testing.T) {
	t.Setenv("NODE_ENV", "development")

	cfg := AppConfig{}
	cfg.Sanitize()

	assert.True(t, cfg.IsDev)
}
