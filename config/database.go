package config

import "time"

// RedisConfig contains Redis configuration for the session store.
// Sessions carry the per-user OAuth tokens and the cached report-access
// decision; nothing else is persisted.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`

	// SessionTTL bounds how long a login is honored. User tokens are never
	// refreshed, so the session simply expires and forces a re-login.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"8h"`
}
