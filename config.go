package recsync

import (
	"fmt"

	env "github.com/Netflix/go-env"
	"github.com/rs/zerolog"
)

// Config carries the environment-level settings of a session.
type Config struct {
	// BaseURL is the record service endpoint, e.g. "http://localhost:3000".
	BaseURL string `env:"RECSYNC_BASE_URL,default=http://localhost:3000"`
	// SQLitePath is the local mirror database file. Empty selects the
	// non-persistent in-memory mirror.
	SQLitePath string `env:"RECSYNC_SQLITE_PATH"`
	LogLevel   string `env:"RECSYNC_LOG_LEVEL,default=info"`
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("recsync: reading environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) logLevel() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(c.LogLevel)
}
