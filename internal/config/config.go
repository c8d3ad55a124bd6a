package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters. The auth signing secret
// is read separately by the auth package (PONTO_AUTH_SECRET).
type Config struct {
	Addr          string        `env:"PONTO_ADDR" envDefault:":8080"`
	DatabaseDSN   string        `env:"PONTO_DATABASE_DSN"`
	TokenTTL      time.Duration `env:"PONTO_TOKEN_TTL" envDefault:"8h"`
	RateBurst     int           `env:"PONTO_RATE_BURST" envDefault:"20"`
	RatePerSec    int           `env:"PONTO_RATE_PER_SEC" envDefault:"10"`
	MaxBodyBytes  int64         `env:"PONTO_MAX_BODY_BYTES" envDefault:"4194304"`
	MigrationsDir string        `env:"PONTO_MIGRATIONS_DIR" envDefault:"migrations"`
	SeedsDir      string        `env:"PONTO_SEEDS_DIR" envDefault:"migrations/seeds"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
