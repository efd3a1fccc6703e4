package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries every deployment parameter. The grace window and sweep
// cadence are configuration, not core invariants.
type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	ServerAddr     string        `env:"SERVER_ADDR" envDefault:":8080"`
	RedisAddr      string        `env:"REDIS_ADDR"` // empty disables the copy cache
	GraceWindow    time.Duration `env:"RESERVATION_GRACE_WINDOW" envDefault:"48h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	LoanPeriodDays int           `env:"LOAN_PERIOD_DAYS" envDefault:"14"`
	CopyCacheTTL   time.Duration `env:"COPY_CACHE_TTL" envDefault:"30s"`
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	// Ignore errors - the .env file might not exist and that's ok.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
