package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
)

// DB is the subset of configuration needed to reach Postgres. budgetctl
// loads only this part.
type DB struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	// Upper bound on how long a ledger mutation waits for an account row lock.
	LedgerLockTimeout time.Duration `env:"LEDGER_LOCK_TIMEOUT" envDefault:"2s"`
}

type Config struct {
	DB

	JWTSecret   string        `env:"JWT_SECRET,required,notEmpty"`
	TokenExpiry time.Duration `env:"TOKEN_EXPIRY" envDefault:"12h"`
	Port        int           `env:"PORT" envDefault:"8080"`

	IdempotencyTTL           time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencySweepInterval time.Duration `env:"IDEMPOTENCY_SWEEP_INTERVAL" envDefault:"15m"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// LoadDB reads only the database settings, so JWT_SECRET is not required.
func LoadDB() (*DB, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[DB]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadDB: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.LoadDB: %w", err)
	}
	return &cfg, nil
}

func (d DB) validate() error {
	// Postgres takes lock_timeout in whole milliseconds and treats 0 as no limit.
	if d.LedgerLockTimeout < time.Millisecond {
		return fmt.Errorf("LEDGER_LOCK_TIMEOUT must be at least 1ms, got %s", d.LedgerLockTimeout)
	}
	return nil
}

func (d DB) Pool() repository.PoolConfig {
	return repository.PoolConfig{
		MaxOpenConns:     d.DBMaxOpenConns,
		MaxIdleConns:     d.DBMaxIdleConns,
		ConnMaxLifetimeS: d.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: d.DBConnMaxIdleTimeS,
	}
}
