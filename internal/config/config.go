package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"tainment-service/internal/db"
	"tainment-service/internal/pkg/jwt"
	"tainment-service/internal/pkg/logger"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type AppConfig struct {
	// Server
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8000"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	Postgres db.PostgresConfig
	Redis    db.RedisConfig

	// JWT
	JWT jwt.Config

	// Host names allowed to open websockets; empty allows any
	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`

	// Event bus; empty disables publishing
	NATSURL string `env:"NATS_URL"`

	Log     logger.Config
	Scanner ScannerConfig
	Payment PaymentConfig

	TransitionMaxAttempts int           `env:"TRANSITION_MAX_ATTEMPTS" envDefault:"3"`
	CacheTTL              time.Duration `env:"CACHE_TTL" envDefault:"1m"`

	// Per-identity request cap on authenticated routes; needs redis
	APIRateLimit  int64         `env:"API_RATE_LIMIT" envDefault:"120"`
	APIRateWindow time.Duration `env:"API_RATE_WINDOW" envDefault:"1m"`
}

type ScannerConfig struct {
	Enabled        bool          `env:"SCANNER_ENABLED" envDefault:"true"`
	NoticeInterval time.Duration `env:"SCANNER_NOTICE_INTERVAL" envDefault:"24h"`
	ExpiryInterval time.Duration `env:"SCANNER_EXPIRY_INTERVAL" envDefault:"12h"`
	ReminderWindow time.Duration `env:"SCANNER_REMINDER_WINDOW" envDefault:"72h"`
	LockTTL        time.Duration `env:"SCANNER_LOCK_TTL" envDefault:"10m"`
}

type PaymentConfig struct {
	CheckoutTimeout    time.Duration `env:"CHECKOUT_TIMEOUT" envDefault:"30m"`
	CheckoutRateLimit  int64         `env:"CHECKOUT_RATE_LIMIT" envDefault:"10"`
	CheckoutRateWindow time.Duration `env:"CHECKOUT_RATE_WINDOW" envDefault:"1h"`
	Currency           string        `env:"PAYMENT_CURRENCY" envDefault:"USD"`
	Method             string        `env:"PAYMENT_METHOD" envDefault:"mock_gateway"`
	MockSuccessRate    float64       `env:"MOCK_GATEWAY_SUCCESS_RATE" envDefault:"0.9"`
	MockVerifyRate     float64       `env:"MOCK_GATEWAY_VERIFY_RATE" envDefault:"1.0"`
	MockSeed           int64         `env:"MOCK_GATEWAY_SEED" envDefault:"0"`
}

// IsProduction reports whether APP_ENV is production.
func (c AppConfig) IsProduction() bool { return c.AppEnv == "production" }

// Load parses the environment into AppConfig. Callers load any .env file first.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Log.Development = !cfg.IsProduction()

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("POSTGRES_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q; choose %s or %s", c.StoreDriver, StorePostgres, StoreMemory)
	}

	for name, rate := range map[string]float64{
		"MOCK_GATEWAY_SUCCESS_RATE": c.Payment.MockSuccessRate,
		"MOCK_GATEWAY_VERIFY_RATE":  c.Payment.MockVerifyRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, rate)
		}
	}
	if c.TransitionMaxAttempts <= 0 {
		return fmt.Errorf("TRANSITION_MAX_ATTEMPTS must be positive")
	}
	return nil
}
