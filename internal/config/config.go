package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process configuration read from STUDIO_* environment variables.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`
	BaseURL  string `env:"BASE_URL" envDefault:"http://localhost:3000"`

	PGDSN string `env:"PG_DSN"`

	AuthSecret string        `env:"AUTH_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"12h"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`

	ResendAPIKey string        `env:"RESEND_API_KEY"`
	MailFrom     string        `env:"MAIL_FROM" envDefault:"Studio <no-reply@localhost>"`
	MailTimeout  time.Duration `env:"MAIL_TIMEOUT" envDefault:"10s"`

	RedisAddr  string `env:"REDIS_ADDR"`
	RateBurst  int    `env:"RATE_BURST" envDefault:"10"`
	RatePerSec int    `env:"RATE_PER_SEC" envDefault:"5"`

	InviteDefaultDays int `env:"INVITE_DEFAULT_DAYS" envDefault:"7"`

	// Реквизиты студии для PDF-договора
	StudioName           string `env:"NAME" envDefault:"Studio"`
	StudioLegalName      string `env:"LEGAL_NAME"`
	StudioAddress        string `env:"ADDRESS"`
	StudioTaxID          string `env:"TAX_ID"`
	StudioRepresentative string `env:"REPRESENTATIVE"`
	StudioJurisdiction   string `env:"JURISDICTION"`
	Currency             string `env:"CURRENCY" envDefault:"USD"`

	SentryDSN    string   `env:"SENTRY_DSN"`
	OTelEndpoint string   `env:"OTEL_ENDPOINT"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// за балансировщиком: доверять X-Forwarded-For
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`
}

const prefix = "STUDIO_"

// Load reads an optional .env file and parses the environment into Config.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Production reports whether the service runs in a production environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks cross-field constraints not expressible with struct tags.
func (c Config) Validate() error {
	var errs []error
	if c.Production() {
		if c.AuthSecret == "" {
			errs = append(errs, errors.New("STUDIO_AUTH_SECRET is required in production"))
		}
		if c.PGDSN == "" {
			errs = append(errs, errors.New("STUDIO_PG_DSN is required in production"))
		}
	}
	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		errs = append(errs, errors.New("STUDIO_SUPABASE_URL and STUDIO_SUPABASE_SERVICE_KEY must be set together"))
	}
	if c.InviteDefaultDays < 1 || c.InviteDefaultDays > 90 {
		errs = append(errs, fmt.Errorf("STUDIO_INVITE_DEFAULT_DAYS must be within 1..90, got %d", c.InviteDefaultDays))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("rate limit settings must be positive"))
	}
	if c.MailTimeout <= 0 {
		errs = append(errs, errors.New("STUDIO_MAIL_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}
