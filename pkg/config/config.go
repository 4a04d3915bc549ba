package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"cooksa_backend/pkg/subscription"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Email    EmailConfig
	Content  ContentConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port        string `env:"PORT" envDefault:"3000"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:3000"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
}

type DatabaseConfig struct {
	URL string `env:"DATABASE_URL,notEmpty"`
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET,notEmpty"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"720h"`
}

// StripeConfig leaves the webhook secret optional so the server still
// boots; the webhook route reports the missing secret per request.
type StripeConfig struct {
	SecretKey     string                `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string                `env:"STRIPE_WEBHOOK_SECRET"`
	Prices        subscription.PriceIDs `envPrefix:"STRIPE_"`
}

type StorageConfig struct {
	AccountID string `env:"R2_ACCOUNT_ID"`
	AccessKey string `env:"R2_ACCESS_KEY"`
	SecretKey string `env:"R2_SECRET_KEY"`
	Bucket    string `env:"R2_BUCKET_NAME"`
	PublicURL string `env:"R2_PUBLIC_URL"`
}

type RedisConfig struct {
	URL            string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

type EmailConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	From         string `env:"EMAIL_FROM" envDefault:"Cooksa <no-reply@cooksa.app>"`
}

type ContentConfig struct {
	GraphQLURL string        `env:"CONTENT_GRAPHQL_URL" envDefault:"https://cooksa-api.g-saliev.workers.dev/api/graphql"`
	CacheTTL   time.Duration `env:"CONTENT_CACHE_TTL" envDefault:"1h"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.JWT.TTL <= 0 {
		return nil, fmt.Errorf("%w: JWT_TTL must be positive", ErrInvalidConfig)
	}
	return &cfg, nil
}

// StorageEnabled reports whether every R2 setting is present.
func (c *Config) StorageEnabled() bool {
	s := c.Storage
	return s.AccountID != "" && s.AccessKey != "" && s.SecretKey != "" && s.Bucket != "" && s.PublicURL != ""
}
