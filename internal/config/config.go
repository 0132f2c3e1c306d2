// Package config loads client and mock-backend configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Store backends accepted by CREDENTIAL_STORE.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Config struct {
	// APIBaseURL is the wallet backend root, e.g. https://api.example.com.
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// RequestTimeout bounds every HTTP round trip.
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	// TelegramInitData is sent as X-Telegram-Init-Data when running inside the Telegram host.
	TelegramInitData string `mapstructure:"TELEGRAM_INIT_DATA"`

	CredentialStore string `mapstructure:"CREDENTIAL_STORE"`
	CredentialFile  string `mapstructure:"CREDENTIAL_FILE"`
	RedisURL        string `mapstructure:"REDIS_URL"`
	RedisPass       string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`
	RedisNamespace  string `mapstructure:"REDIS_NAMESPACE"`

	// RateLimitRPS caps outgoing requests per second; 0 disables the limiter.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`
	DepositMin      string `mapstructure:"DEPOSIT_MIN"`
	DepositMax      string `mapstructure:"DEPOSIT_MAX"`
	WithdrawMin     string `mapstructure:"WITHDRAW_MIN"`
	WithdrawMax     string `mapstructure:"WITHDRAW_MAX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	Env       string `mapstructure:"APP_ENV"`

	// Mock backend (cmd/mockapi) settings.
	MockAddr         string        `mapstructure:"MOCK_ADDR"`
	BotToken         string        `mapstructure:"BOT_TOKEN"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTAccessTTL     time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL    time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	MockEmail        string        `mapstructure:"MOCK_EMAIL"`
	MockPassword     string        `mapstructure:"MOCK_PASSWORD"`
	MockStartBalance string        `mapstructure:"MOCK_START_BALANCE"`
}

// Load reads .env (if present), then the environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("TELEGRAM_INIT_DATA", "")
	v.SetDefault("CREDENTIAL_STORE", StoreFile)
	v.SetDefault("CREDENTIAL_FILE", ".wallet-session.json")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_NAMESPACE", "default")
	v.SetDefault("RATE_LIMIT_RPS", 0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("DEFAULT_CURRENCY", "USDT.TRC20")
	v.SetDefault("DEPOSIT_MIN", "10")
	v.SetDefault("DEPOSIT_MAX", "100000")
	v.SetDefault("WITHDRAW_MIN", "10")
	v.SetDefault("WITHDRAW_MAX", "50000")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("MOCK_ADDR", ":8000")
	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("MOCK_EMAIL", "demo@goldenage.local")
	v.SetDefault("MOCK_PASSWORD", "demo1234")
	v.SetDefault("MOCK_START_BALANCE", "1000")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return errors.New("config: API_BASE_URL must be set")
	}
	if c.RequestTimeout < time.Second || c.RequestTimeout > 2*time.Minute {
		return fmt.Errorf("config: REQUEST_TIMEOUT must be between 1s and 2m, got %s", c.RequestTimeout)
	}

	switch c.CredentialStore {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("config: CREDENTIAL_STORE must be memory, file or redis, got %q", c.CredentialStore)
	}
	if c.CredentialStore == StoreFile && c.CredentialFile == "" {
		return errors.New("config: CREDENTIAL_FILE is required when CREDENTIAL_STORE=file")
	}

	if c.RateLimitRPS < 0 {
		return errors.New("config: RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return errors.New("config: RATE_LIMIT_BURST must be at least 1")
	}

	if _, _, err := c.DepositRange(); err != nil {
		return err
	}
	if _, _, err := c.WithdrawRange(); err != nil {
		return err
	}

	return nil
}

// DepositRange returns the parsed [DEPOSIT_MIN, DEPOSIT_MAX] bounds.
func (c *Config) DepositRange() (decimal.Decimal, decimal.Decimal, error) {
	return parseRange("DEPOSIT", c.DepositMin, c.DepositMax)
}

// WithdrawRange returns the parsed [WITHDRAW_MIN, WITHDRAW_MAX] bounds.
func (c *Config) WithdrawRange() (decimal.Decimal, decimal.Decimal, error) {
	return parseRange("WITHDRAW", c.WithdrawMin, c.WithdrawMax)
}

// StartBalance parses MOCK_START_BALANCE; invalid values fall back to 1000.
func (c *Config) StartBalance() decimal.Decimal {
	d, err := decimal.NewFromString(c.MockStartBalance)
	if err != nil || d.IsNegative() {
		return decimal.NewFromInt(1000)
	}
	return d
}

func parseRange(prefix, minStr, maxStr string) (decimal.Decimal, decimal.Decimal, error) {
	lo, err := decimal.NewFromString(minStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: %s_MIN: %w", prefix, err)
	}
	hi, err := decimal.NewFromString(maxStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: %s_MAX: %w", prefix, err)
	}
	if lo.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: %s_MIN must not be negative", prefix)
	}
	if lo.GreaterThan(hi) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: %s_MIN (%s) exceeds %s_MAX (%s)", prefix, lo, prefix, hi)
	}
	return lo, hi, nil
}
