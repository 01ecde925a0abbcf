package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is built once at startup and never mutated afterwards.
type Config struct {
	DBSource string
	Port     string
	Env      string
	Version  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	ReplayWindow     time.Duration
	RequireSignature bool

	PawaPayBaseURL  string
	PawaPayAPIToken string
	PawaPaySandbox  bool

	SubscriptionType   string
	SubscriptionAmount decimal.Decimal
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which reports whether a key is set.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	dbSource := get("DB_SOURCE", "")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	redisDB, err := strconv.Atoi(get("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	window, err := time.ParseDuration(get("WEBHOOK_REPLAY_WINDOW", "300s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_REPLAY_WINDOW: %w", err)
	}
	if window <= 0 {
		return nil, fmt.Errorf("WEBHOOK_REPLAY_WINDOW must be positive, got %s", window)
	}

	requireSignature, err := strconv.ParseBool(get("GATEWAY_REQUIRE_SIGNATURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_REQUIRE_SIGNATURE: %w", err)
	}

	sandbox, err := strconv.ParseBool(get("PAWAPAY_SANDBOX", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAWAPAY_SANDBOX: %w", err)
	}

	amount, err := decimal.NewFromString(get("SUBSCRIPTION_AMOUNT", "50000"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUBSCRIPTION_AMOUNT: %w", err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("SUBSCRIPTION_AMOUNT must be positive, got %s", amount)
	}

	baseURL := "https://api.pawapay.io"
	if sandbox {
		baseURL = "https://api.sandbox.pawapay.io"
	}

	return &Config{
		DBSource:           dbSource,
		Port:               get("SERVER_PORT", "8080"),
		Env:                get("ENVIRONMENT", "development"),
		Version:            get("SERVICE_VERSION", "2.0.0"),
		RedisAddr:          get("REDIS_ADDR", ""),
		RedisPassword:      get("REDIS_PASSWORD", ""),
		RedisDB:            redisDB,
		JWTSecret:          get("JWT_SECRET", ""),
		ReplayWindow:       window,
		RequireSignature:   requireSignature,
		PawaPayBaseURL:     get("PAWAPAY_BASE_URL", baseURL),
		PawaPayAPIToken:    get("PAWAPAY_API_TOKEN", ""),
		PawaPaySandbox:     sandbox,
		SubscriptionType:   get("SUBSCRIPTION_TYPE", "smeDirectory"),
		SubscriptionAmount: amount,
	}, nil
}
