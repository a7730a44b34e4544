package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string // verifies user access tokens issued by Supabase Auth

	// Investment prices
	PriceCacheTTL        time.Duration // how long a fetched price is served from the local cache
	PriceRateLimitWindow time.Duration // minimum gap between upstream fetches of one symbol, across clients
	PriceCacheFile       string        // local persistence of the price cache; empty = memory only
	EODHDAPIURL          string
	EODHDAPIKey          string
	QuoteAPIURL          string // secondary price source; empty disables it
	UpstreamRPS          int
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),

		PriceCacheTTL:        getEnvDuration("PRICE_CACHE_TTL", time.Hour),
		PriceRateLimitWindow: getEnvDuration("PRICE_RATE_LIMIT_WINDOW", time.Minute),
		PriceCacheFile:       getEnv("PRICE_CACHE_FILE", ".cache/prices.json"),
		EODHDAPIURL:          getEnv("EODHD_API_URL", "https://eodhd.com/api"),
		EODHDAPIKey:          getEnv("EODHD_API_KEY", ""),
		QuoteAPIURL:          getEnv("QUOTE_API_URL", ""),
		UpstreamRPS:          getEnvInt("UPSTREAM_RPS", 5),
	}
}

// Validate reports configuration that would prevent the server from working.
func (c *Config) Validate() []string {
	var problems []string
	if c.SupabaseURL == "" {
		problems = append(problems, "SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		problems = append(problems, "SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if c.SupabaseJWTSecret == "" {
		problems = append(problems, "SUPABASE_JWT_SECRET is required")
	}
	if c.PriceCacheTTL <= 0 {
		problems = append(problems, "PRICE_CACHE_TTL must be positive")
	}
	return problems
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
