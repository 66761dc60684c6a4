package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string
	PublicBaseURL  string // Base URL the gateway redirects/calls back to

	// Payment gateway
	GatewayBaseURL string
	GatewaySiteID  string
	GatewayAPIKey  string
	GatewayTimeout time.Duration
	GatewaySandbox bool

	// Fees (currency minor units; CONTACT_FEE may be overridden at runtime
	// via the dynamic config service)
	ContactFee        int64
	CommissionPercent int
	CurrencyCode      string

	// Reconciliation
	ReconcileSweepInterval time.Duration
	PendingPollAfter       time.Duration
	PendingPollInterval    time.Duration

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", "http://localhost:8080")
	cfg.GatewayBaseURL = getEnv("GATEWAY_BASE_URL", "")
	cfg.GatewaySiteID = getEnv("GATEWAY_SITE_ID", "")
	cfg.GatewayAPIKey = getEnv("GATEWAY_API_KEY", "")
	cfg.CurrencyCode = getEnv("CURRENCY_CODE", "EUR")
	cfg.AppName = getEnv("APP_NAME", "R1")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.GatewaySandbox, err = strconv.ParseBool(getEnv("GATEWAY_SANDBOX", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_SANDBOX: %w", err)
	}
	if !cfg.GatewaySandbox && cfg.GatewayBaseURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL is required unless GATEWAY_SANDBOX is enabled")
	}

	gatewayTimeoutSeconds, err := strconv.ParseInt(getEnv("GATEWAY_TIMEOUT_SECONDS", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT_SECONDS: %w", err)
	}
	cfg.GatewayTimeout = time.Duration(gatewayTimeoutSeconds) * time.Second

	cfg.ContactFee, err = strconv.ParseInt(getEnv("CONTACT_FEE", "2000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CONTACT_FEE: %w", err)
	}

	cfg.CommissionPercent, err = strconv.Atoi(getEnv("COMMISSION_PERCENT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid COMMISSION_PERCENT: %w", err)
	}

	sweepMinutes, err := strconv.ParseInt(getEnv("RECONCILE_SWEEP_INTERVAL_MINUTES", "15"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_SWEEP_INTERVAL_MINUTES: %w", err)
	}
	cfg.ReconcileSweepInterval = time.Duration(sweepMinutes) * time.Minute

	pollAfterMinutes, err := strconv.ParseInt(getEnv("PENDING_POLL_AFTER_MINUTES", "30"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_POLL_AFTER_MINUTES: %w", err)
	}
	cfg.PendingPollAfter = time.Duration(pollAfterMinutes) * time.Minute

	pollIntervalMinutes, err := strconv.ParseInt(getEnv("PENDING_POLL_INTERVAL_MINUTES", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_POLL_INTERVAL_MINUTES: %w", err)
	}
	cfg.PendingPollInterval = time.Duration(pollIntervalMinutes) * time.Minute

	// Rate Limiting
	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
