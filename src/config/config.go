package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Market data provider settings
	AlphaVantageBaseURL string
	AlphaVantageAPIKey  string
	ConnectTimeout      time.Duration
	RequestTimeout      time.Duration

	// Fetch resilience settings
	FetchDeadline          time.Duration
	RetryMaxAttempts       int
	RetryWaitInterval      time.Duration
	BreakerFailureRatio    float64
	BreakerWindowSize      int
	BreakerCooldown        time.Duration
	MinRequestSpacing      time.Duration
	RetryAfterCap          time.Duration
	LivePriceCacheDuration time.Duration

	// Local fallback settings
	LocalFallbackEnabled      bool
	LocalFallbackLookbackDays int

	// Scheduled sync settings
	SyncEnabled  bool
	SyncCronSpec string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// Try the current directory first, then the parent (common when running from /backend).
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./stockdash.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Market data provider
		AlphaVantageBaseURL: getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
		AlphaVantageAPIKey:  getEnv("ALPHA_VANTAGE_API_KEY", ""),
		ConnectTimeout:      getEnvAsDuration("PRICE_CONNECT_TIMEOUT", 5*time.Second),
		RequestTimeout:      getEnvAsDuration("PRICE_REQUEST_TIMEOUT", 10*time.Second),

		// Fetch resilience
		FetchDeadline:          getEnvAsDuration("PRICE_FETCH_DEADLINE", 90*time.Second),
		RetryMaxAttempts:       getEnvAsInt("PRICE_RETRY_MAX_ATTEMPTS", 3),
		RetryWaitInterval:      getEnvAsDuration("PRICE_RETRY_WAIT_INTERVAL", 500*time.Millisecond),
		BreakerFailureRatio:    getEnvAsFloat("PRICE_BREAKER_FAILURE_RATIO", 0.5),
		BreakerWindowSize:      getEnvAsInt("PRICE_BREAKER_WINDOW_SIZE", 10),
		BreakerCooldown:        getEnvAsDuration("PRICE_BREAKER_COOLDOWN", 30*time.Second),
		MinRequestSpacing:      getEnvAsDuration("PRICE_MIN_REQUEST_SPACING", 1800*time.Millisecond),
		RetryAfterCap:          getEnvAsDuration("PRICE_RETRY_AFTER_CAP", 60*time.Second),
		LivePriceCacheDuration: getEnvAsDuration("PRICE_LIVE_CACHE_DURATION", 15*time.Minute),

		// Local fallback
		LocalFallbackEnabled:      getEnvAsBool("PRICE_LOCAL_FALLBACK_ENABLED", true),
		LocalFallbackLookbackDays: getEnvAsInt("PRICE_LOCAL_FALLBACK_LOOKBACK_DAYS", 120),

		// Scheduled sync
		SyncEnabled:  getEnvAsBool("PRICE_SYNC_ENABLED", false),
		SyncCronSpec: getEnv("PRICE_SYNC_CRON", "0 22 * * MON-FRI"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, SyncEnabled=%t",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.SyncEnabled)
	if Cfg.AlphaVantageAPIKey == "" {
		log.Println("WARNING: ALPHA_VANTAGE_API_KEY is not set; price sync will rely on local fallback only.")
	}
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsFloat retrieves an environment variable as a float or returns a fallback.
func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %f", key, valueStr, fallback)
	return fallback
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a fallback.
func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
