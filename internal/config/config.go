package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource    string
	Port        string
	Env         string
	LogLevel    string
	AutoMigrate bool

	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	ProviderTimeout time.Duration

	PayPalClientID     string
	PayPalClientSecret string
	PayPalBaseURL      string
	ProPrice           string
	ProCurrency        string
}

// PaymentsEnabled reports whether processor credentials were supplied.
func (c *Config) PaymentsEnabled() bool {
	return c.PayPalClientID != "" && c.PayPalClientSecret != ""
}

// Load reads configuration from the environment. Values in .env and .env.local
// are applied first but never override variables that are already set.
func Load() (*Config, error) {
	if err := loadDotenv(".env", ".env.local"); err != nil {
		return nil, err
	}

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	autoMigrate, err := strconv.ParseBool(getenv("AUTO_MIGRATE", "true"))
	if err != nil {
		return nil, fmt.Errorf("AUTO_MIGRATE: %w", err)
	}

	timeoutSeconds, err := strconv.Atoi(getenv("PROVIDER_TIMEOUT_SECONDS", "60"))
	if err != nil || timeoutSeconds <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be a positive integer")
	}

	return &Config{
		DBSource:    dbSource,
		Port:        getenv("SERVER_PORT", "8080"),
		Env:         getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		AutoMigrate: autoMigrate,

		GeminiAPIKey:    geminiKey,
		GeminiModel:     getenv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:   getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ProviderTimeout: time.Duration(timeoutSeconds) * time.Second,

		PayPalClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
		PayPalBaseURL:      getenv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
		ProPrice:           getenv("PRO_PRICE", "9.99"),
		ProCurrency:        getenv("PRO_CURRENCY", "USD"),
	}, nil
}

// loadDotenv applies each file in turn. Missing files are skipped; unreadable or
// malformed ones are reported.
func loadDotenv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
