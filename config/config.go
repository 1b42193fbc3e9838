package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	LogLevel string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Detection thresholds. Minimums exist to avoid alert fatigue on small
	// amounts; windows control how much history each detector considers.
	AlertMinAmount      decimal.Decimal
	AlertSigmaThreshold float64
	DuplicateDayWindow  int
	BaselineDays        int
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		LogLevel:            getEnvWithDefault("LOG_LEVEL", "info"),
		DBHost:              getEnvWithDefault("DB_HOST", "localhost"),
		DBPort:              getEnvWithDefault("DB_PORT", "5432"),
		DBUser:              getEnvWithDefault("DB_USER", "postgres"),
		DBPassword:          os.Getenv("DB_PASSWORD"),
		DBName:              getEnvWithDefault("DB_NAME", "apsentry"),
		DBSSLMode:           getEnvWithDefault("DB_SSLMODE", "disable"),
		AlertMinAmount:      getEnvDecimalWithDefault("ALERT_MIN_AMOUNT", decimal.NewFromInt(500)),
		AlertSigmaThreshold: getEnvFloatWithDefault("ALERT_SIGMA_THRESHOLD", 2.0),
		DuplicateDayWindow:  getEnvIntWithDefault("DUPLICATE_DAY_WINDOW", 7),
		BaselineDays:        getEnvIntWithDefault("BASELINE_DAYS", 90),
	}

	return cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDecimalWithDefault(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if decValue, err := decimal.NewFromString(value); err == nil {
			return decValue
		}
	}
	return defaultValue
}
