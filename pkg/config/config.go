package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application. Environment variables
// are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Market data vendor
	Vendor VendorConfig

	// Notifications
	Notify NotifyConfig

	// Instrument metadata
	InstrumentsFile string

	// Reports
	ChartDir string

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// VendorConfig holds the market data vendor API configuration
type VendorConfig struct {
	BaseURL   string
	SecretKey string

	// Bulk download throttling
	RequestsPerSecond float64
	MaxWindowDays     int
	Workers           int
}

// NotifyConfig holds SMS/notification delivery configuration
type NotifyConfig struct {
	Enabled    bool
	AccountSID string
	AuthToken  string
	BaseURL    string
	From       string
	To         string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "quant"),
			User:            getEnv("DB_USER", "quant"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Market data vendor
		Vendor: VendorConfig{
			BaseURL:           getEnv("VENDOR_BASE_URL", "http://localhost:8000"),
			SecretKey:         getEnv("VENDOR_SECRET_KEY", ""),
			RequestsPerSecond: getEnvAsFloat("VENDOR_REQUESTS_PER_SECOND", 1.0),
			MaxWindowDays:     getEnvAsInt("VENDOR_MAX_WINDOW_DAYS", 3000),
			Workers:           getEnvAsInt("VENDOR_WORKERS", 4),
		},

		// Notifications
		Notify: NotifyConfig{
			Enabled:    getEnvAsBool("NOTIFY_ENABLED", false),
			AccountSID: getEnv("NOTIFY_ACCOUNT_SID", ""),
			AuthToken:  getEnv("NOTIFY_AUTH_TOKEN", ""),
			BaseURL:    getEnv("NOTIFY_BASE_URL", "https://api.twilio.com"),
			From:       getEnv("NOTIFY_FROM", ""),
			To:         getEnv("NOTIFY_TO", ""),
		},

		// Instrument metadata
		InstrumentsFile: getEnv("INSTRUMENTS_FILE", "config/instruments.yaml"),

		// Reports
		ChartDir: getEnv("CHART_DIR", defaultChartDir()),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Vendor.RequestsPerSecond <= 0 {
		return fmt.Errorf("VENDOR_REQUESTS_PER_SECOND must be positive")
	}

	if c.Notify.Enabled && (c.Notify.AccountSID == "" || c.Notify.AuthToken == "") {
		return fmt.Errorf("NOTIFY_ACCOUNT_SID and NOTIFY_AUTH_TOKEN are required when NOTIFY_ENABLED=true")
	}

	return nil
}

func defaultChartDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		fallback, _ := time.ParseDuration(defaultValue)
		return fallback
	}

	return value
}
