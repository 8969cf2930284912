package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8089" {
		t.Errorf("Expected Port to be 8089, got %s", cfg.Port)
	}

	if cfg.Env != "development" {
		t.Errorf("Expected Env to be development, got %s", cfg.Env)
	}

	if cfg.Database.MaxConns != 25 {
		t.Errorf("Expected DB MaxConns to be 25, got %d", cfg.Database.MaxConns)
	}

	if cfg.Vendor.MaxWindowDays != 3000 {
		t.Errorf("Expected Vendor MaxWindowDays to be 3000, got %d", cfg.Vendor.MaxWindowDays)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	// Set custom environment variables
	os.Setenv("PORT", "9000")
	os.Setenv("ENV", "production")
	os.Setenv("VENDOR_BASE_URL", "http://vendor:8000")
	os.Setenv("VENDOR_REQUESTS_PER_SECOND", "0.5")
	os.Setenv("LOG_LEVEL", "info")

	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("ENV")
		os.Unsetenv("VENDOR_BASE_URL")
		os.Unsetenv("VENDOR_REQUESTS_PER_SECOND")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected Port to be 9000, got %s", cfg.Port)
	}

	if cfg.Env != "production" {
		t.Errorf("Expected Env to be production, got %s", cfg.Env)
	}

	if cfg.Vendor.BaseURL != "http://vendor:8000" {
		t.Errorf("Expected Vendor BaseURL to be http://vendor:8000, got %s", cfg.Vendor.BaseURL)
	}

	if cfg.Vendor.RequestsPerSecond != 0.5 {
		t.Errorf("Expected Vendor RequestsPerSecond to be 0.5, got %f", cfg.Vendor.RequestsPerSecond)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected LogLevel to be info, got %s", cfg.LogLevel)
	}
}

func TestValidateInvalidEnv(t *testing.T) {
	os.Setenv("ENV", "sandbox")
	defer os.Unsetenv("ENV")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for invalid ENV, got nil")
	}
}

func TestValidateNotifyCredentials(t *testing.T) {
	os.Setenv("NOTIFY_ENABLED", "true")
	defer os.Unsetenv("NOTIFY_ENABLED")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when NOTIFY_ENABLED is set without credentials, got nil")
	}
}
