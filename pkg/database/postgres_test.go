package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opencta/quant/pkg/config"
)

func TestNew(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		t.Errorf("Failed to ping database: %v", err)
	}
}

func TestNewInvalidURL(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.URL = "not-a-valid-url"

	if _, err := New(cfg); err == nil {
		t.Error("Expected error for invalid database URL, got nil")
	}
}
