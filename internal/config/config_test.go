package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "production", Port: 8080},
		Store:  StoreConfig{Driver: "postgres"},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "salon", SSLMode: ""},
		Auth:   AuthConfig{JWTSecret: "secret", JWTIssuer: "i", JWTAudience: "a"},
		Twilio: TwilioConfig{AuthToken: "tok"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "local", Port: 8080},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "salon"},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Store.Driver != "postgres" {
		t.Fatalf("expected postgres default driver, got %q", c.Store.Driver)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Redis.CountsTTL != 30*time.Second {
		t.Fatalf("expected counts ttl default, got %s", c.Redis.CountsTTL)
	}
	if c.Intake.DefaultRegion != "US" {
		t.Fatalf("expected US default region, got %q", c.Intake.DefaultRegion)
	}
	if c.RedisAddr() != "" {
		t.Fatalf("expected redis disabled")
	}
}

func TestValidate_SQLiteNeedsPathButNotPostgres(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "dev", Port: 8080},
		Store: StoreConfig{Driver: "sqlite"},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing SQLITE_PATH")
	}
	c.Store.SQLitePath = "/tmp/leads.db"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_MemoryRejectedInProduction(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "production", Port: 8080},
		Store:  StoreConfig{Driver: "memory"},
		Auth:   AuthConfig{JWTSecret: "secret", JWTIssuer: "i", JWTAudience: "a"},
		Twilio: TwilioConfig{AuthToken: "tok"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected memory store to be rejected in production")
	}
}

func TestLoad_ReadsYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salon.yaml")
	body := `
routing:
  staff:
    - user_id: stylist-1
      locations: [downtown]
      services: [color]
      weight: 3
telephony:
  numbers:
    "+15550001111": downtown
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CONFIG_FILE", path)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Routing.Staff) != 1 || c.Routing.Staff[0].UserID != "stylist-1" || c.Routing.Staff[0].Weight != 3 {
		t.Fatalf("unexpected staff: %+v", c.Routing.Staff)
	}
	if c.Telephony.Numbers["+15550001111"] != "downtown" {
		t.Fatalf("unexpected numbers: %+v", c.Telephony.Numbers)
	}
}

func TestLoad_BadYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("::: not yaml :::"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected yaml error")
	}
}
