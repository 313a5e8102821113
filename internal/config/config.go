// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port        string `env:"PORT"         envDefault:"8080"`
	Store       string `env:"STORE"        envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	// SeedOnStart loads test accounts and reference data after migrating
	SeedOnStart bool `env:"SEED_ON_START" envDefault:"true"`

	JWTSecret          string        `env:"APP_JWT_SECRET"`
	HandoffTokenSecret string        `env:"HANDOFF_TOKEN_SECRET"`
	HandoffTokenTTL    time.Duration `env:"HANDOFF_TOKEN_TTL"    envDefault:"24h"`
	PublicBaseURL      string        `env:"PUBLIC_BASE_URL"      envDefault:"http://localhost:8080"`

	GoogleMapsAPIKey     string        `env:"GOOGLE_MAPS_API_KEY"`
	RouteProviderTimeout time.Duration `env:"ROUTE_PROVIDER_TIMEOUT" envDefault:"3s"`
	RedisURL             string        `env:"REDIS_URL"`
	DirectionsCacheTTL   time.Duration `env:"DIRECTIONS_CACHE_TTL"   envDefault:"10m"`

	FirebaseCredentialsBase64 string `env:"FIREBASE_CREDENTIALS_BASE64"`
	FirebaseCredentialsFile   string `env:"FIREBASE_CREDENTIALS_FILE"`

	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1m"`
}

// Load reads .env when present, then parses the environment
func Load() (Config, error) {
	log.Println("📂 Loading environment variables...")
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	} else {
		log.Println("✅ .env file loaded successfully")
	}
	return Parse()
}

// Parse reads the environment only
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.HandoffTokenSecret == "" {
		cfg.HandoffTokenSecret = cfg.JWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("APP_JWT_SECRET is required")
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.HandoffTokenTTL <= 0 {
		return fmt.Errorf("HANDOFF_TOKEN_TTL must be positive, got %s", c.HandoffTokenTTL)
	}
	if c.RouteProviderTimeout <= 0 {
		return fmt.Errorf("ROUTE_PROVIDER_TIMEOUT must be positive, got %s", c.RouteProviderTimeout)
	}
	return nil
}
