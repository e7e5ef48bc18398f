package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from defaults, then
// an optional YAML file, then SWIFTBASE_* environment overrides, in that order.
type Config struct {
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`

	// Storage
	DatabasePath string `yaml:"database_path"`
	StorageDir   string `yaml:"storage_dir"`

	// Authentication
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`

	// Behavior
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	CORSOrigins    []string      `yaml:"cors_origins"`

	// Seeding
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerAddress:   ":8090",
		Environment:     "development",
		LogLevel:        "info",
		DatabasePath:    "./data/swiftbase.db",
		StorageDir:      "./data/storage",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		RequestTimeout:  30 * time.Second,
		SweepInterval:   time.Hour,
		CORSOrigins:     []string{"*"},
		AdminUsername:   "admin",
	}
}

// Load reads configuration from the optional file at path (empty means no
// file) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SWIFTBASE_ADDR", c.ServerAddress)
	c.Environment = getEnv("SWIFTBASE_ENV", c.Environment)
	c.LogLevel = getEnv("SWIFTBASE_LOG_LEVEL", c.LogLevel)
	c.DatabasePath = getEnv("SWIFTBASE_DB_PATH", c.DatabasePath)
	c.StorageDir = getEnv("SWIFTBASE_STORAGE_DIR", c.StorageDir)
	c.JWTSecret = getEnv("SWIFTBASE_JWT_SECRET", c.JWTSecret)
	c.AdminUsername = getEnv("SWIFTBASE_ADMIN_USERNAME", c.AdminUsername)
	c.AdminPassword = getEnv("SWIFTBASE_ADMIN_PASSWORD", c.AdminPassword)
	c.RequestTimeout = getEnvDuration("SWIFTBASE_REQUEST_TIMEOUT", c.RequestTimeout)
	c.SweepInterval = getEnvDuration("SWIFTBASE_SWEEP_INTERVAL", c.SweepInterval)
}

// Validate checks required configuration.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("SWIFTBASE_JWT_SECRET is required in production")
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "development-secret-change-in-production"
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
