package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds the gateway settings
type Config struct {
	Environment string
	Port        string

	// Database
	DatabaseDriver string // "postgres" or "sqlite"
	PostgresDSN    string
	SQLitePath     string

	// JWT
	JWTSecret string

	// Verification engine
	EngineURL                   string
	EngineTimeout               time.Duration
	EngineDisableClockReduction bool

	// CORS
	AllowedOrigins []string

	// Logging
	LogLevel string
	Debug    bool
}

// LoadConfig reads the environment, after loading the .env file that matches
// ENVIRONMENT. Variables already set in the process are never overridden.
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	switch env {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}
	loadEnvFile(".env")

	config := &Config{
		Environment:                 getEnvWithDefault("ENVIRONMENT", "development"),
		Port:                        getEnvWithDefault("PORT", "3000"),
		DatabaseDriver:              strings.ToLower(getEnvWithDefault("DATABASE_DRIVER", "")),
		SQLitePath:                  getEnvWithDefault("SQLITE_PATH", "./data/gateway.db"),
		JWTSecret:                   getEnvWithDefault("JWT_SECRET", defaultJWTSecret),
		EngineURL:                   strings.TrimSpace(os.Getenv("ENGINE_URL")),
		EngineTimeout:               getEnvDuration("ENGINE_TIMEOUT", 30*time.Second),
		EngineDisableClockReduction: getEnvBool("ENGINE_DISABLE_CLOCK_REDUCTION", false),
		LogLevel:                    strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		Debug:                       getEnvBool("DEBUG", false),
	}

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))

	// Postgres when a DSN is present, unless a driver is chosen explicitly
	if config.DatabaseDriver == "" {
		if config.PostgresDSN != "" {
			config.DatabaseDriver = "postgres"
		} else {
			config.DatabaseDriver = "sqlite"
		}
	}

	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		for _, origin := range strings.Split(allowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, origin)
			}
		}
	}

	if config.Environment == "production" {
		config.Debug = false
	}
	if config.Debug {
		config.LogLevel = "debug"
	}

	return config
}

// Validate checks the settings needed to serve requests
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	switch c.DatabaseDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_DRIVER=postgres requires POSTGRES_DSN")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("DATABASE_DRIVER=sqlite requires SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.EngineURL == "" {
		return fmt.Errorf("ENGINE_URL is required")
	}
	if c.EngineTimeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT must be positive")
	}

	return nil
}

// UsesDefaultJWTSecret reports whether the insecure fallback secret is in use
func (c *Config) UsesDefaultJWTSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment reports whether ENVIRONMENT is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault returns the variable or the default when unset
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// loadEnvFile loads a .env file if it exists; a missing file is not an error
func loadEnvFile(filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return
	}
	_ = godotenv.Load(filename)
}
