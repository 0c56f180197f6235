package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration of the API server.
type Config struct {
	DBDriver string // sqlite or postgres
	DBSource string
	Port     string
	LogLevel string
	Currency string // ISO 4217 code used to display amounts
	Env      string
}

// Load reads the configuration from the environment. Variables found in a
// .env file in the working directory are loaded first without overriding
// the ones already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBSource: getenv("DB_SOURCE", "loanledger.db"),
		Port:     getenv("SERVER_PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Currency: strings.ToUpper(getenv("CURRENCY", "USD")),
		Env:      getenv("ENVIRONMENT", "development"),
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q, want sqlite or postgres", cfg.DBDriver)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
