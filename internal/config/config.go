// Package config содержит логику чтения конфигурации витрины.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Хранилища, которые умеет использовать витрина.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config содержит параметры конфигурации витрины.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	StorageBackend string `env:"STORAGE_BACKEND"`
	DatabaseURI    string `env:"DATABASE_URI"`
	BadgerDir      string `env:"BADGER_DIR"`
	CatalogURL     string `env:"CATALOG_URL"`
	SessionSecret  string `env:"SESSION_SECRET"`

	ShippingFee      decimal.Decimal `env:"SHIPPING_FEE" envDefault:"30"`
	AdminEmail       string          `env:"ADMIN_EMAIL" envDefault:"admin123@gmail.com"`
	AdminPassword    string          `env:"ADMIN_PASSWORD" envDefault:"admin123"`
	PaymentCountdown time.Duration   `env:"PAYMENT_COUNTDOWN" envDefault:"6s"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envStorageBackend := cfg.StorageBackend
	envDatabaseURI := cfg.DatabaseURI
	envBadgerDir := cfg.BadgerDir
	envCatalogURL := cfg.CatalogURL
	envSessionSecret := cfg.SessionSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.StorageBackend, "s", "", "storage backend: memory, badger or postgres")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.BadgerDir, "b", "", "badger data directory")
	flag.StringVar(&cfg.CatalogURL, "c", "", "product catalog URL")
	flag.StringVar(&cfg.SessionSecret, "k", "storefront-secret", "session cookie signing key")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envStorageBackend != "" {
		cfg.StorageBackend = envStorageBackend
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBadgerDir != "" {
		cfg.BadgerDir = envBadgerDir
	}
	if envCatalogURL != "" {
		cfg.CatalogURL = envCatalogURL
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		switch {
		case cfg.DatabaseURI != "":
			cfg.StorageBackend = BackendPostgres
		case cfg.BadgerDir != "":
			cfg.StorageBackend = BackendBadger
		default:
			cfg.StorageBackend = BackendMemory
		}
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendBadger:
	case BackendPostgres:
		if cfg.DatabaseURI == "" {
			return nil, fmt.Errorf("storage backend %q requires a database URI", cfg.StorageBackend)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.ShippingFee.IsNegative() {
		return nil, fmt.Errorf("shipping fee must not be negative")
	}

	return cfg, nil
}
