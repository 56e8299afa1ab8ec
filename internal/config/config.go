package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/hirelanka/billing-service/internal/payhere"
)

type AppConfig struct {
	Port string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MigrationsPath  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	PayHere  payhere.Config
}

// NewConfig reads configuration from the environment, loading an optional
// .env file first. Merchant credentials and database coordinates are
// required; everything else has a default.
func NewConfig() (*Config, error) {
	// Missing .env is fine in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")

	var err error
	if cfg.Postgres.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Port, err = requireEnv("DB_PORT"); err != nil {
		return nil, err
	}
	if cfg.Postgres.User, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")
	cfg.Postgres.MaxConns = int32(getEnvInt("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(getEnvInt("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = time.Duration(getEnvInt("DB_MAX_CONN_LIFETIME_MINUTES", 30)) * time.Minute

	if cfg.PayHere.MerchantID, err = requireEnv("PAYHERE_MERCHANT_ID"); err != nil {
		return nil, err
	}
	if cfg.PayHere.MerchantSecret, err = requireEnv("PAYHERE_MERCHANT_SECRET"); err != nil {
		return nil, err
	}

	baseURL := getEnv("APP_BASE_URL", "http://localhost:3000")
	cfg.PayHere.ReturnURL = getEnv("PAYHERE_RETURN_URL", baseURL+"/payment/success")
	cfg.PayHere.CancelURL = getEnv("PAYHERE_CANCEL_URL", baseURL+"/payment/cancel")
	cfg.PayHere.NotifyURL = getEnv("PAYHERE_NOTIFY_URL", baseURL+"/api/payment/notify")
	cfg.PayHere.Currency = getEnv("PAYHERE_CURRENCY", "LKR")
	cfg.PayHere.Sandbox = getEnvBool("PAYHERE_SANDBOX", true)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: %s is required", key)
	}
	return v, nil
}
