package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	DBMaxConns          int
	DBMinConns          int
	Port                string
	Timezone            string
	// MaxConnectionsPerMember caps the open websocket sessions of one team member.
	MaxConnectionsPerMember int
	// IdleEnabled starts IMAP IDLE ingestion for connected members.
	IdleEnabled bool
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration
}

func NewConfig() (*Config, error) {
	env := os.Getenv("FIELDINBOX_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("FIELDINBOX_ENCRYPTION_KEY_BASE64"),
		DBHost:              getEnvOrDefault("FIELDINBOX_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("FIELDINBOX_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("FIELDINBOX_DB_USER", "fieldinbox"),
		DBPassword:          os.Getenv("FIELDINBOX_DB_PASSWORD"),
		DBName:              getEnvOrDefault("FIELDINBOX_DB_NAME", "fieldinbox"),
		DBSSLMode:           getEnvOrDefault("FIELDINBOX_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
	}

	var err error
	if config.DBMaxConns, err = getIntOrDefault("FIELDINBOX_DB_MAX_CONNS", 25); err != nil {
		return nil, err
	}
	if config.DBMinConns, err = getIntOrDefault("FIELDINBOX_DB_MIN_CONNS", 2); err != nil {
		return nil, err
	}
	if config.MaxConnectionsPerMember, err = getIntOrDefault("FIELDINBOX_MAX_CONNECTIONS_PER_MEMBER", 10); err != nil {
		return nil, err
	}
	if config.IdleEnabled, err = getBoolOrDefault("FIELDINBOX_IMAP_IDLE", true); err != nil {
		return nil, err
	}
	shutdownSeconds, err := getIntOrDefault("FIELDINBOX_SHUTDOWN_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	config.ShutdownTimeout = time.Duration(shutdownSeconds) * time.Second

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("FIELDINBOX_ENCRYPTION_KEY_BASE64 is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKeyBase64)
	if err != nil {
		return fmt.Errorf("FIELDINBOX_ENCRYPTION_KEY_BASE64 is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("FIELDINBOX_ENCRYPTION_KEY_BASE64 must decode to 32 bytes, got %d", len(key))
	}

	if c.DBPassword == "" {
		return fmt.Errorf("FIELDINBOX_DB_PASSWORD is required")
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("FIELDINBOX_DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("FIELDINBOX_DB_MIN_CONNS must be between 0 and %d, got %d", c.DBMaxConns, c.DBMinConns)
	}

	return nil
}

// GetDatabaseURL returns the connection URL with credentials escaped.
func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}
