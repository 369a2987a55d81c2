package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	DBFile      string
	AdminAddr   string
	APIAddr     string
	BaseURL     string
	UploadsPath string
	AuthSecret  string
	TokenExpiry time.Duration
	EditWindow  time.Duration
	LogLevel    slog.Level
	LogFormat   string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_EXPIRY: %w", err)
	}

	editWindow, err := time.ParseDuration(getEnv("EDIT_WINDOW", "15m"))
	if err != nil {
		return nil, fmt.Errorf("EDIT_WINDOW: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("DEVCOLLAB_DB", "devcollab.db"),
		AdminAddr:       getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		UploadsPath:     getEnv("UPLOADS_PATH", "uploads"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		TokenExpiry:     tokenExpiry,
		EditWindow:      editWindow,
		LogLevel:        level,
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.EditWindow <= 0 {
		return fmt.Errorf("EDIT_WINDOW must be greater than 0")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

// PushEnabled reports whether web push keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
