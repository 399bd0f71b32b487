package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig holds the settings of a designer session talking to a template server.
type ClientConfig struct {
	ServerURL      string
	GuildID        string
	Token          string
	RequestTimeout time.Duration
	LayoutDebounce time.Duration
	Logger         LoggerConfig
}

// LoadClient reads the DESIGNER_* environment (optionally .env).
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load(".env")

	cfg := &ClientConfig{
		ServerURL:      strings.TrimRight(getString("DESIGNER_SERVER_URL", "http://localhost:8080"), "/"),
		GuildID:        getString("DESIGNER_GUILD_ID", ""),
		Token:          getString("DESIGNER_TOKEN", ""),
		RequestTimeout: getDuration("DESIGNER_REQUEST_TIMEOUT", 10*time.Second),
		LayoutDebounce: getDuration("DESIGNER_LAYOUT_DEBOUNCE", 800*time.Millisecond),
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "warn"),
			Encoding: getString("LOG_ENCODING", "console"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate reports missing required client settings.
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("designer server url is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("designer request timeout must be positive")
	}
	return nil
}
