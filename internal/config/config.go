package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "lcrbench/libs/config"
)

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"LCR_HTTP_PORT"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"LCR_POSTGRES_DSN"`
}

// RedisConfig holds recent-result cache settings. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"LCR_REDIS_ADDR"`
	Password string        `yaml:"password" env:"LCR_REDIS_PASSWORD"`
	TTL      time.Duration `yaml:"ttl" env:"LCR_REDIS_TTL"`
}

// AuthConfig holds operator token settings.
type AuthConfig struct {
	Secret   string        `yaml:"secret" env:"LCR_AUTH_SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"LCR_AUTH_TOKEN_TTL"`
}

// InstrumentConfig holds meter defaults an operator can override per run.
type InstrumentConfig struct {
	Resource    string        `yaml:"resource" env:"LCR_INSTRUMENT_RESOURCE"`
	Timeout     time.Duration `yaml:"timeout" env:"LCR_INSTRUMENT_TIMEOUT"`
	FrequencyHz float64       `yaml:"frequency_hz" env:"LCR_INSTRUMENT_FREQUENCY_HZ"`
	VoltageV    float64       `yaml:"voltage_v" env:"LCR_INSTRUMENT_VOLTAGE_V"`
	Retries     int           `yaml:"retries" env:"LCR_INSTRUMENT_RETRIES"`

	// Settle/acquisition delays, empirically tuned per instrument model.
	ModeSettle      time.Duration `yaml:"mode_settle" env:"LCR_INSTRUMENT_MODE_SETTLE"`
	ConfigureSettle time.Duration `yaml:"configure_settle" env:"LCR_INSTRUMENT_CONFIGURE_SETTLE"`
	Acquisition     time.Duration `yaml:"acquisition" env:"LCR_INSTRUMENT_ACQUISITION"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" env:"LCR_INSTRUMENT_RETRY_BACKOFF"`
}

// WorkspaceConfig holds the document workspace mirror settings.
type WorkspaceConfig struct {
	BaseURL    string `yaml:"base_url" env:"LCR_WORKSPACE_BASE_URL"`
	Token      string `yaml:"token" env:"LCR_WORKSPACE_TOKEN"`
	DatabaseID string `yaml:"database_id" env:"LCR_WORKSPACE_DATABASE_ID"`
}

// SheetsConfig holds the spreadsheet mirror settings.
type SheetsConfig struct {
	BaseURL       string `yaml:"base_url" env:"LCR_SHEETS_BASE_URL"`
	SpreadsheetID string `yaml:"spreadsheet_id" env:"LCR_SHEETS_SPREADSHEET_ID"`
	Range         string `yaml:"range" env:"LCR_SHEETS_RANGE"`
}

// Config defines the bench service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Sheets     SheetsConfig     `yaml:"sheets"`
	Version    string           `yaml:"version" env:"LCR_APP_VERSION"`
}

// Load configuration using the shared helper.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: "8080"},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Instrument: InstrumentConfig{
			Resource:        "TCPIP0::192.168.1.50::5025::SOCKET",
			Timeout:         10 * time.Second,
			FrequencyHz:     1000,
			VoltageV:        1.0,
			Retries:         3,
			ModeSettle:      100 * time.Millisecond,
			ConfigureSettle: 200 * time.Millisecond,
			Acquisition:     500 * time.Millisecond,
			RetryBackoff:    time.Second,
		},
		Sheets: SheetsConfig{
			Range: "LCR!A1:F",
		},
		Version: "1.0.0",
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Auth.Secret) == "" {
		return nil, errors.New("config: auth secret required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
