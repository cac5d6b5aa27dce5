package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the application.
type Config struct {
	MetricsPort int    `json:"metrics_port" validate:"gte=0"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	NumWorkers  int    `json:"num_workers" validate:"min=1"`
	DBPath      string `json:"db_path" validate:"required"`

	Telegram struct {
		BotToken string `json:"bot_token" validate:"required"`
	} `json:"telegram"`

	Ooredoo struct {
		BaseURL        string   `json:"base_url" validate:"required,url"`
		RequestTimeout Duration `json:"request_timeout" validate:"min=1s"`
	} `json:"ooredoo"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns a configuration with working defaults for every field
// that is not a secret.
func Default() *Config {
	cfg := &Config{
		MetricsPort: 9090,
		LogLevel:    "info",
		NumWorkers:  4,
		DBPath:      "botusers.db",
	}
	cfg.Ooredoo.BaseURL = "https://apis.ooredoo.dz"
	cfg.Ooredoo.RequestTimeout = Duration{30 * time.Second}
	return cfg
}

// Load reads configuration from a file and overrides with environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}

	if v := os.Getenv("OOREDOO_BASE_URL"); v != "" {
		c.Ooredoo.BaseURL = v
	}
	if v := os.Getenv("OOREDOO_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing OOREDOO_REQUEST_TIMEOUT: %w", err)
		}
		c.Ooredoo.RequestTimeout = Duration{d}
	}

	if v := os.Getenv("METRICS_PORT"); v != "" {
		var err error
		c.MetricsPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing METRICS_PORT: %w", err)
		}
	}

	if v := os.Getenv("NUM_WORKERS"); v != "" {
		var err error
		c.NumWorkers, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing NUM_WORKERS: %w", err)
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}

	return nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
