package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// GeminiConfig holds settings specific to the Gemini provider.
type GeminiConfig struct {
	BaseURL string `yaml:"base_url" env:"FIRSTDAY_GEMINI_BASE_URL"`
}

// YandexConfig holds settings specific to the YandexGPT provider.
type YandexConfig struct {
	FolderID string `yaml:"folder_id" env:"FIRSTDAY_YANDEX_FOLDER_ID"`
	Endpoint string `yaml:"endpoint" env:"FIRSTDAY_YANDEX_ENDPOINT"`
}

// GatewayConfig selects and tunes the model provider.
type GatewayConfig struct {
	Provider        string       `yaml:"provider" env:"FIRSTDAY_GATEWAY_PROVIDER"`
	Model           string       `yaml:"model" env:"FIRSTDAY_GATEWAY_MODEL"`
	MaxOutputTokens int          `yaml:"max_output_tokens" env:"FIRSTDAY_GATEWAY_MAX_OUTPUT_TOKENS"`
	Temperature     float64      `yaml:"temperature" env:"FIRSTDAY_GATEWAY_TEMPERATURE"`
	Gemini          GeminiConfig `yaml:"gemini"`
	Yandex          YandexConfig `yaml:"yandex"`
}

// SessionConfig tunes session lifecycle behavior.
type SessionConfig struct {
	IdleTimeout string `yaml:"idle_timeout" env:"FIRSTDAY_SESSION_IDLE_TIMEOUT"`
}

// DefaultIdleTimeout is how long a session may sit without traffic before
// it is evicted.
const DefaultIdleTimeout = 1 * time.Hour

// GetIdleTimeout returns the parsed idle timeout duration.
// Falls back to DefaultIdleTimeout if not configured or invalid.
func (s *SessionConfig) GetIdleTimeout() time.Duration {
	if s.IdleTimeout == "" {
		return DefaultIdleTimeout
	}
	d, err := time.ParseDuration(s.IdleTimeout)
	if err != nil {
		return DefaultIdleTimeout
	}
	return d
}

type Config struct {
	Log struct {
		Level string `yaml:"level" env:"FIRSTDAY_LOG_LEVEL"`
	} `yaml:"log"`
	Server struct {
		ListenPort string `yaml:"listen_port" env:"FIRSTDAY_SERVER_PORT"`
		DebugMode  bool   `yaml:"debug_mode" env:"FIRSTDAY_SERVER_DEBUG"`
		Auth       struct {
			Enabled  bool   `yaml:"enabled" env:"FIRSTDAY_AUTH_ENABLED"`
			Username string `yaml:"username" env:"FIRSTDAY_AUTH_USERNAME"`
			Password string `yaml:"password" env:"FIRSTDAY_AUTH_PASSWORD"`
		} `yaml:"auth"`
	} `yaml:"server"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Session  SessionConfig `yaml:"session"`
	Database struct {
		Path string `yaml:"path" env:"FIRSTDAY_DATABASE_PATH"`
	} `yaml:"database"`
}

// Load loads configuration from the specified file path.
// It first loads the embedded default configuration, then merges the user config on top.
// Finally, it overrides values with environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			slog.Warn("config file not found, using defaults", "path", path)
		} else {
			expandedData := []byte(os.ExpandEnv(string(data)))

			// Unmarshal user config on top of defaults (merges non-zero values)
			if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
				return nil, err
			}
			slog.Info("loaded user config", "path", path)
		}
	}

	// Override with environment variables using cleanenv
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads the embedded default configuration.
func LoadDefault() (*Config, error) {
	return Load("")
}

// DefaultConfigBytes returns the raw embedded default configuration.
// Useful for generating example config files.
func DefaultConfigBytes() []byte {
	return defaultConfig
}

// Validate checks configuration for required fields and valid ranges.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	switch c.Gateway.Provider {
	case "gemini":
		if c.Gateway.Gemini.BaseURL == "" {
			errs = append(errs, errors.New("gateway.gemini.base_url is required"))
		}
	case "yandexgpt":
		if c.Gateway.Yandex.FolderID == "" {
			errs = append(errs, errors.New("gateway.yandex.folder_id is required when gateway.provider is yandexgpt"))
		}
		if c.Gateway.Yandex.Endpoint == "" {
			errs = append(errs, errors.New("gateway.yandex.endpoint is required when gateway.provider is yandexgpt"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.provider must be gemini or yandexgpt, got %q", c.Gateway.Provider))
	}

	if c.Gateway.Model == "" {
		errs = append(errs, errors.New("gateway.model is required"))
	}
	if c.Gateway.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("gateway.max_output_tokens must be positive, got %d", c.Gateway.MaxOutputTokens))
	}
	if c.Gateway.Temperature < 0 || c.Gateway.Temperature > 2 {
		errs = append(errs, fmt.Errorf("gateway.temperature must be between 0 and 2, got %f", c.Gateway.Temperature))
	}

	if c.Server.Auth.Enabled && c.Server.Auth.Username == "" {
		errs = append(errs, errors.New("server.auth.username is required when server.auth.enabled is true"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
