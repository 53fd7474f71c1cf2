// Package config loads the daemon configuration from a YAML file with
// environment variable expansion and overrides. Secrets (API keys) are never
// read from the file body unexpanded; they come from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Model    ModelConfig    `yaml:"model"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WorkflowConfig struct {
	// MaxIterations caps the number of worker executions per run.
	MaxIterations int `yaml:"max_iterations"`
	// MessageWindow is the number of trailing messages kept in state.
	MessageWindow int `yaml:"message_window"`
	// CompletionWindow is the number of trailing messages scanned for
	// completion markers.
	CompletionWindow int `yaml:"completion_window"`
}

type ModelConfig struct {
	// Provider selects the backend: openai, anthropic, or mock.
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	// APIKey is taken from OPENAI_API_KEY / ANTHROPIC_API_KEY; the file may
	// reference them via ${VAR} expansion but should not inline secrets.
	APIKey string `yaml:"api_key"`
}

type SecurityConfig struct {
	// ForbiddenModules overrides the default code-safety denylist when
	// non-empty.
	ForbiddenModules []string `yaml:"forbidden_modules"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Workflow: WorkflowConfig{
			MaxIterations:    10,
			MessageWindow:    8,
			CompletionWindow: 5,
		},
		Model: ModelConfig{
			Provider:    "openai",
			Name:        "gpt-4o",
			Temperature: 0.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file named by DATATEAM_CONFIG (default
// config/datateam.yaml), expands ${VAR} references, and applies environment
// overrides. A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("DATATEAM_CONFIG")
	if path == "" {
		path = "config/datateam.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("API_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATATEAM_MODEL_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("DATATEAM_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// Validate reports configuration errors that would prevent startup. The mock
// provider needs no key; real providers do.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model provider %q requires an API key", c.Model.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Workflow.MaxIterations < 1 {
		return fmt.Errorf("workflow.max_iterations must be at least 1")
	}
	if c.Workflow.MessageWindow < 1 {
		return fmt.Errorf("workflow.message_window must be at least 1")
	}
	return nil
}
