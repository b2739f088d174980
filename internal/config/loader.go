package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from the default file and environment variables.
func Load() (*Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFrom loads configuration from path, then applies environment
// overrides. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	// Override with environment variables
	loadFromEnv(cfg)

	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "adorable", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "adorable", "config.yaml")
}

func defaultStorePath() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "adorable", "adorable.db")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "adorable.db"
	}
	return filepath.Join(homeDir, ".local", "share", "adorable", "adorable.db")
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		cfg.API.OpenRouterKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.API.GeminiKey = key
	}
	if key := os.Getenv("OLLAMA_API_KEY"); key != "" {
		cfg.API.OllamaKey = key
	}

	if provider := os.Getenv("ADORABLE_PROVIDER"); provider != "" {
		cfg.API.Provider = provider
	}
	if model := os.Getenv("ADORABLE_MODEL"); model != "" {
		cfg.Model.Name = model
	}

	if driver := os.Getenv("ADORABLE_SANDBOX_DRIVER"); driver != "" {
		cfg.Sandbox.Driver = driver
	}
	if host := os.Getenv("ADORABLE_SANDBOX_HOST"); host != "" {
		cfg.Sandbox.Host = host
	}
	if user := os.Getenv("ADORABLE_SANDBOX_USER"); user != "" {
		cfg.Sandbox.User = user
	}
	if key := os.Getenv("ADORABLE_SANDBOX_KEY"); key != "" {
		cfg.Sandbox.KeyPath = key
	}

	if path := os.Getenv("ADORABLE_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if addr := os.Getenv("ADORABLE_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("ADORABLE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if n, err := strconv.Atoi(os.Getenv("ADORABLE_FIX_ATTEMPTS")); err == nil && n >= 0 {
		cfg.Agent.FixAttempts = n
	}
}

// Validate validates the configuration needed to run the pipeline.
func (c *Config) Validate() error {
	switch c.API.Provider {
	case "openrouter", "gemini":
		if c.API.ActiveKey() == "" {
			return ErrMissingAuth
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown provider %q", c.API.Provider)
	}

	switch c.Sandbox.Driver {
	case "", "ssh":
		if c.Sandbox.Host == "" {
			return ErrMissingSandbox
		}
	case "memory":
	default:
		return fmt.Errorf("unknown sandbox driver %q", c.Sandbox.Driver)
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.FixAttempts < 0 {
		return fmt.Errorf("agent.fix_attempts must not be negative, got %d", c.Agent.FixAttempts)
	}
	return nil
}

// Error types for configuration validation.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth    ConfigError = "missing authentication: set OPENROUTER_API_KEY or GEMINI_API_KEY, or switch provider to ollama"
	ErrMissingSandbox ConfigError = "missing sandbox host: set sandbox.host in the config file or ADORABLE_SANDBOX_HOST"
)

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}
