package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load loads configuration from the given path (or the default location when
// path is empty), then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPath()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if p := os.Getenv("PILOT_CONFIG"); p != "" {
		return p
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "pilot", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "pilot", "config.yaml")
}

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}

// loadFromFile loads configuration from a YAML file. A profile named in the
// file is applied first so explicit values in the same file win over it.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Parse(cfg, data)
}

// Parse applies YAML data on top of cfg.
func Parse(cfg *Config, data []byte) error {
	expanded := []byte(os.ExpandEnv(string(data)))

	var head struct {
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(expanded, &head); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if head.Profile != "" && !cfg.ApplyProfile(head.Profile) {
		return ConfigError(fmt.Sprintf("unknown profile %q", head.Profile))
	}

	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if profile := os.Getenv("PILOT_PROFILE"); profile != "" {
		cfg.ApplyProfile(profile)
	}
	if level := os.Getenv("PILOT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if provider := os.Getenv("PILOT_SUMMARIZER"); provider != "" {
		cfg.Summarizer.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("PILOT_SUMMARIZER_MODEL"); model != "" {
		cfg.Summarizer.Model = model
	}
	if key := os.Getenv("PILOT_API_KEY"); key != "" {
		cfg.Summarizer.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.Summarizer.APIKey == "" {
		cfg.Summarizer.APIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Summarizer.OllamaBaseURL = host
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ConfigError(fmt.Sprintf("invalid %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return err
	}
	if c.Summarizer.Provider == "gemini" && c.Summarizer.APIKey == "" {
		return ErrMissingAuth
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth ConfigError = "missing authentication: set GEMINI_API_KEY or PILOT_API_KEY for the gemini summarizer"
)
