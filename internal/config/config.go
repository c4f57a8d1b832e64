// Package config handles moneypenny configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/moneypenny/config.yaml,
// /etc/moneypenny/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "moneypenny", "config.yaml"))
	}

	paths = append(paths, "/etc/moneypenny/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all moneypenny configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Store    StoreConfig    `yaml:"store"`
	Model    ModelConfig    `yaml:"model"`
	Telegram TelegramConfig `yaml:"telegram"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// StoreConfig defines the remote data store connection.
// The store speaks the PostgREST wire format; URL is the REST root
// (e.g. https://xyz.supabase.co/rest/v1) and Key is the service key
// sent as both apikey and bearer token.
type StoreConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// ModelConfig defines the chat-completion provider.
type ModelConfig struct {
	BaseURL string `yaml:"base_url"` // OpenAI-compatible API root
	APIKey  string `yaml:"api_key"`
	Name    string `yaml:"name"` // model identifier, e.g. gpt-4o-mini
}

// TelegramConfig defines the chat transport settings.
type TelegramConfig struct {
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets stay out of the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Model: ModelConfig{
			BaseURL: "https://api.openai.com/v1",
			Name:    "gpt-4o-mini",
		},
	}
}

// Validate reports configuration problems that make startup impossible.
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	if c.Store.Key == "" {
		return fmt.Errorf("store.key is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	return nil
}
