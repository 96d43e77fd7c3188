package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration settings
type Config struct {
	Control struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"control"`
	JWT struct {
		Secret      string        `json:"secret"`
		TokenExpiry time.Duration `json:"token_expiry"`
	} `json:"jwt"`
	Remote struct {
		APIBase   string `json:"api_base"`
		StreamURL string `json:"stream_url"`
	} `json:"remote"`
	Stream struct {
		BaseDelay time.Duration `json:"base_delay"`
		MaxDelay  time.Duration `json:"max_delay"`
	} `json:"stream"`
	Credentials struct {
		// Backend is "sqlite", "file" or "auto". Auto prefers sqlite and
		// falls back to the plain file store.
		Backend string `json:"backend"`
		Path    string `json:"path"`
		// AtRestKey, when 32 bytes, seals the API key in the file backend.
		AtRestKey string `json:"at_rest_key"`
	} `json:"credentials"`
	Logging struct {
		Level string `json:"level"`
		Path  string `json:"path"`
	} `json:"logging"`
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	// Validate path to prevent directory traversal
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("config path must be absolute")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config file error: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("config path is not a regular file")
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := DefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.Control.Host = "127.0.0.1"
	config.Control.Port = 8421
	config.JWT.Secret = "change-me" // overridden by any real deployment
	config.JWT.TokenExpiry = 24 * time.Hour
	config.Remote.APIBase = "https://api.pushbullet.com/v2"
	config.Remote.StreamURL = "wss://stream.pushbullet.com/websocket"
	config.Stream.BaseDelay = 5 * time.Second
	config.Stream.MaxDelay = 60 * time.Second
	config.Credentials.Backend = "auto"
	config.Credentials.Path = "pushbridge-creds"
	config.Logging.Level = "info"
	config.Logging.Path = ""
	return config
}
