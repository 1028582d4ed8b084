// Package config reads the per-profile ~/.bms-chat/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration. Zero-valued tunables fall back to the
// reference defaults at wiring time.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	Server     ServerConfig     `toml:"server"`
	Connection ConnectionConfig `toml:"connection"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
}

// ServerConfig locates the backend and the identity to act as.
type ServerConfig struct {
	// BaseURL is the REST root, e.g. https://dashboard.example.com/api.
	BaseURL string `toml:"base_url"`
	// RealtimeURL is the persistent-connection endpoint. Empty derives
	// <base_url>/ws.
	RealtimeURL string `toml:"realtime_url"`
	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `toml:"token_env"`
	// UserID is the local user the core acts as.
	UserID string `toml:"user_id"`
}

// ConnectionConfig tunes heartbeat, backoff and queueing.
type ConnectionConfig struct {
	PingIntervalSeconds int `toml:"ping_interval_seconds"`
	PongTimeoutSeconds  int `toml:"pong_timeout_seconds"`
	BackoffBaseMillis   int `toml:"backoff_base_ms"`
	BackoffCapMillis    int `toml:"backoff_cap_ms"`
	MaxAttempts         int `toml:"max_attempts"`
	QueueCap            int `toml:"queue_cap"`
}

// ReconcileConfig tunes optimistic-message matching.
type ReconcileConfig struct {
	DedupWindowSeconds int `toml:"dedup_window_seconds"`
}

// RealtimeEndpoint resolves the realtime endpoint, deriving it from the base
// URL when not set explicitly.
func (s ServerConfig) RealtimeEndpoint() string {
	if s.RealtimeURL != "" {
		return s.RealtimeURL
	}
	return s.BaseURL + "/ws"
}

// Load reads config from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the core cannot run without.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.UserID == "" {
		return fmt.Errorf("server.user_id is required")
	}
	if c.Server.TokenEnv == "" {
		return fmt.Errorf("server.token_env is required")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
