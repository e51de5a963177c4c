// Package config holds the daemon's TOML configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents chatd.toml. Zero values fall back to the defaults
// applied by Normalize.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	DataDir    string `toml:"data_dir"`
	LogFile    string `toml:"log_file"`

	HistoryLimit    int `toml:"history_limit"`
	MaxHistoryLimit int `toml:"max_history_limit"`

	MaxAttachmentSize int64 `toml:"max_attachment_size"` // bytes

	TypingTTLMs int `toml:"typing_ttl_ms"`

	TypingRPS   float64 `toml:"typing_rps"`
	TypingBurst int     `toml:"typing_burst"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8480"
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(os.Getenv("HOME"), ".projectchat")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "chatd.log")
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.MaxHistoryLimit <= 0 {
		c.MaxHistoryLimit = 200
	}
	if c.MaxAttachmentSize <= 0 {
		c.MaxAttachmentSize = 25 << 20
	}
	if c.TypingTTLMs <= 0 {
		c.TypingTTLMs = 3000
	}
	if c.TypingRPS <= 0 {
		c.TypingRPS = 5
	}
	if c.TypingBurst <= 0 {
		c.TypingBurst = 10
	}
}

// TypingTTL returns the typing indicator lifetime as a duration.
func (c *Config) TypingTTL() time.Duration {
	return time.Duration(c.TypingTTLMs) * time.Millisecond
}

// Load reads config from the given path and applies defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
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
