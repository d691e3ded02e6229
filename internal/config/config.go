// Package config resolves the ferry daemon configuration from a JSON file
// plus environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the resolved daemon configuration.
type Config struct {
	// Listen is the host:port the server binds.
	Listen string `json:"listen"`
	// DataDir holds uploads, downloads, and the state database.
	DataDir string `json:"data_dir"`
	// Shell is the program backing VM terminals and command execution.
	Shell string `json:"shell"`
	// ChatModel is the Anthropic model used for team chat.
	ChatModel string `json:"chat_model"`
	// Transcriber is the external command invoked to transcribe audio
	// uploads; the audio path is appended as the last argument and the
	// transcript file path is read from stdout. Empty disables
	// transcription.
	Transcriber []string `json:"transcriber"`
	// ExecTimeoutSeconds is the default vm_execute timeout.
	ExecTimeoutSeconds int `json:"exec_timeout_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := ".ferry"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".ferry")
	}
	return &Config{
		Listen:             "localhost:8765",
		DataDir:            dataDir,
		Shell:              "/bin/bash",
		ChatModel:          "claude-sonnet-4-20250514",
		ExecTimeoutSeconds: 60,
	}
}

// Load resolves configuration with the following priority:
// 1. Environment variables (FERRY_LISTEN, FERRY_DATA_DIR, FERRY_SHELL,
// FERRY_CHAT_MODEL, FERRY_TRANSCRIBER) — highest.
// 2. The JSON file at path, when path is non-empty and the file exists.
// 3. Built-in defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file falls through to defaults.
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("FERRY_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("FERRY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FERRY_SHELL"); v != "" {
		cfg.Shell = v
	}
	if v := os.Getenv("FERRY_CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv("FERRY_TRANSCRIBER"); v != "" {
		cfg.Transcriber = strings.Fields(v)
	}

	if cfg.Listen == "" {
		return nil, fmt.Errorf("listen address must not be empty")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory must not be empty")
	}

	return cfg, nil
}

// UploadDir returns the upload root for a user.
func (c *Config) UploadDir(user string) string {
	return filepath.Join(c.DataDir, "uploads", user)
}

// DownloadDir returns the default download destination.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.DataDir, "downloads")
}
