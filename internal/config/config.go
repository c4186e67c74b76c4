package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SocketPath    string `yaml:"socket_path"`
	DBPath        string `yaml:"db_path"`
	ProviderID    string `yaml:"provider_id"`
	ProviderLabel string `yaml:"provider_label"`
	UserID        int    `yaml:"user_id"`
	Enabled       bool   `yaml:"enabled"`
	HistorySize   int    `yaml:"history_size"`
}

func DefaultConfig() Config {
	return Config{
		SocketPath:  defaultSocketPath(),
		DBPath:      defaultDBPath(),
		Enabled:     true,
		HistorySize: 64,
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error: the defaults stand.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "fillmgr", "fillmgrd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fillmgrd.sock"
	}
	return filepath.Join(home, ".local", "state", "fillmgr", "fillmgrd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fillmgr.db"
	}
	return filepath.Join(home, ".local", "state", "fillmgr", "history.db")
}
