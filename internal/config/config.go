// Package config loads server configuration from an optional YAML file,
// with environment variables taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PanelConfig holds credentials for the primary remote proxy panel.
type PanelConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the full server configuration.
type Config struct {
	Addr        string      `yaml:"addr"`
	DBType      string      `yaml:"db_type"`
	DBPath      string      `yaml:"db_path"`
	DatabaseURL string      `yaml:"database_url"`
	PublicHost  string      `yaml:"public_host"`
	LogLevel    string      `yaml:"log_level"`
	Panel       PanelConfig `yaml:"panel"`
}

// Load reads the YAML file at path (if it exists) and applies env overrides.
// An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Config{
		Addr:     ":8080",
		DBType:   "sqlite",
		DBPath:   "vpn-backend.db",
		LogLevel: "info",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg.Addr, "ADDR")
	applyEnv(&cfg.DBType, "DB_TYPE")
	applyEnv(&cfg.DBPath, "DB_PATH")
	applyEnv(&cfg.DatabaseURL, "DATABASE_URL")
	applyEnv(&cfg.PublicHost, "PUBLIC_HOST")
	applyEnv(&cfg.LogLevel, "LOG_LEVEL")
	applyEnv(&cfg.Panel.URL, "PANEL_URL")
	applyEnv(&cfg.Panel.Username, "PANEL_USERNAME")
	applyEnv(&cfg.Panel.Password, "PANEL_PASSWORD")

	cfg.Panel.URL = strings.TrimRight(cfg.Panel.URL, "/")
	return cfg, nil
}

func applyEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
