package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything the server can't derive from flags: ServiceM8
// OAuth credentials, sync cadence and company identity. Loaded from an
// optional YAML file, then overridden by JOBDECK_* environment variables.
type Config struct {
	CompanyName  string `yaml:"company_name"`
	CompanyEmail string `yaml:"company_email"`

	ServiceM8 struct {
		AppID       string `yaml:"app_id"`
		AppSecret   string `yaml:"app_secret"`
		RedirectURI string `yaml:"redirect_uri"`
	} `yaml:"servicem8"`

	SyncIntervalMinutes int `yaml:"sync_interval_minutes"`
}

// SyncInterval returns the sync cadence, defaulting to 15 minutes.
func (c *Config) SyncInterval() time.Duration {
	if c.SyncIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// loadConfig reads the YAML config file if path is non-empty, then applies
// env overrides. A missing file with env credentials set is fine; a present
// but malformed file is a startup error.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("JOBDECK_COMPANY_NAME"); v != "" {
		cfg.CompanyName = v
	}
	if v := os.Getenv("JOBDECK_COMPANY_EMAIL"); v != "" {
		cfg.CompanyEmail = v
	}
	if v := os.Getenv("JOBDECK_SM8_APP_ID"); v != "" {
		cfg.ServiceM8.AppID = v
	}
	if v := os.Getenv("JOBDECK_SM8_APP_SECRET"); v != "" {
		cfg.ServiceM8.AppSecret = v
	}
	if v := os.Getenv("JOBDECK_SM8_REDIRECT_URI"); v != "" {
		cfg.ServiceM8.RedirectURI = v
	}

	if cfg.CompanyName == "" {
		cfg.CompanyName = "Your Company"
	}
	if cfg.CompanyEmail == "" {
		cfg.CompanyEmail = "admin@example.com"
	}
	return cfg, nil
}
