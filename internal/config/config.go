// Package config provides YAML-based configuration loading for Drydock.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Drydock configuration, loaded from drydock.yaml.
// Values here are deployment-shaped (addresses, credentials, schedules);
// runtime policy (TTL, resource caps, assignment mode) lives in the
// DB-backed settings store.
type Config struct {
	ListenPort int            `yaml:"listen_port"`
	Database   DatabaseConfig `yaml:"database"`
	Auth       AuthConfig     `yaml:"auth"`
	Sweep      SweepConfig    `yaml:"sweep"`
	Notify     NotifyConfig   `yaml:"notify"`
	Catalog    CatalogConfig  `yaml:"catalog"`
}

// DatabaseConfig selects the registry backing store. Driver "mysql" is the
// production path; "sqlite" runs single-node from a local file.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"` // sqlite only
}

// AuthConfig holds the boundary tokens. Identity (user/team IDs) is injected
// by the surrounding platform via headers; these tokens only gate the API.
type AuthConfig struct {
	ParticipantToken string `yaml:"participant_token"`
	AdminToken       string `yaml:"admin_token"`
}

// SweepConfig controls the expiry sweep.
type SweepConfig struct {
	Schedule  string `yaml:"schedule"` // 5-field cron expression
	Reconcile bool   `yaml:"reconcile"`
}

// NotifyConfig enables chat notifications for lifecycle events. An adapter
// is active when its token is set.
type NotifyConfig struct {
	Discord DiscordConfig `yaml:"discord"`
	Slack   SlackConfig   `yaml:"slack"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackConfig holds Slack bot credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// CatalogConfig points at a GitHub repo holding challenge manifests.
type CatalogConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Ref   string `yaml:"ref"`
	Dir   string `yaml:"dir"`
	Token string `yaml:"token"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.ListenPort == 0 {
		c.ListenPort = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Database == "" {
			c.Database.Database = "drydock"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "drydock.db"
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "* * * * *"
	}
	if c.Catalog.Ref == "" {
		c.Catalog.Ref = "main"
	}
	if c.Catalog.Dir == "" {
		c.Catalog.Dir = "challenges"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not mysql or sqlite", c.Database.Driver))
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Sprintf("listen_port %d out of range", c.ListenPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
