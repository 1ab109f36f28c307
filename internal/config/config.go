// Package config loads vexmq's YAML configuration file, grounded in
// the teacher's inline Config/Server structs in cmd/goqtt/main.go but
// broken out into its own package and extended with the listeners and
// storage backends the teacher's config never had to describe.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of config.yml.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Server    Server    `yaml:"server"`
	WebSocket WebSocket `yaml:"websocket"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Store     Store     `yaml:"store"`
	Auth      Auth      `yaml:"auth"`
	Logging   Logging   `yaml:"logging"`
	Admin     Admin     `yaml:"admin"`
}

// Admin configures the broker's internal introspection endpoint, used
// by cmd/vexmqctl. An empty Addr disables it.
type Admin struct {
	Addr string `yaml:"addr"`
}

// Server configures the plain TCP MQTT listener.
type Server struct {
	Port           string `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
}

// WebSocket configures the optional MQTT-over-WebSocket listener; an
// empty Port disables it.
type WebSocket struct {
	Port string `yaml:"port"`
	Path string `yaml:"path"`
}

// RateLimit bounds the inbound byte rate the transport will accept
// from any single connection, per spec.md's "bound the cost of a
// single misbehaving client" goal.
type RateLimit struct {
	BytesPerSecond int64 `yaml:"bytes_per_second"`
	Burst          int64 `yaml:"burst"`
}

// Store selects and configures the message store backend. Backend is
// "memory" or "sqlite"; sessions are always kept in memory. Path is
// the sqlite database file, opened when Backend or Auth.Mode is
// "sqlite".
type Store struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Auth configures the broker's access-control policy. Mode is one of
// "allow-all", "single-topic", "memory", or "sqlite" (Authenticator
// backed by the Store.Path database); any other value is treated as
// "allow-all". SingleTopicFilter only applies to "single-topic".
type Auth struct {
	Mode             string `yaml:"mode"`
	SingleTopicFilter string `yaml:"single_topic_filter"`
}

// Logging configures internal/logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Retry configures the broker's QoS 1/2 retransmission schedule; it is
// not loaded from YAML today but lives alongside Config so a future
// config file key can extend it without another package.
type Retry struct {
	Min        time.Duration
	Max        time.Duration
	MaxRetries int
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = 1000
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "allow-all"
	}
	if c.RateLimit.BytesPerSecond == 0 {
		c.RateLimit.BytesPerSecond = 1 << 20 // 1 MiB/s
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.BytesPerSecond
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
