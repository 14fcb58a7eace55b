// Package config handles configuration loading, validation, and persistence
// for the mcwatch monitor.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/energizer-project/mcwatch/internal/events"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultMQTTPort   = 8883
)

// Config is the root configuration structure for mcwatch.
type Config struct {
	mu   sync.RWMutex
	path string

	Servers []ServerConfig `json:"servers" yaml:"servers"`
	Monitor MonitorConfig  `json:"monitor" yaml:"monitor"`
	API     APIConfig      `json:"api" yaml:"api"`
	MQTT    MQTTConfig     `json:"mqtt" yaml:"mqtt"`
	Discord DiscordConfig  `json:"discord" yaml:"discord"`
	Journal JournalConfig  `json:"journal" yaml:"journal"`
	Logging LoggingConfig  `json:"logging" yaml:"logging"`

	Messages events.Messages `json:"messages" yaml:"messages"`
}

// ServerConfig is one monitored endpoint. Nil notify flags mean enabled.
type ServerConfig struct {
	Label        string `json:"label" yaml:"label"`
	Address      string `json:"address" yaml:"address"`
	ForceNew     bool   `json:"force_new,omitempty" yaml:"force_new,omitempty"`
	OnlineStatus *bool  `json:"online_status,omitempty" yaml:"online_status,omitempty"`
	Count        *bool  `json:"count,omitempty" yaml:"count,omitempty"`
	Names        *bool  `json:"names,omitempty" yaml:"names,omitempty"`
}

// Notify resolves the notify flags, defaulting each to true.
func (s ServerConfig) Notify() (onlineStatus, count, names bool) {
	return boolOr(s.OnlineStatus, true), boolOr(s.Count, true), boolOr(s.Names, true)
}

// MonitorConfig holds probe and update loop settings.
type MonitorConfig struct {
	IntervalSeconds int    `json:"interval_seconds" yaml:"interval_seconds"`
	TimeoutMs       int    `json:"timeout_ms" yaml:"timeout_ms"`
	Retries         int    `json:"retries" yaml:"retries"`
	RetryDelayMs    int    `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	RetentionHours  int    `json:"retention_hours" yaml:"retention_hours"`
	Parallelism     int    `json:"parallelism" yaml:"parallelism"`
	Protocol        string `json:"protocol" yaml:"protocol"`
	TimedPing       bool   `json:"timed_ping" yaml:"timed_ping"`
	ProtocolVersion int    `json:"protocol_version" yaml:"protocol_version"`
	QueueSize       int    `json:"queue_size" yaml:"queue_size"`
}

// Interval is the auto-update period.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Timeout is the overall budget for one probe including retries.
func (m MonitorConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// RetryDelay is the pause between failed attempts.
func (m MonitorConfig) RetryDelay() time.Duration {
	return time.Duration(m.RetryDelayMs) * time.Millisecond
}

// Retention is how long snapshots are kept.
func (m MonitorConfig) Retention() time.Duration {
	return time.Duration(m.RetentionHours) * time.Hour
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Port           int      `json:"port" yaml:"port"`
	TLSCertFile    string   `json:"tls_cert_file,omitempty" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile     string   `json:"tls_key_file,omitempty" yaml:"tls_key_file,omitempty"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps" yaml:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BrokerURL   string `json:"broker_url" yaml:"broker_url"`
	Port        int    `json:"port" yaml:"port"`
	UseTLS      bool   `json:"use_tls" yaml:"use_tls"`
	CertFile    string `json:"cert_file" yaml:"cert_file"`
	KeyFile     string `json:"key_file" yaml:"key_file"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
}

// DiscordConfig holds Discord webhook settings.
type DiscordConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	Username   string `json:"username" yaml:"username"`
}

// JournalConfig holds the event journal settings.
type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	// RetentionDays is how long entries survive the daily cleanup.
	RetentionDays int `json:"retention_days" yaml:"retention_days"`
	// CleanupTime is the local "HH:MM" the cleanup runs at.
	CleanupTime string `json:"cleanup_time" yaml:"cleanup_time"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Directory  string `json:"directory" yaml:"directory"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	Console    bool   `json:"console" yaml:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Servers: []ServerConfig{},
		Monitor: MonitorConfig{
			IntervalSeconds: 30,
			TimeoutMs:       30000,
			Retries:         3,
			RetryDelayMs:    3000,
			RetentionHours:  6,
			Parallelism:     10,
			Protocol:        "modern",
			TimedPing:       true,
			ProtocolVersion: 753,
			QueueSize:       64,
		},
		API: APIConfig{
			Enabled:      true,
			Port:         DefaultAPIPort,
			RateLimitRPS: 100,
		},
		MQTT: MQTTConfig{
			Port:        DefaultMQTTPort,
			UseTLS:      true,
			TopicPrefix: "mcwatch",
		},
		Discord: DiscordConfig{
			Username: "mcwatch",
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          filepath.Join("data", "journal.db"),
			RetentionDays: 30,
			CleanupTime:   "04:00",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
		Messages: events.DefaultMessages(),
	}
}

// Load reads configuration from path. A missing file is created with the
// defaults. The format follows the extension: .yaml/.yml or JSON otherwise.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := unmarshal(configPath, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Int("servers", len(cfg.Servers)).Msg("configuration loaded")

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := marshal(c.path, c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// GetServers returns a copy of the configured servers.
func (c *Config) GetServers() []ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ServerConfig(nil), c.Servers...)
}

// AddServer appends a server entry.
func (c *Config) AddServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Servers = append(c.Servers, s)
}

// RemoveServer deletes every entry with label and reports whether any existed.
func (c *Config) RemoveServer(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.Servers[:0]
	removed := false
	for _, s := range c.Servers {
		if s.Label == label {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	c.Servers = kept
	return removed
}

// GetMonitor returns a copy of the monitor settings.
func (c *Config) GetMonitor() MonitorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Monitor
}

// IsFirstRun returns true if no server is configured yet.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Servers) == 0
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func marshal(path string, cfg *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
