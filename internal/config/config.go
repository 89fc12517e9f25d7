// Package config provides configuration management for the routing daemon.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// ListenerMode defines the operational mode for a listener.
type ListenerMode string

const (
	// ModeSmtp is standard SMTP on port 25.
	ModeSmtp ListenerMode = "smtp"
	// ModeSmtps is implicit TLS on port 465.
	ModeSmtps ListenerMode = "smtps"
	// ModeLMTP speaks LMTP, for use behind an MTA.
	ModeLMTP ListenerMode = "lmtp"
	// ModeAlt is an alternative mode for custom configurations.
	ModeAlt ListenerMode = "alt"
)

// Notification target types.
const (
	TargetWebhook  = "webhook"
	TargetRedis    = "redis"
	TargetSES      = "ses"
	TargetTelegram = "telegram"
)

// Redis target modes.
const (
	RedisPublish = "publish"
	RedisList    = "list"
)

// FileConfig is the top-level wrapper for the shared configuration file.
// This allows mailrouted and msgstore to share a single config file.
type FileConfig struct {
	Mailrouted Config `toml:"mailrouted"`
}

// Config holds the complete daemon configuration.
type Config struct {
	Hostname  string           `toml:"hostname"`
	LogLevel  string           `toml:"log_level"`
	Listeners []ListenerConfig `toml:"listeners"`
	TLS       TLSConfig        `toml:"tls"`
	Limits    LimitsConfig     `toml:"limits"`
	Timeouts  TimeoutsConfig   `toml:"timeouts"`
	Metrics   MetricsConfig    `toml:"metrics"`
	Store     StoreConfig      `toml:"store"`
	Archive   ArchiveConfig    `toml:"archive"`
	DKIM      DKIMConfig       `toml:"dkim"`
	Notify    NotifyConfig     `toml:"notify"`

	// Settings holds static routing settings (key to JSON value). Values
	// stored in the database take precedence.
	Settings map[string]string `toml:"settings"`
}

// ListenerConfig defines settings for a single listener.
type ListenerConfig struct {
	Address string       `toml:"address"`
	Mode    ListenerMode `toml:"mode"`
}

// TLSConfig holds TLS certificate and version settings.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	MinVersion string `toml:"min_version"`
}

// LimitsConfig defines resource limits for the server.
type LimitsConfig struct {
	MaxMessageSize int `toml:"max_message_size"`
	MaxRecipients  int `toml:"max_recipients"`
}

// TimeoutsConfig defines timeout durations.
type TimeoutsConfig struct {
	Connection string `toml:"connection"`
	Command    string `toml:"command"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
	// HealthPath serves a probe that pings the routing store.
	HealthPath string `toml:"health_path"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ArchiveConfig enables a raw copy of every stored message in a msgstore
// backend, filed under the resolved address. Empty Type disables it.
type ArchiveConfig struct {
	Type     string            `toml:"type"`
	BasePath string            `toml:"base_path"`
	Options  map[string]string `toml:"options"`
}

// DKIMConfig controls signature verification of inbound mail.
type DKIMConfig struct {
	Enabled bool `toml:"enabled"`
}

// NotifyConfig lists the targets told about every stored message.
type NotifyConfig struct {
	Timeout string               `toml:"timeout"`
	Targets []NotifyTargetConfig `toml:"targets"`
}

// NotifyTargetConfig configures one notification target. Which fields apply
// depends on Type.
type NotifyTargetConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`

	// webhook; for telegram, an optional Bot API base URL
	URL     string            `toml:"url"`
	Headers map[string]string `toml:"headers"`

	// redis
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
	Mode     string `toml:"mode"`

	// ses; static credentials are optional and fall back to the default
	// AWS credential chain
	Region          string   `toml:"region"`
	Sender          string   `toml:"sender"`
	Recipients      []string `toml:"recipients"`
	AccessKeyID     string   `toml:"access_key_id"`
	SecretAccessKey string   `toml:"secret_access_key"`

	// telegram
	BotToken string   `toml:"bot_token"`
	ChatIDs  []string `toml:"chat_ids"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname: "localhost",
		LogLevel: "info",
		Listeners: []ListenerConfig{
			{Address: ":25", Mode: ModeSmtp},
		},
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Limits: LimitsConfig{
			MaxMessageSize: 26214400, // 25 MB
			MaxRecipients:  100,
		},
		Timeouts: TimeoutsConfig{
			Connection: "5m",
			Command:    "1m",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Address:    ":9100",
			Path:       "/metrics",
			HealthPath: "/healthz",
		},
		Store: StoreConfig{
			Path: "./mailroute.db",
		},
		Notify: NotifyConfig{
			Timeout: "10s",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if len(c.Listeners) == 0 {
		return errors.New("at least one listener is required")
	}

	for i, l := range c.Listeners {
		if l.Address == "" {
			return fmt.Errorf("listener %d: address is required", i)
		}
		if !isValidMode(l.Mode) {
			return fmt.Errorf("listener %d: invalid mode %q", i, l.Mode)
		}
		if l.Mode == ModeSmtps && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
			return fmt.Errorf("listener %d: smtps requires tls cert_file and key_file", i)
		}
	}

	if c.Limits.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}

	if c.Limits.MaxRecipients <= 0 {
		return errors.New("max_recipients must be positive")
	}

	if c.Timeouts.Connection != "" {
		if _, err := time.ParseDuration(c.Timeouts.Connection); err != nil {
			return fmt.Errorf("invalid connection timeout: %w", err)
		}
	}

	if c.Timeouts.Command != "" {
		if _, err := time.ParseDuration(c.Timeouts.Command); err != nil {
			return fmt.Errorf("invalid command timeout: %w", err)
		}
	}

	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	if c.Store.Path == "" {
		return errors.New("store path is required")
	}

	if c.Archive.Type != "" && c.Archive.BasePath == "" {
		return errors.New("archive base_path is required when archive type is set")
	}

	if c.Notify.Timeout != "" {
		if _, err := time.ParseDuration(c.Notify.Timeout); err != nil {
			return fmt.Errorf("invalid notify timeout: %w", err)
		}
	}

	for i, t := range c.Notify.Targets {
		if err := t.validate(); err != nil {
			return fmt.Errorf("notify target %d: %w", i, err)
		}
	}

	return nil
}

func (t *NotifyTargetConfig) validate() error {
	switch t.Type {
	case TargetWebhook:
		if t.URL == "" {
			return errors.New("webhook url is required")
		}
	case TargetRedis:
		if t.Address == "" {
			return errors.New("redis address is required")
		}
		if t.Channel == "" {
			return errors.New("redis channel is required")
		}
		switch t.Mode {
		case "", RedisPublish, RedisList:
		default:
			return fmt.Errorf("invalid redis mode %q (valid: publish, list)", t.Mode)
		}
	case TargetSES:
		if t.Region == "" || t.Sender == "" {
			return errors.New("ses region and sender are required")
		}
		if len(t.Recipients) == 0 {
			return errors.New("ses recipients are required")
		}
	case TargetTelegram:
		if t.BotToken == "" {
			return errors.New("telegram bot_token is required")
		}
		if len(t.ChatIDs) == 0 {
			return errors.New("telegram chat_ids are required")
		}
	default:
		return fmt.Errorf("invalid type %q (valid: webhook, redis, ses, telegram)", t.Type)
	}
	return nil
}

// DisplayName returns Name, or Type when no name is configured.
func (t *NotifyTargetConfig) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Type
}

// RedisMode returns the configured mode, defaulting to publish.
func (t *NotifyTargetConfig) RedisMode() string {
	if t.Mode == "" {
		return RedisPublish
	}
	return t.Mode
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum TLS version.
// Returns tls.VersionTLS12 if not configured or invalid.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// ConnectionTimeout returns the connection timeout as a time.Duration.
// Returns 5 minutes if not configured or invalid.
func (c *TimeoutsConfig) ConnectionTimeout() time.Duration {
	return parseDurationOr(c.Connection, 5*time.Minute)
}

// CommandTimeout returns the command timeout as a time.Duration.
// Returns 1 minute if not configured or invalid.
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	return parseDurationOr(c.Command, time.Minute)
}

// TimeoutDuration returns the per-target notification timeout.
// Returns 10 seconds if not configured or invalid.
func (c *NotifyConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, 10*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

func isValidMode(m ListenerMode) bool {
	switch m {
	case ModeSmtp, ModeSmtps, ModeLMTP, ModeAlt:
		return true
	default:
		return false
	}
}
