package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	Hostname       string
	LogLevel       string
	Listen         string
	TLSCert        string
	TLSKey         string
	MaxMessageSize int
	MaxRecipients  int
	DBPath         string
	ArchivePath    string
}

// RegisterFlags defines the common flags on fs and returns the struct they
// populate once fs is parsed.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.ConfigPath, "config", "./mailrouted.toml", "Path to configuration file")
	fs.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.Listen, "listen", "", "Listen address (replaces all config listeners)")
	fs.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate file path")
	fs.StringVar(&f.TLSKey, "tls-key", "", "TLS key file path")
	fs.IntVar(&f.MaxMessageSize, "max-message-size", 0, "Maximum message size in bytes")
	fs.IntVar(&f.MaxRecipients, "max-recipients", 0, "Maximum recipients per message")
	fs.StringVar(&f.DBPath, "db", "", "SQLite database path")
	fs.StringVar(&f.ArchivePath, "archive", "", "Maildir base path for the raw message archive")

	return f
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := RegisterFlags(flag.CommandLine)
	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// Merge file config into defaults
	cfg = mergeConfig(cfg, fileConfig.Mailrouted)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.Listen != "" {
		// -listen flag replaces ALL listeners with a single listener
		cfg.Listeners = []ListenerConfig{
			{Address: f.Listen, Mode: ModeSmtp},
		}
	}

	if f.TLSCert != "" {
		cfg.TLS.CertFile = f.TLSCert
	}

	if f.TLSKey != "" {
		cfg.TLS.KeyFile = f.TLSKey
	}

	if f.MaxMessageSize > 0 {
		cfg.Limits.MaxMessageSize = f.MaxMessageSize
	}

	if f.MaxRecipients > 0 {
		cfg.Limits.MaxRecipients = f.MaxRecipients
	}

	if f.DBPath != "" {
		cfg.Store.Path = f.DBPath
	}

	if f.ArchivePath != "" {
		// -archive implies a maildir archive
		if cfg.Archive.Type == "" {
			cfg.Archive.Type = "maildir"
		}
		cfg.Archive.BasePath = f.ArchivePath
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies environment and flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(ApplyEnv(cfg), f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if len(src.Listeners) > 0 {
		dst.Listeners = src.Listeners
	}

	if src.TLS.CertFile != "" {
		dst.TLS.CertFile = src.TLS.CertFile
	}

	if src.TLS.KeyFile != "" {
		dst.TLS.KeyFile = src.TLS.KeyFile
	}

	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}

	if src.Limits.MaxMessageSize > 0 {
		dst.Limits.MaxMessageSize = src.Limits.MaxMessageSize
	}

	if src.Limits.MaxRecipients > 0 {
		dst.Limits.MaxRecipients = src.Limits.MaxRecipients
	}

	if src.Timeouts.Connection != "" {
		dst.Timeouts.Connection = src.Timeouts.Connection
	}

	if src.Timeouts.Command != "" {
		dst.Timeouts.Command = src.Timeouts.Command
	}

	// Metrics: enabled is explicitly set (boolean), so we merge if source has any non-zero value
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if src.Metrics.HealthPath != "" {
		dst.Metrics.HealthPath = src.Metrics.HealthPath
	}

	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}

	if src.Archive.Type != "" {
		dst.Archive = src.Archive
	}

	if src.DKIM.Enabled {
		dst.DKIM.Enabled = true
	}

	if src.Notify.Timeout != "" {
		dst.Notify.Timeout = src.Notify.Timeout
	}

	if len(src.Notify.Targets) > 0 {
		dst.Notify.Targets = src.Notify.Targets
	}

	if len(src.Settings) > 0 {
		dst.Settings = src.Settings
	}

	return dst
}
