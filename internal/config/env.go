package config

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnv applies environment variable overrides to the configuration.
// Environment variables take precedence over TOML config but are overridden by command-line flags.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("MAILROUTED_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("MAILROUTED_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAILROUTED_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("MAILROUTED_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("MAILROUTED_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("MAILROUTED_ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv("MAILROUTED_ARCHIVE_PATH"); v != "" {
		cfg.Archive.BasePath = v
	}
	if v := os.Getenv("MAILROUTED_ARCHIVE_PATH_TEMPLATE"); v != "" {
		if cfg.Archive.Options == nil {
			cfg.Archive.Options = make(map[string]string)
		}
		cfg.Archive.Options["path_template"] = v
	}
	if v := os.Getenv("MAILROUTED_ARCHIVE_MAILDIR_SUBDIR"); v != "" {
		if cfg.Archive.Options == nil {
			cfg.Archive.Options = make(map[string]string)
		}
		cfg.Archive.Options["maildir_subdir"] = v
	}
	if v := os.Getenv("MAILROUTED_DKIM_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DKIM.Enabled = b
		}
	}

	// Apply target overrides to the first target of the matching type
	if v := os.Getenv("MAILROUTED_NOTIFY_WEBHOOK_URL"); v != "" {
		t := targetOfType(&cfg, TargetWebhook)
		t.URL = v
	}
	if v := os.Getenv("MAILROUTED_NOTIFY_REDIS_ADDR"); v != "" {
		t := targetOfType(&cfg, TargetRedis)
		t.Address = v
		if t.Channel == "" {
			t.Channel = "mailroute"
		}
	}
	if v := os.Getenv("MAILROUTED_NOTIFY_REDIS_PASSWORD"); v != "" {
		t := targetOfType(&cfg, TargetRedis)
		t.Password = v
	}
	if v := os.Getenv("MAILROUTED_NOTIFY_TELEGRAM_TOKEN"); v != "" {
		t := targetOfType(&cfg, TargetTelegram)
		t.BotToken = v
	}
	// Chat ids are comma-separated.
	if v := os.Getenv("MAILROUTED_NOTIFY_TELEGRAM_CHAT_IDS"); v != "" {
		t := targetOfType(&cfg, TargetTelegram)
		t.ChatIDs = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				t.ChatIDs = append(t.ChatIDs, id)
			}
		}
	}

	return cfg
}

// targetOfType returns the first notify target of type typ, appending a new
// one if none exists.
func targetOfType(cfg *Config, typ string) *NotifyTargetConfig {
	for i := range cfg.Notify.Targets {
		if cfg.Notify.Targets[i].Type == typ {
			return &cfg.Notify.Targets[i]
		}
	}
	// Copy so the appended target never aliases a slice shared with the caller.
	targets := make([]NotifyTargetConfig, len(cfg.Notify.Targets), len(cfg.Notify.Targets)+1)
	copy(targets, cfg.Notify.Targets)
	cfg.Notify.Targets = append(targets, NotifyTargetConfig{Type: typ})
	return &cfg.Notify.Targets[len(cfg.Notify.Targets)-1]
}
