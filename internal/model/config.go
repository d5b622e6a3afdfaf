package model

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the full archiver configuration, loaded from a JSON file.
type Config struct {
	// IMAPServer is the IMAP host, optionally with a ":port" suffix
	// (993 is assumed when absent).
	IMAPServer string `mapstructure:"imap_server"`

	// EmailUser and EmailPass are the login credentials. EmailPass may
	// be left empty in the config file, in which case it is looked up
	// in the system keyring.
	EmailUser string `mapstructure:"email_user"`
	EmailPass string `mapstructure:"email_pass"`

	// Mailbox is the mailbox to archive.
	Mailbox string `mapstructure:"mailbox"`

	// BatchSize bounds how many pending messages one invocation
	// processes before stopping.
	BatchSize int `mapstructure:"batch_size"`

	// ThrottlePerEmail is the pacing delay between messages, in seconds.
	ThrottlePerEmail float64 `mapstructure:"throttle_per_email"`

	// DBFile is the SQLite database path.
	DBFile string `mapstructure:"db_file"`

	// ReconnectEvery is the number of fetches after which the IMAP
	// connection is proactively closed and reopened. Long-lived
	// connections are silently dropped by some servers.
	ReconnectEvery int `mapstructure:"reconnect_every"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Throttle returns ThrottlePerEmail as a duration.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.ThrottlePerEmail * float64(time.Second))
}

// LoadConfig reads the archiver configuration from a JSON file using
// Viper. A missing file is a startup-fatal condition; the returned
// error directs the user to the shipped template.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("mailbox", "INBOX")
	v.SetDefault("batch_size", 500)
	v.SetDefault("throttle_per_email", 0.05)
	v.SetDefault("db_file", "email_archive.db")
	v.SetDefault("reconnect_every", 200)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return nil, fmt.Errorf(
				"%s not found: copy config.json.template to %s and fill in your settings",
				path, path,
			)
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.IMAPServer == "" {
		return nil, fmt.Errorf("config %s: imap_server is required", path)
	}
	if cfg.EmailUser == "" {
		return nil, fmt.Errorf("config %s: email_user is required", path)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.ThrottlePerEmail < 0 {
		cfg.ThrottlePerEmail = 0
	}

	return cfg, nil
}
