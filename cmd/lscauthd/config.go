package main

import (
	"time"

	"github.com/lsc-studio/lscauth"
	"github.com/lsc-studio/lscauth/mailer/smtp"
	"github.com/urfave/cli/v3"
)

const (
	defaultPurgeInterval = time.Hour
	shutdownTimeout      = 30 * time.Second
)

// serverConfig is the resolved flag, environment and TOML configuration.
type serverConfig struct {
	Addr          string
	BaseURL       string
	PurgeInterval time.Duration

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	APIKeyEnv     string
	BcryptCost    int
	PwnedCheck    bool

	DatabaseURL string
	RedisURL    string

	SMTP smtp.Config

	Metrics   bool
	LogLevel  string
	LogFormat string
}

func loadConfig(cmd *cli.Command) serverConfig {
	return serverConfig{
		Addr:          cmd.String("addr"),
		BaseURL:       cmd.String("base-url"),
		PurgeInterval: cmd.Duration("purge-interval"),

		AccessSecret:  cmd.String("jwt-access-secret"),
		RefreshSecret: cmd.String("jwt-refresh-secret"),
		AccessTTL:     time.Duration(cmd.Int("jwt-access-expires-in")) * time.Second,
		RefreshTTL:    time.Duration(cmd.Int("jwt-refresh-expires-in")) * time.Second,
		APIKeyEnv:     cmd.String("api-key-env"),
		BcryptCost:    int(cmd.Int("bcrypt-cost")),
		PwnedCheck:    cmd.Bool("pwned-check"),

		DatabaseURL: cmd.String("database-url"),
		RedisURL:    cmd.String("redis-url"),

		SMTP: smtp.Config{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			BaseURL:  cmd.String("base-url"),
		},

		Metrics:   cmd.Bool("metrics"),
		LogLevel:  cmd.String("log-level"),
		LogFormat: cmd.String("log-format"),
	}
}

// authConfig maps the server settings onto the engine configuration. Validation is
// left to Builder.Build.
func (c serverConfig) authConfig() lscauth.Config {
	cfg := lscauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(c.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshSecret)
	if c.AccessTTL > 0 {
		cfg.JWT.AccessTTL = c.AccessTTL
	}
	if c.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = c.RefreshTTL
	}
	if c.APIKeyEnv != "" {
		cfg.APIKey.Environment = c.APIKeyEnv
	}
	if c.BcryptCost > 0 {
		cfg.Password.Cost = c.BcryptCost
	}
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Metrics
	return cfg
}
