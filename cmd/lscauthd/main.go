package main

import (
	"context"
	"fmt"
	"log"
	"os"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// sources chains an environment variable with a key of the TOML config file.
func sources(envKey, tomlKey string, tomlSrc altsrc.Sourcer) cli.ValueSourceChain {
	chain := cli.EnvVars(envKey)
	chain.Chain = append(chain.Chain, toml.TOML(tomlKey, tomlSrc))
	return chain
}

func newCommand() *cli.Command {
	var configFile string
	tomlSrc := altsrc.NewStringPtrSourcer(&configFile)

	return &cli.Command{
		Name:    "lscauthd",
		Usage:   "Authentication and session token service",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Value:       "lscauth.toml",
				Usage:       "Path to configuration file",
				Destination: &configFile,
				Sources:     cli.EnvVars("CONFIG"),
			},

			// Server
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Usage:   "HTTP listen address",
				Sources: sources("ADDR", "server.addr", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Value:   "http://localhost:3000",
				Usage:   "Frontend origin used in email links",
				Sources: sources("BASE_URL", "server.base_url", tomlSrc),
			},
			&cli.DurationFlag{
				Name:    "purge-interval",
				Value:   defaultPurgeInterval,
				Usage:   "How often expired tokens are deleted (0 disables)",
				Sources: sources("PURGE_INTERVAL", "server.purge_interval", tomlSrc),
			},

			// Tokens
			&cli.StringFlag{
				Name:    "jwt-access-secret",
				Usage:   "Access token signing secret (at least 32 characters)",
				Sources: sources("JWT_ACCESS_SECRET", "jwt.access_secret", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "jwt-refresh-secret",
				Usage:   "Refresh token signing secret (at least 32 characters, distinct from the access secret)",
				Sources: sources("JWT_REFRESH_SECRET", "jwt.refresh_secret", tomlSrc),
			},
			&cli.IntFlag{
				Name:    "jwt-access-expires-in",
				Value:   900,
				Usage:   "Access token lifetime in seconds",
				Sources: sources("JWT_ACCESS_EXPIRES_IN", "jwt.access_expires_in", tomlSrc),
			},
			&cli.IntFlag{
				Name:    "jwt-refresh-expires-in",
				Value:   604800,
				Usage:   "Refresh token lifetime in seconds",
				Sources: sources("JWT_REFRESH_EXPIRES_IN", "jwt.refresh_expires_in", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "api-key-env",
				Value:   "test",
				Usage:   "API key environment prefix (live, test)",
				Sources: sources("API_KEY_ENV", "api_key.env", tomlSrc),
			},
			&cli.IntFlag{
				Name:    "bcrypt-cost",
				Value:   12,
				Usage:   "bcrypt cost for password hashes",
				Sources: sources("BCRYPT_COST", "password.bcrypt_cost", tomlSrc),
			},
			&cli.BoolFlag{
				Name:    "pwned-check",
				Usage:   "Reject passwords found in the Pwned Passwords corpus",
				Sources: sources("PWNED_CHECK", "password.pwned_check", tomlSrc),
			},

			// Backends
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL DSN; empty keeps state in memory",
				Sources: sources("DATABASE_URL", "database.url", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for shared rate limit counters; empty keeps them in memory",
				Sources: sources("REDIS_URL", "redis.url", tomlSrc),
			},

			// SMTP
			&cli.StringFlag{
				Name:    "smtp-host",
				Usage:   "SMTP relay host; empty logs emails instead of sending them",
				Sources: sources("SMTP_HOST", "smtp.host", tomlSrc),
			},
			&cli.IntFlag{
				Name:    "smtp-port",
				Value:   587,
				Usage:   "SMTP relay port",
				Sources: sources("SMTP_PORT", "smtp.port", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "smtp-username",
				Usage:   "SMTP username",
				Sources: sources("SMTP_USERNAME", "smtp.username", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "smtp-password",
				Usage:   "SMTP password",
				Sources: sources("SMTP_PASSWORD", "smtp.password", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "smtp-from",
				Value:   "no-reply@localhost",
				Usage:   "Sender address",
				Sources: sources("SMTP_FROM", "smtp.from", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "smtp-from-name",
				Usage:   "Sender display name",
				Sources: sources("SMTP_FROM_NAME", "smtp.from_name", tomlSrc),
			},
			&cli.BoolFlag{
				Name:    "smtp-tls",
				Value:   true,
				Usage:   "Require TLS to the relay",
				Sources: sources("SMTP_TLS", "smtp.tls", tomlSrc),
			},

			// Observability
			&cli.BoolFlag{
				Name:    "metrics",
				Value:   true,
				Usage:   "Serve Prometheus metrics on /metrics",
				Sources: sources("METRICS", "metrics.enabled", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level: debug, info, warn, error",
				Sources: sources("LOG_LEVEL", "log.level", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format: text, json",
				Sources: sources("LOG_FORMAT", "log.format", tomlSrc),
			},
		},
		Action: runServer,
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
