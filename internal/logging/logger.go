// Package logging configures zerolog for the service and the phone CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// Init installs the global logger writing to stderr.
func Init(cfg Config) zerolog.Logger {
	log.Logger = New(cfg, os.Stderr)
	return log.Logger
}

// New builds a logger for cfg without touching global state other than the
// level filter.
func New(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithCall returns a logger tagged with the call and caller ids.
func WithCall(base zerolog.Logger, callID, userID string) zerolog.Logger {
	ctx := base.With().Str("callId", callID)
	if userID != "" {
		ctx = ctx.Str("userId", userID)
	}
	return ctx.Logger()
}
