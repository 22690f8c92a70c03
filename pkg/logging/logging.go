// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"ecdar-gateway/pkg/config"

	"github.com/rs/zerolog"
)

// New returns a JSON logger on stdout, or a console logger in development.
func New(cfg *config.Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.IsDevelopment() {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(w, cfg.LogLevel)
}

// NewWithWriter returns a logger writing to w at the named level.
// Unknown levels fall back to info.
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.SyncWriter(w)).Level(lvl).With().Timestamp().Str("service", "ecdar-gateway").Logger()
}
