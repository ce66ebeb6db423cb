package logger

import (
	"os"

	"github.com/latticegw/mcp-gateway/services/gateway/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. JSON output in production,
// console-friendly output in development.
func New(cfg *config.Config) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var log zerolog.Logger
	if cfg.IsDevelopment() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return log.With().Str("service", "mcp-gateway").Logger()
}
