package logging

import (
	"io"
	"os"
	"strings"

	"github.com/dmmcquay/katago-web/internal/config"
)

// LogFormat is the log output format.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config selects and parameterizes a logger.
type Config struct {
	Level   string
	Format  LogFormat
	Service string
	Version string
	Prefix  string
	Writer  io.Writer // defaults to stderr
}

// ConfigFromApp builds a logging Config from the application config.
func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		Level:   cfg.Logging.Level,
		Format:  LogFormat(cfg.Logging.Format),
		Service: cfg.Server.Name,
		Version: cfg.Server.Version,
		Prefix:  cfg.Logging.Prefix,
	}
}

// NewLoggerFromConfig creates a logger. JSON is the default format; the
// KATAGO_WEB_LOG_FORMAT environment variable applies when cfg leaves it unset.
func NewLoggerFromConfig(cfg *Config) ContextLogger {
	format := cfg.Format
	if format == "" {
		if env := os.Getenv("KATAGO_WEB_LOG_FORMAT"); env != "" {
			format = LogFormat(strings.ToLower(env))
		} else {
			format = FormatJSON
		}
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	if format == FormatText {
		return NewLoggerAdapter(NewLoggerWithWriter(w, cfg.Prefix, cfg.Level))
	}
	return NewStructuredLoggerWithWriter(w, cfg.Service, cfg.Version, cfg.Level)
}
