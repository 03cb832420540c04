package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger settings.
type Config struct {
	Level   string `mapstructure:"level"`
	Pretty  bool   `mapstructure:"pretty"`
	Service string `mapstructure:"service"`
}

var (
	global zerolog.Logger
	once   sync.Once
)

func init() {
	// Safe default until Init runs.
	global = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init configures the global logger. Call once at startup.
func Init(cfg Config) {
	once.Do(func() {
		var w io.Writer = os.Stdout
		if cfg.Pretty {
			w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		}

		logger := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
		if cfg.Service != "" {
			logger = logger.With().Str("service", cfg.Service).Logger()
		}
		global = logger
	})
}

// L returns the global logger.
func L() *zerolog.Logger {
	return &global
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
