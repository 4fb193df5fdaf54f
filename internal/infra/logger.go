package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the service logger. Production environments log JSON at
// info level; everything else gets a console writer at debug level.
func NewLogger(appEnv, service string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, service)
}

func newLogger(out io.Writer, appEnv, service string) zerolog.Logger {
	production := strings.HasPrefix(strings.ToLower(appEnv), "prod")

	level := zerolog.DebugLevel
	if production {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Int("pid", os.Getpid())
	if host, err := os.Hostname(); err == nil {
		ctx = ctx.Str("host", host)
	}
	logger := ctx.Logger()

	if !production {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}
