package logger

import (
	"io"
	"os"
	"time"

	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/config"
)

// New builds the process-wide logger. Development gets a console writer,
// every other environment writes JSON lines to stdout.
func New(cfg *config.ObservabilityConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Environment == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(cfg, out)
}

// NewWithWriter is New with an explicit sink. It leaves zerolog's package
// globals alone; main sets the timestamp format once at startup.
func NewWithWriter(cfg *config.ObservabilityConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("env", cfg.Environment).
		Logger()
}

// PgxTracer routes pgx query logs through zerolog. Query logs are only
// useful while debugging so they follow the logger level.
func PgxTracer(l zerolog.Logger) *tracelog.TraceLog {
	level := tracelog.LogLevelWarn
	if l.GetLevel() <= zerolog.DebugLevel {
		level = tracelog.LogLevelDebug
	}
	return &tracelog.TraceLog{
		Logger:   zerologadapter.NewLogger(l.With().Str("component", "pgx").Logger()),
		LogLevel: level,
	}
}
