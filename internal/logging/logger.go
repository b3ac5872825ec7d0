// Package logging provides the structured logger used by every Nexus
// component. The interface matches the teacher framework's Logger contract
// (Info/Warn/Error/Debug + With) so call sites read the same way; the
// implementation is backed by zerolog instead of a hand-rolled writer.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging contract used throughout Nexus.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	DebugCtx(ctx context.Context, msg string, fields map[string]interface{})
	InfoCtx(ctx context.Context, msg string, fields map[string]interface{})
	WarnCtx(ctx context.Context, msg string, fields map[string]interface{})
	ErrorCtx(ctx context.Context, msg string, fields map[string]interface{})

	// With returns a child logger that always includes the given fields.
	With(fields map[string]interface{}) Logger
}

type zeroLogger struct {
	log zerolog.Logger
}

// Config controls the logger's level and output format.
type Config struct {
	Level      string // debug|info|warn|error
	Format     string // json|console
	Component  string
	ServiceTag string
}

// New builds a Logger per Config. JSON output is used in production; the
// console writer (colorized, human-readable) is used when Format=="console",
// mirroring the teacher's json-vs-text split in telemetry.TelemetryLogger.
func New(cfg Config) Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	base := zerolog.New(out).With().Timestamp().Logger()
	if cfg.ServiceTag != "" {
		base = base.With().Str("service", cfg.ServiceTag).Logger()
	}
	if cfg.Component != "" {
		base = base.With().Str("component", cfg.Component).Logger()
	}
	return &zeroLogger{log: base}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
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

func (l *zeroLogger) event(e *zerolog.Event, msg string, fields map[string]interface{}) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *zeroLogger) Debug(msg string, fields map[string]interface{}) {
	l.event(l.log.Debug(), msg, fields)
}

func (l *zeroLogger) Info(msg string, fields map[string]interface{}) {
	l.event(l.log.Info(), msg, fields)
}

func (l *zeroLogger) Warn(msg string, fields map[string]interface{}) {
	l.event(l.log.Warn(), msg, fields)
}

func (l *zeroLogger) Error(msg string, fields map[string]interface{}) {
	l.event(l.log.Error(), msg, fields)
}

func (l *zeroLogger) DebugCtx(ctx context.Context, msg string, fields map[string]interface{}) {
	l.event(l.log.Debug().Ctx(ctx), msg, fields)
}

func (l *zeroLogger) InfoCtx(ctx context.Context, msg string, fields map[string]interface{}) {
	l.event(l.log.Info().Ctx(ctx), msg, fields)
}

func (l *zeroLogger) WarnCtx(ctx context.Context, msg string, fields map[string]interface{}) {
	l.event(l.log.Warn().Ctx(ctx), msg, fields)
}

func (l *zeroLogger) ErrorCtx(ctx context.Context, msg string, fields map[string]interface{}) {
	l.event(l.log.Error().Ctx(ctx), msg, fields)
}

func (l *zeroLogger) With(fields map[string]interface{}) Logger {
	ctx := l.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zeroLogger{log: ctx.Logger()}
}

// Noop returns a Logger that discards everything, for tests that don't care
// about log output.
func Noop() Logger {
	return &zeroLogger{log: zerolog.New(io.Discard)}
}
