package logger

import (
	"log/slog"

	"holdings_tracker/internal/app/port"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// slogAdapter реализует интерфейс port.Logger поверх *slog.Logger.
type slogAdapter struct {
	l *slog.Logger
}

// NewSlogAdapter wraps l as a port.Logger. A nil l uses the process default.
func NewSlogAdapter(l *slog.Logger) port.Logger {
	if l == nil {
		ensureInitialized()
		l = globalLogger
	}
	return &slogAdapter{l: l}
}

// Named returns a port.Logger on top of zapLogger that tags every entry with the component name.
func Named(zapLogger *zap.Logger, name string) port.Logger {
	return &slogAdapter{l: slog.New(zapslog.NewHandler(zapLogger.Core())).With("logger", name)}
}

// Nop returns a logger that discards everything.
func Nop() port.Logger {
	return &slogAdapter{l: slog.New(zapslog.NewHandler(zap.NewNop().Core()))}
}

func (a *slogAdapter) Info(msg string, args ...any) {
	a.l.Info(msg, args...)
}

func (a *slogAdapter) Debug(msg string, args ...any) {
	a.l.Debug(msg, args...)
}

func (a *slogAdapter) Warn(msg string, args ...any) {
	a.l.Warn(msg, args...)
}

func (a *slogAdapter) Error(msg string, args ...any) {
	a.l.Error(msg, args...)
}

func (a *slogAdapter) With(args ...any) port.Logger {
	return &slogAdapter{l: a.l.With(args...)}
}
