// Package logger is a thin structured-logging facade over zap. The engine
// logs through the Logger interface so callers can plug in their own
// implementation; the default is the noop logger.
package logger

import (
	"go.uber.org/zap"
)

// Field is a structured log field.
type Field = zap.Field

// Logger is the logging interface used across the engine.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...Field) Logger       { return &zapLogger{l: z.l.With(fields...)} }

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

// NewProductionLogger creates a JSON logger at info level.
func NewProductionLogger() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return NewNoopLogger()
	}
	return &zapLogger{l: l}
}

// NewDevelopmentLogger creates a console logger at debug level.
func NewDevelopmentLogger() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return NewNoopLogger()
	}
	return &zapLogger{l: l}
}

// NewNoopLogger creates a logger that discards everything.
func NewNoopLogger() Logger {
	return &zapLogger{l: zap.NewNop()}
}
