// Package logging provides the host's tagged log sink.
//
// Every log line produced by the host carries one of the tags named in
// the external interface: [init], [service], [heartbeat], [tcp],
// [config], [error], [exit], or "[<k> service]" for per-identifier
// control actions. The tag is attached as a structured zap field rather
// than string-concatenated so it composes with whatever encoder the
// caller configures.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the pluggable log sink the host's components depend on.
type Logger interface {
	Debug(tag, msg string, fields ...zap.Field)
	Info(tag, msg string, fields ...zap.Field)
	Warn(tag, msg string, fields ...zap.Field)
	Error(tag, msg string, fields ...zap.Field)
	Fatal(tag, msg string, fields ...zap.Field)
	Sync() error
}

// ZapLogger implements Logger over a *zap.Logger.
type ZapLogger struct {
	logger *zap.Logger
}

// New builds a Logger. debug raises verbosity to zap's development
// config (caller+stacktrace annotated, level threshold at Debug);
// otherwise the production config is used (level threshold at Info,
// JSON encoding).
func New(debug bool) (*ZapLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: z}, nil
}

// NewNop builds a Logger that discards everything; used by tests.
func NewNop() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

func (l *ZapLogger) tagged(tag string, fields []zap.Field) []zap.Field {
	return append([]zap.Field{zap.String("tag", tag)}, fields...)
}

func (l *ZapLogger) Debug(tag, msg string, fields ...zap.Field) {
	l.logger.Debug(msg, l.tagged(tag, fields)...)
}

func (l *ZapLogger) Info(tag, msg string, fields ...zap.Field) {
	l.logger.Info(msg, l.tagged(tag, fields)...)
}

func (l *ZapLogger) Warn(tag, msg string, fields ...zap.Field) {
	l.logger.Warn(msg, l.tagged(tag, fields)...)
}

func (l *ZapLogger) Error(tag, msg string, fields ...zap.Field) {
	l.logger.Error(msg, l.tagged(tag, fields)...)
}

func (l *ZapLogger) Fatal(tag, msg string, fields ...zap.Field) {
	l.logger.Fatal(msg, l.tagged(tag, fields)...)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
