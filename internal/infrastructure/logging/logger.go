package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with broker-specific child constructors.
type Logger struct {
	*zap.Logger
}

// Config selects the level and encoding of the broker log.
type Config struct {
	Level       string // "debug", "info", "warn", "error"; empty means info
	Development bool   // colored console output with stack traces on warnings

	// Output receives encoded entries. Nil means stdout.
	Output zapcore.WriteSyncer
}

// New builds a logger. Production mode writes one JSON object per line,
// development mode writes human-readable console lines.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	out := cfg.Output
	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	}

	var encoder zapcore.Encoder
	if cfg.Development {
		encoder = zapcore.NewConsoleEncoder(consoleEncoding())
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		encoder = zapcore.NewJSONEncoder(jsonEncoding())
		opts = append(opts, zap.AddStacktrace(zapcore.DPanicLevel))
	}

	core := zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(level))
	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a child logger scoped to a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// ForSession returns a child logger tagged with terminal session identity.
func (l *Logger) ForSession(sessionID, remote string) *Logger {
	return l.With(zap.String("session_id", sessionID), zap.String("remote", remote))
}

func jsonEncoding() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	return enc
}

func consoleEncoding() zapcore.EncoderConfig {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return enc
}
