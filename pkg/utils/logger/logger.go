// Package logger wraps zap into Pentagon's process-wide structured logger,
// stamping every line emitted through a context.Context with that
// request's correlation IDs.
package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pentagon/pkg/utils/contextkey"
)

// Config controls level, encoding, and destination of the process logger.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // file path, or "stdout"
	ErrorPath  string // file path, or "stderr"
}

// Logger is a zap.Logger that knows how to pull correlation fields off a
// context before writing a line.
type Logger struct {
	base *zap.Logger
}

var global *Logger

// Init builds a Logger from cfg and installs it as the process-wide
// logger used by the package-level Debug/Info/Warn/Error/Fatal functions.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// New builds a standalone Logger without touching the process-wide one.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	sink, err := openSink(orDefault(cfg.OutputPath, "stdout"))
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}

	core := zapcore.NewCore(buildEncoder(cfg.Format), sink, level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{base: base}, nil
}

func parseLevel(raw string) (zapcore.Level, error) {
	level := zapcore.InfoLevel
	if raw == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

func buildEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    "func",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     rfc3339TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	if path == "stdout" {
		return zapcore.AddSync(os.Stdout), nil
	}
	if path == "stderr" {
		return zapcore.AddSync(os.Stderr), nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(file), nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func rfc3339TimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format(time.RFC3339))
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// WithContext returns a zap.Logger pre-populated with this context's
// correlation fields.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	return l.base.With(correlationFields(ctx)...)
}

// correlationFields reads trace/request/user IDs back out of ctx using the
// same typed accessors CorrelationMiddleware wrote them with, so a field
// is only ever attached when the value actually round-trips.
func correlationFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := contextkey.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", id))
	}
	if id, ok := contextkey.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := contextkey.UserID(ctx); ok {
		fields = append(fields, zap.String("user_id", id))
	}
	return fields
}

// active returns the process-wide logger, or a no-op one if Init was never
// called, so every package-level function below is always safe to call.
func active(ctx context.Context) *zap.Logger {
	if global == nil {
		return zap.NewNop()
	}
	return global.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) { active(ctx).Debug(msg, fields...) }
func Info(ctx context.Context, msg string, fields ...zap.Field)  { active(ctx).Info(msg, fields...) }
func Warn(ctx context.Context, msg string, fields ...zap.Field)  { active(ctx).Warn(msg, fields...) }
func Error(ctx context.Context, msg string, fields ...zap.Field) { active(ctx).Error(msg, fields...) }
func Fatal(ctx context.Context, msg string, fields ...zap.Field) { active(ctx).Fatal(msg, fields...) }

func Debugf(ctx context.Context, format string, args ...interface{}) {
	Debug(ctx, fmt.Sprintf(format, args...))
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	Info(ctx, fmt.Sprintf(format, args...))
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	Warn(ctx, fmt.Sprintf(format, args...))
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	Error(ctx, fmt.Sprintf(format, args...))
}

// WithFields returns the process-wide logger with extra fields attached,
// on top of whatever correlation fields ctx carries.
func WithFields(ctx context.Context, fields ...zap.Field) *zap.Logger {
	return active(ctx).With(fields...)
}

// Sync flushes the process-wide logger, if one was installed.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}

// Current returns the installed process-wide logger, or nil if Init was
// never called.
func Current() *Logger {
	return global
}
