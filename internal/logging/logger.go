package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "SENSORLINK_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks SENSORLINK_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the SENSORLINK_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogHTTPExchange logs one completed request/response pair.
// A zero status means the request never produced a response.
func LogHTTPExchange(op, method, url string, status int, elapsed time.Duration, requestID string) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", redactQuery(url)),
		zap.Duration("elapsed", elapsed),
	}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if status == 0 {
		Warn("HTTP request failed", fields...)
		return
	}
	fields = append(fields, zap.Int("status_code", status))
	if status >= 200 && status < 300 {
		Debug("HTTP exchange", fields...)
		return
	}
	Warn("HTTP exchange rejected", fields...)
}

// LogOverride logs a single parameter override applied from source
// ("local" or "remote").
func LogOverride(source, key string, value any) {
	Info("Parameter override",
		zap.String("source", source),
		zap.String("key", key),
		zap.Any("value", value),
	)
}

// LogStats logs a counter snapshot under msg.
func LogStats(msg string, counters map[string]uint64) {
	fields := make([]zap.Field, 0, len(counters))
	for k, v := range counters {
		fields = append(fields, zap.Uint64(k, v))
	}
	Debug(msg, fields...)
}

// redactQuery drops the query string, which carries the device token on
// params requests.
func redactQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i] + "?<redacted>"
	}
	return url
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
