package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "NEOPIXEL_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks NEOPIXEL_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	// Silent by default so the TUI owns the terminal
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built

	return nil
}

// InitializeToFile is like Initialize but writes to the given path instead of
// stderr. The terminal UI uses this so log lines never tear the screen.
func InitializeToFile(level, path string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" || path == "" {
		logger = zap.NewNop()
		return nil
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize file logger: %w", err)
	}
	logger = built

	return nil
}

// ParseLevel maps a level name to a zap level. Unknown names map to info,
// matching the behaviour of an explicitly requested but misspelled level.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogger replaces the global logger. Intended for tests that want to
// observe log output through zaptest/observer.
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

// LogDiscoveryEvent logs a change to the discovered-device list
func LogDiscoveryEvent(event, name, address string) {
	Debug("Discovery event",
		zap.String("event", event),
		zap.String("name", name),
		zap.String("address", address),
	)
}

// LogSelection logs a change of the selected device
func LogSelection(name, address string) {
	Info("Device selected",
		zap.String("name", name),
		zap.String("address", address),
	)
}

// LogPixelRequest logs the outcome of a fire-and-forget pixel request.
// A nil err means the device answered with a success status.
func LogPixelRequest(url string, err error) {
	if err != nil {
		Debug("Pixel request dropped",
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	Debug("Pixel request delivered", zap.String("url", url))
}

// LogConnection logs a presentation client connection event
func LogConnection(clientID, remoteAddr, event string) {
	Info("Connection event",
		zap.String("client_id", clientID),
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
