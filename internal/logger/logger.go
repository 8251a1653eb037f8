// Package logger configures the process-wide slog logger. Output is JSON on
// stdout; the minimum level comes from the LOG_LEVEL environment variable and
// can be changed at runtime through SetLevel.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Level aliases slog.Level for callers that only import this package.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	// Logger is the configured root logger. It is also installed as the
	// slog default, so plain slog calls end up here too.
	Logger *slog.Logger

	programLevel = new(slog.LevelVar)
)

func init() {
	programLevel.Set(slog.LevelInfo)
	SetLevelFromEnv("LOG_LEVEL", slog.LevelInfo)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: programLevel,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// SetLevel sets the minimum log level.
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level.
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// SetLevelFromEnv sets the log level from an environment variable, falling
// back to defaultLevel when unset or unparsable.
func SetLevelFromEnv(envVarName string, defaultLevel slog.Level) {
	levelStr := os.Getenv(envVarName)
	if levelStr == "" {
		programLevel.Set(defaultLevel)
		return
	}

	level, err := ParseLevel(levelStr)
	if err != nil {
		programLevel.Set(defaultLevel)
		return
	}
	programLevel.Set(level)
}
