package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogLevel returns the log level from LOG_LEVEL environment variable
// Defaults to INFO if not set or invalid
func GetLogLevel() slog.Level {
	return parseLogLevel(os.Getenv("LOG_LEVEL"))
}

// GetLogFormat returns "json" or "text" from LOG_FORMAT, or fallback when unset or unknown
func GetLogFormat(fallback string) string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) {
	case "json":
		return "json"
	case "text":
		return "text"
	default:
		return fallback
	}
}

func newLogger(output io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// NewLogger creates a new structured logger with the configured log level.
// HTTP and batch commands log JSON to stdout. Stdio mode logs text to stderr
// because stdout carries the MCP protocol. LOG_FORMAT overrides the format
// but never the stream.
func NewLogger(isStdioMode bool) *slog.Logger {
	if isStdioMode {
		return newLogger(os.Stderr, GetLogFormat("text"), GetLogLevel())
	}
	return newLogger(os.Stdout, GetLogFormat("json"), GetLogLevel())
}

// NewTextLogger creates a text-based logger with the configured log level
func NewTextLogger(output io.Writer) *slog.Logger {
	return newLogger(output, "text", GetLogLevel())
}

// NewTestLogger creates a logger for testing with configurable level and output
// If level is empty, uses LOG_LEVEL environment variable
func NewTestLogger(output io.Writer, level string) *slog.Logger {
	logLevel := GetLogLevel()
	if level != "" {
		logLevel = parseLogLevel(level)
	}
	return newLogger(output, "text", logLevel)
}
