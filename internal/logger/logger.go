package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Level represents the logging level
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case OffLevel:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Logger is the interface for logging operations
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	SetLevel(level Level)
	// With returns a logger that prefixes messages with the component name.
	With(component string) Logger
}

// LogConfig holds configuration for the logger
type LogConfig struct {
	// Output destination: "file", "stderr" or "discard"
	Output string
	// Log level: "debug", "info", "warn", "error", "off"
	Level string
	// FilePath for file output (only used when Output is "file")
	FilePath string
}

type standardLogger struct {
	logger    *log.Logger
	level     *atomic.Int32
	component string
	closer    io.Closer
}

// NewLogger creates a new logger based on the provided configuration.
// The terminal belongs to the UI, so file output is the default.
func NewLogger(config LogConfig) (Logger, error) {
	writer, closer, err := openOutput(config)
	if err != nil {
		return nil, err
	}
	levelStr := config.Level
	if levelStr == "" {
		levelStr = os.Getenv("STUDYDESK_LOG_LEVEL")
	}
	if levelStr == "" {
		levelStr = "info"
	}
	level := &atomic.Int32{}
	level.Store(int32(ParseLevel(levelStr)))
	return &standardLogger{
		logger: log.New(writer, "", log.LstdFlags),
		level:  level,
		closer: closer,
	}, nil
}

func openOutput(config LogConfig) (io.Writer, io.Closer, error) {
	output := config.Output
	if output == "" {
		output = os.Getenv("STUDYDESK_LOG_OUTPUT")
	}
	if output == "" {
		output = "file"
	}
	switch output {
	case "stderr":
		return os.Stderr, nil, nil
	case "discard":
		return io.Discard, nil, nil
	case "file":
		path := config.FilePath
		if path == "" {
			path = os.Getenv("STUDYDESK_LOG_FILE")
		}
		if path == "" {
			path = DefaultFilePath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return file, file, nil
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s (expected 'file', 'stderr' or 'discard')", output)
	}
}

// DefaultFilePath is ~/.studydesk/studydesk.log, falling back to the temp dir.
func DefaultFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "studydesk.log")
	}
	return filepath.Join(home, ".studydesk", "studydesk.log")
}

// NewNoOpLogger creates a logger that discards all output (useful for tests)
func NewNoOpLogger() Logger {
	level := &atomic.Int32{}
	level.Store(int32(OffLevel))
	return &standardLogger{logger: log.New(io.Discard, "", 0), level: level}
}

// New wraps an arbitrary writer, mainly for tests that inspect output.
func New(w io.Writer, level Level) Logger {
	l := &atomic.Int32{}
	l.Store(int32(level))
	return &standardLogger{logger: log.New(w, "", 0), level: l}
}

// ParseLevel converts a string to a Level
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "off", "none":
		return OffLevel
	default:
		return InfoLevel
	}
}

// Writer exposes the destination so the standard library logger can share it.
func Writer(l Logger) io.Writer {
	if s, ok := l.(*standardLogger); ok {
		return s.logger.Writer()
	}
	return io.Discard
}

// Close releases the log file if one was opened.
func Close(l Logger) error {
	if s, ok := l.(*standardLogger); ok && s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (l *standardLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *standardLogger) With(component string) Logger {
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &standardLogger{logger: l.logger, level: l.level, component: name}
}

func (l *standardLogger) Debug(format string, v ...any) { l.log(DebugLevel, format, v...) }
func (l *standardLogger) Info(format string, v ...any)  { l.log(InfoLevel, format, v...) }
func (l *standardLogger) Warn(format string, v ...any)  { l.log(WarnLevel, format, v...) }
func (l *standardLogger) Error(format string, v ...any) { l.log(ErrorLevel, format, v...) }

func (l *standardLogger) log(level Level, format string, v ...any) {
	if Level(l.level.Load()) > level {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		l.logger.Printf("[%s] [%s] %s", level, l.component, msg)
		return
	}
	l.logger.Printf("[%s] %s", level, msg)
}
