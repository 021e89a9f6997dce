package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel is the configuration-facing level, decoupled from slog.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a case-insensitive level name ("debug", "info",
// "warn"/"warning", "error") into a LogLevel. Blank means info.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is the logging interface every coagent component accepts.
// Args are slog style key/value pairs; messages are dotted event names such
// as "actor.task.failed".
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// NewSlogAdapter adapts an existing *slog.Logger. *slog.Logger already has
// the right method set, so this only pins the interface.
func NewSlogAdapter(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger
}

// StructuredLogger is a slog-backed Logger with a level that can be changed
// while running and cheap derived loggers carrying fixed attributes.
type StructuredLogger struct {
	*slog.Logger
	level *slog.LevelVar
}

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig is info level JSON on stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a StructuredLogger; nil cfg means DefaultLoggerConfig.
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Level.slog())
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}

	attrs := make([]slog.Attr, 0, len(cfg.CustomAttrs)+1)
	if cfg.Component != "" {
		attrs = append(attrs, slog.String("component", cfg.Component))
	}
	for k, v := range cfg.CustomAttrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	if len(attrs) > 0 {
		h = h.WithAttrs(attrs)
	}

	return &StructuredLogger{Logger: slog.New(h), level: level}
}

// NewSlogLogger is NewLogger for the common case.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StructuredLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *StructuredLogger) SetLevel(level LogLevel) { l.level.Set(level.slog()) }

// Level returns the current level.
func (l *StructuredLogger) Level() LogLevel {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return LogLevelDebug
	case lv <= slog.LevelInfo:
		return LogLevelInfo
	case lv <= slog.LevelWarn:
		return LogLevelWarn
	default:
		return LogLevelError
	}
}

// With returns a logger that adds args to every entry. The level stays shared.
func (l *StructuredLogger) With(args ...any) *StructuredLogger {
	return &StructuredLogger{Logger: l.Logger.With(args...), level: l.level}
}

// WithComponent tags entries with the emitting component (actor, engine, cli).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger { return l.With("component", c) }

// WithAgent tags entries with an agent name.
func (l *StructuredLogger) WithAgent(name string) *StructuredLogger { return l.With("agent", name) }

// WithTask tags entries with a task id.
func (l *StructuredLogger) WithTask(id string) *StructuredLogger { return l.With("task_id", id) }

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}
