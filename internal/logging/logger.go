package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Logger wraps slog.Logger with orchestration context helpers.
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
	level     *slog.LevelVar
}

// Config configures the logger.
type Config struct {
	Level     string
	Format    string // auto, text, json
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "auto",
		Output:    os.Stdout,
		AddSource: false,
	}
}

// New creates a new logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))
	sanitizer := NewSanitizer()

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
	case "text":
		handler = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
	default: // auto
		if isTerminal(cfg.Output) {
			handler = NewPrettyHandler(cfg.Output, level)
		} else {
			handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
				Level:     level,
				AddSource: cfg.AddSource,
			})
		}
	}

	handler = NewSanitizingHandler(handler, sanitizer)

	return &Logger{
		Logger:    slog.New(handler),
		sanitizer: sanitizer,
		level:     level,
	}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sanitizer: NewSanitizer(),
		level:     new(slog.LevelVar),
	}
}

// SetLevel changes the logging level at runtime. Derived loggers created
// with With* share the level.
func (l *Logger) SetLevel(s string) {
	if l.level != nil {
		l.level.Set(parseLevel(s))
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// WithProject returns a logger with project context.
func (l *Logger) WithProject(projectID int64) *Logger {
	return &Logger{
		Logger:    l.Logger.With("project_id", projectID),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// WithStage returns a logger with stage context.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("stage", stage),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// WithAgent returns a logger with agent context.
func (l *Logger) WithAgent(agentID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("agent_id", agentID),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// With returns a logger with custom fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// Sanitize sanitizes a string using the logger's sanitizer.
func (l *Logger) Sanitize(input string) string {
	return l.sanitizer.Sanitize(input)
}
