package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/graymedia/mediaserver/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "mediaserver"

// Logger is the media server's structured logger. The server, transport
// and telemetry packages each declare the small subset they call, and
// *Logger satisfies all of them.
//
// Loggers derived with With or Component share their parent's level, so
// SetLevel on any of them applies to the whole tree.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New builds a Logger from the logging section of config.yaml, writing to
// stdout or stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(out, cfg, version)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
//
// Parameters:
//   - w: Destination for log lines
//   - cfg: Level ("debug", "info", "warn", "error") and format ("json" or "text")
//   - version: Build version stamped on every entry
//
// Returns:
//   - *Logger: Logger carrying service and version attributes
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	base := slog.New(h).With(
		slog.String("service", ServiceName),
		slog.String("version", version),
	)
	return &Logger{Logger: base, level: level}
}

// ValidLevel reports whether name is a level SetLevel understands.
func ValidLevel(name string) bool {
	switch strings.ToLower(name) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// parseLevel maps a config level name to slog; anything unknown is info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Component returns a child logger tagged with component=name.
//
// Example:
//
//	log.Component("ssdp").Info("bound", "port", 1900)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// SetLevel changes the minimum level for this logger and every logger
// derived from the same root. Unknown names select info.
func (l *Logger) SetLevel(name string) {
	if l.level != nil {
		l.level.Set(parseLevel(name))
	}
}

// Level reports the current minimum level.
func (l *Logger) Level() slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

// Default is the logger used before config is loaded: JSON, info, stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}
