package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// New builds the run's logger. Development environments get colored tint
// output, everything else JSON. With suppress set, known provider noise is
// dropped.
func New(w io.Writer, levelStr string, env string, suppress bool) *slog.Logger {
	level := parseLogLevel(levelStr)
	var handler slog.Handler

	if env == "dev" || env == "development" {
		handler = tint.NewHandler(w, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	if suppress {
		handler = &noiseHandler{Handler: handler}
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// noiseHandler drops warnings providers emit for records this tool manages
// on purpose, such as the apex SOA and NS.
type noiseHandler struct {
	slog.Handler
}

func (h *noiseHandler) Handle(ctx context.Context, r slog.Record) error {
	if IsNoise(r.Message) {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h *noiseHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &noiseHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *noiseHandler) WithGroup(name string) slog.Handler {
	return &noiseHandler{Handler: h.Handler.WithGroup(name)}
}

// IsNoise reports whether msg is one of the suppressed provider warnings.
func IsNoise(msg string) bool {
	msg = strings.ToLower(msg)
	if strings.Contains(msg, "unsupported soa record") && strings.Contains(msg, "skipping") {
		return true
	}
	return strings.Contains(msg, "root ns record supported") && strings.Contains(msg, "no record is configured")
}
