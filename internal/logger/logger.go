// Package logger provides the slog handler used by the client binaries:
// a colorized single-line console format written to stderr.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

type ConsoleHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	attrs    []slog.Attr
	group    string
	logLevel slog.Level
}

func NewConsoleHandler(w io.Writer, level slog.Level) *ConsoleHandler {
	return &ConsoleHandler{
		mu:       &sync.Mutex{},
		w:        w,
		logLevel: level,
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	line := fmt.Sprintf(
		"%s | %-5s | %s",
		color.GreenString(r.Time.Format(time.RFC3339)),
		level,
		r.Message,
	)

	attr := h.group
	if attr != "" {
		attr += "."
	}
	for _, a := range h.attrs {
		line += color.CyanString(fmt.Sprintf(" %s%s=%v", attr, a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		line += color.CyanString(fmt.Sprintf(" %s%s=%v", attr, a.Key, a.Value))
		return true
	})

	line += "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ConsoleHandler{
		mu:       h.mu,
		w:        h.w,
		attrs:    merged,
		group:    h.group,
		logLevel: h.logLevel,
	}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{
		mu:       h.mu,
		w:        h.w,
		attrs:    h.attrs,
		group:    name,
		logLevel: h.logLevel,
	}
}

// New builds the default client logger. Debug mode is driven by MARS_DEBUG.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("MARS_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(NewConsoleHandler(os.Stderr, level))
}
