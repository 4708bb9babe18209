// Package logging builds the process logger: a colored console handler on
// stderr, optionally mirrored to a size-rotated file inside the metadata
// directory.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// logMaxSizeMB is the size at which the log file rotates.
	logMaxSizeMB = 10

	// logMaxBackups is the number of rotated files kept.
	logMaxBackups = 3

	// logMaxAgeDays is the age past which rotated files are removed.
	logMaxAgeDays = 28
)

// Options selects the log destinations and verbosity.
type Options struct {
	// Verbosity is the repeat count of the -v flag. 0 logs at Info,
	// anything higher at Debug.
	Verbosity int

	// FilePath, when non-empty, mirrors the log to a rotating file at
	// this path. The file always receives Debug detail.
	FilePath string
}

// New creates the process logger. Console output goes to stderr with color
// when stderr is a terminal.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbosity >= 1 {
		level = slog.LevelDebug
	}

	console := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	if opts.FilePath == "" {
		return slog.New(console)
	}

	file := slog.NewTextHandler(&lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
	}, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(newMultiHandler(console, file))
}

// multiHandler forwards records to every child handler.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle implements slog.Handler.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error

	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if e := handler.Handle(ctx, r); e != nil {
				err = e
			}
		}
	}

	return err
}

// WithAttrs implements slog.Handler.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}

	return newMultiHandler(handlers...)
}

// WithGroup implements slog.Handler.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}

	return newMultiHandler(handlers...)
}
