// Package slog adapts a log/slog.Handler to courier.Logger.
//
// Attributes are emitted sorted by key so that the same event always renders
// the same way, which keeps diagnostics greppable on constrained devices that
// ship plain text logs.
package slog

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	courier "github.com/gojek/courier-iot"
)

// New returns a courier.Logger that writes records to h.
func New(h slog.Handler) courier.Logger {
	return &handlerLogger{log: slog.New(h)}
}

var _ courier.Logger = (*handlerLogger)(nil)

type handlerLogger struct {
	log *slog.Logger
}

func (hl *handlerLogger) Error(ctx context.Context, err error, attrs map[string]any) {
	msg := "error"
	if err != nil {
		msg = err.Error()
	}

	hl.emit(ctx, slog.LevelError, msg, attrs)
}

func (hl *handlerLogger) Warn(ctx context.Context, msg string, attrs map[string]any) {
	hl.emit(ctx, slog.LevelWarn, msg, attrs)
}

func (hl *handlerLogger) Info(ctx context.Context, msg string, attrs map[string]any) {
	hl.emit(ctx, slog.LevelInfo, msg, attrs)
}

func (hl *handlerLogger) Debug(ctx context.Context, msg string, attrs map[string]any) {
	hl.emit(ctx, slog.LevelDebug, msg, attrs)
}

func (hl *handlerLogger) emit(ctx context.Context, level slog.Level, msg string, attrs map[string]any) {
	if !hl.log.Enabled(ctx, level) {
		return
	}

	out := make([]slog.Attr, 0, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		out = append(out, slog.Any(k, attrs[k]))
	}

	hl.log.LogAttrs(ctx, level, msg, out...)
}
