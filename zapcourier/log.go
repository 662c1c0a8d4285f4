// Package zapcourier adapts a *zap.Logger to courier.Logger.
package zapcourier

import (
	"context"

	"go.uber.org/zap"

	courier "github.com/gojek/courier-iot"
)

// New returns a courier.Logger writing to l.
func New(l *zap.Logger) courier.Logger {
	return &zapWrapper{log: l}
}

var _ courier.Logger = (*zapWrapper)(nil)

type zapWrapper struct {
	log *zap.Logger
}

func (zw *zapWrapper) Error(_ context.Context, err error, attrs map[string]any) {
	zw.log.Error(err.Error(), append(fields(attrs), zap.Error(err))...)
}

func (zw *zapWrapper) Warn(_ context.Context, msg string, attrs map[string]any) {
	zw.log.Warn(msg, fields(attrs)...)
}

func (zw *zapWrapper) Info(_ context.Context, msg string, attrs map[string]any) {
	zw.log.Info(msg, fields(attrs)...)
}

func (zw *zapWrapper) Debug(_ context.Context, msg string, attrs map[string]any) {
	zw.log.Debug(msg, fields(attrs)...)
}

func fields(attrs map[string]any) []zap.Field {
	fs := make([]zap.Field, 0, len(attrs)+1)

	for k, v := range attrs {
		fs = append(fs, zap.Any(k, v))
	}

	return fs
}
