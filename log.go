package courier

import (
	"context"
)

// WithLogger sets the Logger to use for the Controller.
func WithLogger(l Logger) ClientOption { return optionFunc(func(o *controllerOptions) { o.logger = l }) }

// Logger is the interface that wraps the Error, Warn, Info and Debug methods.
type Logger interface {
	Error(ctx context.Context, err error, attrs map[string]any)
	Warn(ctx context.Context, msg string, attrs map[string]any)
	Info(ctx context.Context, msg string, attrs map[string]any)
	Debug(ctx context.Context, msg string, attrs map[string]any)
}

var defaultLogger Logger = noOpLogger{}

type noOpLogger struct{}

func (noOpLogger) Error(context.Context, error, map[string]any)  {}
func (noOpLogger) Warn(context.Context, string, map[string]any)  {}
func (noOpLogger) Info(context.Context, string, map[string]any)  {}
func (noOpLogger) Debug(context.Context, string, map[string]any) {}
