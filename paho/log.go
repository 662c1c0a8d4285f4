package paho

import (
	"context"
	"fmt"
	"sync"

	mqtt "github.com/gojek/paho.mqtt.golang"

	courier "github.com/gojek/courier-iot"
)

type logLevel int

const (
	debugLevel logLevel = iota
	warnLevel
	errorLevel
)

type pahoLogger struct {
	logger courier.Logger
	level  logLevel
}

func (l *pahoLogger) Println(v ...interface{}) {
	l.log(fmt.Sprint(v...))
}

func (l *pahoLogger) Printf(format string, v ...interface{}) {
	l.log(fmt.Sprintf(format, v...))
}

func (l *pahoLogger) log(msg string) {
	attrs := map[string]any{"component": "paho"}

	switch l.level {
	case errorLevel:
		l.logger.Error(context.Background(), fmt.Errorf("%s", msg), attrs)
	case warnLevel:
		l.logger.Warn(context.Background(), msg, attrs)
	case debugLevel:
		l.logger.Debug(context.Background(), msg, attrs)
	}
}

var installOnce sync.Once

// installPahoLoggers points the paho package level loggers at l. paho keeps
// them as globals, so only the first Transport with a logger wins.
func installPahoLoggers(l courier.Logger) {
	installOnce.Do(func() {
		mqtt.CRITICAL = &pahoLogger{logger: l, level: errorLevel}
		mqtt.ERROR = &pahoLogger{logger: l, level: errorLevel}
		mqtt.WARN = &pahoLogger{logger: l, level: warnLevel}
		mqtt.DEBUG = &pahoLogger{logger: l, level: debugLevel}
	})
}

type nopLogger struct{}

func (nopLogger) Error(context.Context, error, map[string]any)  {}
func (nopLogger) Warn(context.Context, string, map[string]any)  {}
func (nopLogger) Info(context.Context, string, map[string]any)  {}
func (nopLogger) Debug(context.Context, string, map[string]any) {}
