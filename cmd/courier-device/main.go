// Command courier-device keeps a device session with a Cloud IoT Core style
// MQTT bridge alive and logs the configuration and commands it receives.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	courier "github.com/gojek/courier-iot"
	"github.com/gojek/courier-iot/credentials"
	"github.com/gojek/courier-iot/metrics"
	"github.com/gojek/courier-iot/paho"
	courierslog "github.com/gojek/courier-iot/slog"
	"github.com/gojek/courier-iot/zapcourier"
)

const defaultEnvPath = ".env"

var (
	isDebugArg = flag.Bool("debug", false, "Enable debug logging")
	envPathArg = flag.String("env", defaultEnvPath, "Path to the environment file")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envPathArg); err != nil && !(errors.Is(err, os.ErrNotExist) && *envPathArg == defaultEnvPath) {
		fmt.Fprintf(os.Stderr, "load environment: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(*isDebugArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(finish(logger, run(logger, *isDebugArg)))
}

// finish flushes logger and returns the process exit code for err.
func finish(logger *zap.Logger, err error) int {
	if err != nil {
		logger.Error("courier-device stopped", zap.Error(err))
	}

	_ = logger.Sync()

	if err != nil {
		return 1
	}

	return 0
}

func run(logger *zap.Logger, debug bool) error {
	path := os.Getenv(keyConfigFile)
	if path == "" {
		path = "config.yaml"
	}

	conf, err := loadConfig(path)
	if err != nil {
		return err
	}

	logger.Debug("configuration loaded", zap.String("path", path), zap.String("device", conf.Device.ID))

	tlsConfig, err := newTLSConfig(conf.Broker)
	if err != nil {
		return err
	}

	clog := newSessionLogger(conf.LogFormat, logger, os.Stderr, debug)

	transportOpts := []paho.Option{paho.WithLogger(clog)}
	if tlsConfig != nil {
		transportOpts = append(transportOpts, paho.WithTLS(tlsConfig))
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheus()

	if err := m.AddToRegistry(reg); err != nil {
		return err
	}

	c, err := courier.NewController(
		courier.WithIdentity(courier.Device{
			ProjectID:  conf.Device.ProjectID,
			Region:     conf.Device.Region,
			RegistryID: conf.Device.RegistryID,
			ID:         conf.Device.ID,
		}),
		courier.WithCredentialProvider(credentials.NewFile(conf.TokenFile, credentials.WithLifetime(conf.TokenLifetime))),
		courier.WithTransport(paho.New(transportOpts...)),
		courier.WithLogger(clog),
		courier.WithCustomMetrics(m),
		courier.WithBackoff(conf.Backoff.Min, conf.Backoff.Max, conf.Backoff.Factor, conf.Backoff.Jitter),
		courier.WithLTS(conf.Broker.UseLTS),
		courier.With443Port(conf.Broker.Use443),
		courier.WithBrokerHost(conf.Broker.Host),
		courier.WithConnectNotifications(conf.notifications()),
		courier.WithTickInterval(conf.TickInterval),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/session", c.TelemetryHandler())

	srv := &http.Server{
		Addr:              conf.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting session", zap.String("client_id", c.SessionInfo().ClientID), zap.String("broker", c.BrokerAddress().String()))

	runErr := c.Run(ctx, handleMessage(logger))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return errors.Join(runErr, srv.Shutdown(shutdownCtx))
}

func handleMessage(logger *zap.Logger) courier.MessageHandler {
	return func(m courier.Message) {
		logger.Info("message received",
			zap.String("topic", m.Topic),
			zap.Uint8("qos", uint8(m.QoS)),
			zap.Bool("retained", m.Retained),
			zap.ByteString("payload", m.Payload),
		)
	}
}

// newSessionLogger returns the logger used by the session and transport.
// format is validated by loadConfig.
func newSessionLogger(format string, zl *zap.Logger, w io.Writer, debug bool) courier.Logger {
	if format != logFormatSlog {
		return zapcourier.New(zl)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return courierslog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		conf := zap.NewDevelopmentConfig()
		conf.Encoding = "console"
		conf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		return conf.Build()
	}

	conf := zap.NewProductionConfig()
	conf.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return conf.Build()
}

func newTLSConfig(b BrokerConfig) (*tls.Config, error) {
	if b.Insecure {
		return nil, nil
	}

	conf := &tls.Config{MinVersion: tls.VersionTLS12}

	if b.CACertFile == "" {
		return conf, nil
	}

	pem, err := os.ReadFile(b.CACertFile)
	if err != nil {
		return nil, fmt.Errorf("read ca cert: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", b.CACertFile)
	}

	conf.RootCAs = pool

	return conf, nil
}
