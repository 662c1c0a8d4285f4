package paho

import (
	"crypto/tls"
	"time"

	courier "github.com/gojek/courier-iot"
)

// Option allows to configure the behaviour of a Transport.
type Option interface{ apply(*options) }

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithTLS sets the TLS configuration to be used while connecting to an MQTT broker.
// Without it the connection is plain TCP.
func WithTLS(tlsConfig *tls.Config) Option {
	return optionFunc(func(o *options) {
		o.tlsConfig = tlsConfig
	})
}

// WithKeepAlive will set the amount of time that the client should wait
// before sending a PING request to the broker.
func WithKeepAlive(duration time.Duration) Option {
	return optionFunc(func(o *options) {
		o.keepAlive = duration
	})
}

// WithConnectTimeout limits how long a connection attempt may take when the
// context passed to Connect carries no deadline. Default 15 seconds.
func WithConnectTimeout(duration time.Duration) Option {
	return optionFunc(func(o *options) {
		o.connectTimeout = duration
	})
}

// WithWriteTimeout limits how long the transport will wait for a publish or subscribe to complete.
func WithWriteTimeout(duration time.Duration) Option {
	return optionFunc(func(o *options) {
		o.writeTimeout = duration
	})
}

// WithGracefulShutdownPeriod sets the limit that is allowed for existing work to be completed on Disconnect.
func WithGracefulShutdownPeriod(duration time.Duration) Option {
	return optionFunc(func(o *options) {
		o.gracefulShutdownPeriod = duration
	})
}

// WithLogger routes both transport and paho library logs to l.
func WithLogger(l courier.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

type options struct {
	tlsConfig *tls.Config

	keepAlive, connectTimeout, writeTimeout,
	gracefulShutdownPeriod time.Duration

	logger courier.Logger
}

func defaultOptions() *options {
	return &options{
		keepAlive:              60 * time.Second,
		connectTimeout:         15 * time.Second,
		writeTimeout:           10 * time.Second,
		gracefulShutdownPeriod: 250 * time.Millisecond,
	}
}
