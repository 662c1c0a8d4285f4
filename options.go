package courier

import (
	"math/rand"
	"time"

	"github.com/gojek/courier-iot/backoff"
	"github.com/gojek/courier-iot/metrics"
)

// ClientOption allows to configure the behaviour of a Controller.
type ClientOption interface{ apply(*controllerOptions) }

// WithIdentity sets the Identity the session connects as.
func WithIdentity(identity Identity) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.identity = identity
	})
}

// WithTransport sets the Transport used to talk to the broker.
func WithTransport(transport Transport) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.transport = transport
	})
}

// WithCustomMetrics allows to configure the metrics collector of choice.
func WithCustomMetrics(collector metrics.Collector) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.metricsCollector = collector
	})
}

// WithBackoff sets the reconnect backoff bounds. The current delay starts at minDelay.
func WithBackoff(minDelay, maxDelay time.Duration, factor float64, jitter time.Duration) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.backoff = backoff.State{Delay: minDelay, Min: minDelay, Max: maxDelay, Factor: factor, Jitter: jitter}
	})
}

// WithJitterSource sets the random source used for backoff jitter.
func WithJitterSource(j backoff.Jitterer) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.jitter = j
	})
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.now = now
	})
}

// WithConnectNotifications sets whether a "connected" state and event are
// published after every successful connection. Default true.
func WithConnectNotifications(enabled bool) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.connectNotifications = enabled
	})
}

// WithLTS selects the long-term-support broker hostname.
func WithLTS(enabled bool) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.useLTS = enabled
	})
}

// With443Port selects port 443 instead of the default MQTT port.
func With443Port(enabled bool) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.use443Port = enabled
	})
}

// WithBrokerHost overrides the broker hostname, taking precedence over WithLTS.
func WithBrokerHost(host string) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.brokerHost = host
	})
}

// WithUsername sets the username sent with every connection.
// The broker ignores it, the token travels as the password.
func WithUsername(username string) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.username = username
	})
}

// WithCleanSession will set the "clean session" flag in the connect message
// when this client connects to an MQTT broker. By setting this flag, you are
// indicating that no messages saved by the broker for this client should be
// delivered.
func WithCleanSession(cleanSession bool) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.cleanSession = cleanSession
	})
}

// WithInboxSize sets the capacity of the inbound message channel.
func WithInboxSize(size int) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		if size > 0 {
			o.inboxSize = size
		}
	})
}

// WithTickInterval sets how often Run calls Tick.
func WithTickInterval(interval time.Duration) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		if interval > 0 {
			o.tickInterval = interval
		}
	})
}

type controllerOptions struct {
	identity           Identity
	credentialProvider CredentialProvider
	transport          Transport
	logger             Logger
	metricsCollector   metrics.Collector

	backoff backoff.State
	jitter  backoff.Jitterer
	now     func() time.Time

	connectNotifications, useLTS, use443Port,
	cleanSession bool

	brokerHost, username string

	inboxSize    int
	tickInterval time.Duration
}

type optionFunc func(*controllerOptions)

func (f optionFunc) apply(o *controllerOptions) { f(o) }

func defaultControllerOptions() *controllerOptions {
	return &controllerOptions{
		logger:               defaultLogger,
		metricsCollector:     metrics.Noop{},
		backoff:              backoff.Default(),
		jitter:               rand.New(rand.NewSource(time.Now().UnixNano())),
		now:                  time.Now,
		connectNotifications: true,
		cleanSession:         true,
		username:             "unused",
		inboxSize:            16,
		tickInterval:         time.Second,
	}
}
