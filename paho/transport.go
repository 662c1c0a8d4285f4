// Package paho implements courier.Transport on top of the paho MQTT client.
//
// Automatic reconnection inside paho is disabled: the courier.Controller decides
// when to reconnect, so that every attempt carries a fresh token and respects the
// device backoff policy.
package paho

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	mqtt "github.com/gojek/paho.mqtt.golang"
	"github.com/gojek/paho.mqtt.golang/packets"

	courier "github.com/gojek/courier-iot"
	"github.com/gojek/courier-iot/diagnostics"
)

var newClientFunc = mqtt.NewClient

const subscribeFailure = 0x80

// Transport is a courier.Transport backed by a paho mqtt.Client. A new
// mqtt.Client is created for every connection attempt.
type Transport struct {
	options *options

	mu      sync.RWMutex
	client  mqtt.Client
	lastErr diagnostics.TransportError
	rc      diagnostics.ReturnCode
}

var _ courier.Transport = (*Transport)(nil)

// New creates a Transport with the Option(s) provided.
func New(opts ...Option) *Transport {
	o := defaultOptions()

	for _, opt := range opts {
		opt.apply(o)
	}

	if o.logger != nil {
		installPahoLoggers(o.logger)
	} else {
		o.logger = nopLogger{}
	}

	return &Transport{options: o}
}

// Connect replaces any previous client with a new one and performs the MQTT handshake.
func (t *Transport) Connect(ctx context.Context, p courier.ConnectParams) bool {
	if old := t.current(); old != nil && old.IsConnected() {
		old.Disconnect(uint(t.options.gracefulShutdownPeriod / time.Millisecond))
	}

	c := newClientFunc(t.toClientOptions(p))
	t.setClient(c)

	tk := c.Connect()
	if err := t.waitForToken(ctx, tk, t.options.connectTimeout); err != nil {
		// paho may still complete the handshake after we stop waiting
		c.Disconnect(0)
		t.setClient(nil)
		t.setResult(timeoutOrRead(err), diagnostics.ConnectionAccepted)

		return false
	}

	if err := tk.Error(); err != nil {
		te, rc := classifyConnectError(tk, err)
		t.setResult(te, rc)

		return false
	}

	t.setResult(diagnostics.NoError, diagnostics.ConnectionAccepted)

	return c.IsConnectionOpen()
}

// IsConnected reports whether the current client has an open connection.
func (t *Transport) IsConnected() bool {
	c := t.current()

	return c != nil && c.IsConnectionOpen()
}

// Disconnect ends the current session.
func (t *Transport) Disconnect() {
	c := t.current()
	if c == nil {
		return
	}

	c.Disconnect(uint(t.options.gracefulShutdownPeriod / time.Millisecond))
	t.setClient(nil)
}

// Subscribe subscribes handler to topic and waits for the SUBACK.
func (t *Transport) Subscribe(topic string, qos courier.QOSLevel, handler courier.MessageHandler) bool {
	c := t.current()
	if c == nil {
		t.setError(diagnostics.NetworkFailedWrite)

		return false
	}

	tk := c.Subscribe(topic, byte(qos), func(_ mqtt.Client, m mqtt.Message) {
		handler(courier.Message{
			ID:        m.MessageID(),
			Topic:     m.Topic(),
			Payload:   m.Payload(),
			QoS:       courier.QOSLevel(m.Qos()),
			Duplicate: m.Duplicate(),
			Retained:  m.Retained(),
		})
	})

	if !tk.WaitTimeout(t.options.writeTimeout) {
		t.setError(diagnostics.NetworkTimeout)

		return false
	}

	if err := tk.Error(); err != nil {
		t.setError(diagnostics.FailedSubscription)

		return false
	}

	if st, ok := tk.(interface{ Result() map[string]byte }); ok && st.Result()[topic] == subscribeFailure {
		t.setError(diagnostics.FailedSubscription)

		return false
	}

	t.setError(diagnostics.NoError)

	return true
}

// Publish sends payload to topic and waits until paho reports the publish
// complete, which for QoS 1 includes the PUBACK.
func (t *Transport) Publish(topic string, payload []byte, retained bool, qos courier.QOSLevel) bool {
	c := t.current()
	if c == nil || !c.IsConnectionOpen() {
		t.setError(diagnostics.NetworkFailedWrite)

		return false
	}

	tk := c.Publish(topic, byte(qos), retained, payload)
	if !tk.WaitTimeout(t.options.writeTimeout) {
		t.setError(diagnostics.NetworkTimeout)

		return false
	}

	if err := tk.Error(); err != nil {
		t.options.logger.Debug(context.Background(), "publish failed", map[string]any{"topic": topic, "error": err.Error()})
		t.setError(diagnostics.NetworkFailedWrite)

		return false
	}

	t.setError(diagnostics.NoError)

	return true
}

// LastError returns the error recorded by the most recent operation.
func (t *Transport) LastError() diagnostics.TransportError {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.lastErr
}

// ReturnCode returns the CONNACK code of the most recent connection attempt.
func (t *Transport) ReturnCode() diagnostics.ReturnCode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.rc
}

// Pump is a no-op: paho services keepalive and inbound packets on its own goroutines.
func (t *Transport) Pump() {}

func (t *Transport) current() mqtt.Client {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.client
}

func (t *Transport) setClient(c mqtt.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.client = c
}

func (t *Transport) setError(e diagnostics.TransportError) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastErr = e
}

func (t *Transport) setResult(e diagnostics.TransportError, rc diagnostics.ReturnCode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastErr, t.rc = e, rc
}

func (t *Transport) waitForToken(ctx context.Context, tk mqtt.Token, timeout time.Duration) error {
	if _, ok := ctx.Deadline(); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.Done():
			return nil
		}
	}

	if !tk.WaitTimeout(timeout) {
		return courier.ErrConnectTimeout
	}

	return nil
}

func (t *Transport) toClientOptions(p courier.ConnectParams) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(formatAddressWithProtocol(p.Broker, t.options)).
		SetClientID(p.ClientID).
		SetUsername(p.Username).
		SetPassword(p.Password).
		SetCleanSession(p.CleanSession).
		SetProtocolVersion(4).
		SetTLSConfig(t.options.tlsConfig).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(t.options.keepAlive).
		SetConnectTimeout(t.options.connectTimeout).
		SetConnectionLostHandler(t.connectionLostHandler())
}

func (t *Transport) connectionLostHandler() mqtt.ConnectionLostHandler {
	return func(_ mqtt.Client, err error) {
		t.options.logger.Warn(context.Background(), "connection lost", map[string]any{"error": fmt.Sprint(err)})
		t.setError(timeoutOrRead(err))
	}
}

func formatAddressWithProtocol(addr courier.TCPAddress, o *options) string {
	if o.tlsConfig != nil {
		return fmt.Sprintf("tls://%s", addr)
	}

	return fmt.Sprintf("tcp://%s", addr)
}

// classifyConnectError maps a failed connect token to the transport error and
// broker return code. Without a CONNACK the return code stays ConnectionAccepted.
func classifyConnectError(tk mqtt.Token, err error) (diagnostics.TransportError, diagnostics.ReturnCode) {
	rc := byte(packets.ErrNetworkError)
	if ct, ok := tk.(interface{ ReturnCode() byte }); ok {
		rc = ct.ReturnCode()
	}

	switch {
	case rc == packets.Accepted:
		return diagnostics.NetworkFailedConnect, diagnostics.ConnectionAccepted
	case rc == packets.ErrNetworkError:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return diagnostics.NetworkTimeout, diagnostics.ConnectionAccepted
		}

		return diagnostics.NetworkFailedConnect, diagnostics.ConnectionAccepted
	case rc == packets.ErrProtocolViolation:
		return diagnostics.MissingOrWrongPacket, diagnostics.ConnectionAccepted
	case rc <= byte(diagnostics.NotAuthorized):
		return diagnostics.ConnectionDenied, diagnostics.ReturnCode(rc)
	default:
		return diagnostics.ConnectionDenied, diagnostics.UnknownReturnCode
	}
}

func timeoutOrRead(err error) diagnostics.TransportError {
	var ne net.Error
	if errors.Is(err, courier.ErrConnectTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return diagnostics.NetworkTimeout
	}

	return diagnostics.NetworkFailedRead
}
