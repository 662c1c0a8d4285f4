package courier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/gojek/courier-iot/diagnostics"
	"github.com/gojek/courier-iot/metrics"
)

// Controller owns the lifecycle of a single authenticated device session.
//
// It is driven by periodic calls to Tick from one goroutine. Tick decides whether
// the token must be refreshed and whether a reconnect is due, and otherwise lets
// the Transport service the connection. Connect and the publish operations block
// only as long as the Transport does.
type Controller struct {
	options *controllerOptions
	topics  topicSet

	state State
	mu    sync.RWMutex

	inbox    chan Message
	inboxMu  sync.RWMutex
	inboxEOF bool
}

type topicSet struct {
	config, commands, events, state string
}

type subscription struct {
	topic string
	qos   QOSLevel
}

// NewController creates the Controller with the ClientOption(s) provided.
// WithIdentity, WithCredentialProvider and WithTransport are required.
func NewController(opts ...ClientOption) (*Controller, error) {
	co := defaultControllerOptions()

	for _, opt := range opts {
		opt.apply(co)
	}

	if co.identity == nil {
		return nil, ErrIdentityRequired
	}

	if co.credentialProvider == nil {
		return nil, ErrCredentialProviderRequired
	}

	if co.transport == nil {
		return nil, ErrTransportRequired
	}

	if err := co.backoff.Validate(); err != nil {
		return nil, err
	}

	return &Controller{
		options: co,
		topics: topicSet{
			config:   co.identity.ConfigTopic(),
			commands: co.identity.CommandsTopic(),
			events:   co.identity.EventsTopic(),
			state:    co.identity.StateTopic(),
		},
		state: State{Status: Disconnected, Backoff: co.backoff},
		inbox: make(chan Message, co.inboxSize),
	}, nil
}

// State returns a snapshot of the current session state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

func (c *Controller) commit(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
}

// IsConnected checks whether the transport reports an open session.
func (c *Controller) IsConnected() bool {
	return c.options.transport.IsConnected()
}

// Messages returns the channel inbound messages are delivered on.
// It is closed by Stop.
func (c *Controller) Messages() <-chan Message {
	return c.inbox
}

// Tick advances the session by one step. When the held token has expired it is
// discarded and a reconnect is forced. When the transport is down and the
// current backoff delay has elapsed since the last attempt, a reconnect is made.
// Otherwise the transport is pumped once.
func (c *Controller) Tick(ctx context.Context) {
	c.commit(c.tick(ctx, c.State()))
}

// Connect makes one connection attempt and reports whether it succeeded.
// It never retries, the next attempt is left to a later Tick.
func (c *Controller) Connect(ctx context.Context) bool {
	s, ok := c.connect(ctx, c.State())
	c.commit(s)

	return ok
}

func (c *Controller) tick(ctx context.Context, s State) State {
	now := c.options.now()
	t := c.options.transport
	connected := t.IsConnected()

	if s.Status == Connected && !connected {
		c.options.logger.Warn(ctx, "connection lost", map[string]any{"client_id": c.options.identity.ClientID()})
		s.Status = Disconnected
	}

	if connected && s.Status != Connected {
		// a handshake finished after its attempt was given up on, nothing was
		// subscribed for it
		c.options.logger.Warn(ctx, "dropping session left over from a failed attempt", map[string]any{
			"client_id": c.options.identity.ClientID(),
		})

		t.Disconnect()
		connected = false
	}

	if s.Token.Expired(now) {
		c.options.logger.Info(ctx, "reconnecting before token expiration", map[string]any{
			"expires_at": s.Token.ExpiresAt,
		})

		s.Token = Token{}

		if connected {
			t.Disconnect()
		}

		s.Status = Disconnected
		s, _ = c.connect(ctx, s)

		return s
	}

	if !connected && s.Backoff.Elapsed(s.LastAttempt, now) {
		c.options.logger.Info(ctx, "reconnecting with backoff", map[string]any{
			"backoff": s.Backoff.Delay.String(),
		})

		s, _ = c.connect(ctx, s)

		return s
	}

	t.Pump()

	return s
}

func (c *Controller) connect(ctx context.Context, s State) (State, bool) {
	o := c.options
	t := o.transport
	start := o.now()

	if !s.Token.Valid() {
		tok, err := c.mintToken(ctx, start)
		if err != nil {
			s.LastAttempt = start
			s.Status = Disconnected
			s.Backoff = s.Backoff.Increase(o.jitter)

			d := diagnostics.Classify(diagnostics.TokenUnavailable, diagnostics.ConnectionAccepted)
			c.report(ctx, s, &ConnectError{Diagnosis: d, Err: err})
			c.recordConnect(start, s, &d)

			return s, false
		}

		s.Token = tok
	}

	s.LastAttempt = start
	s.Status = Connecting

	addr := c.BrokerAddress()
	o.logger.Debug(ctx, "connecting", map[string]any{
		"broker":    addr.String(),
		"client_id": o.identity.ClientID(),
	})

	ok := t.Connect(ctx, ConnectParams{
		Broker:       addr,
		ClientID:     o.identity.ClientID(),
		Username:     o.username,
		Password:     s.Token.Value,
		CleanSession: o.cleanSession,
	})

	if ok && t.IsConnected() && t.LastError() == diagnostics.NoError {
		s.Backoff = s.Backoff.Reset()
		s.Status = Connected

		o.logger.Info(ctx, "connected", map[string]any{"broker": addr.String()})
		c.recordConnect(start, s, nil)

		c.subscribe(ctx)
		c.onConnect(ctx)

		return s, true
	}

	transportErr := t.LastError()
	if transportErr == diagnostics.NoError {
		// the transport refused without recording why, which in practice
		// means the socket or TLS handshake never completed
		transportErr = diagnostics.NetworkFailedConnect
	}

	d := diagnostics.Classify(transportErr, t.ReturnCode())
	if d.InvalidateToken {
		s.Token = Token{}
	}

	s.Backoff = s.Backoff.Increase(o.jitter)
	s.Status = Disconnected

	c.report(ctx, s, &ConnectError{Diagnosis: d})
	c.recordConnect(start, s, &d)

	return s, false
}

func (c *Controller) mintToken(ctx context.Context, now time.Time) (Token, error) {
	start := time.Now()
	tok, err := c.options.credentialProvider.MintToken(ctx)

	r := metrics.Result{OpType: metrics.TokenMintOp, Attempts: 1, RunDuration: time.Since(start)}
	defer func() { c.options.metricsCollector.Update(r) }()

	if err != nil {
		r.Errors = 1

		return Token{}, fmt.Errorf("courier: mint token: %w", err)
	}

	if tok.Value == "" {
		r.Errors = 1

		return Token{}, ErrEmptyToken
	}

	if tok.IssuedAt.IsZero() {
		tok.IssuedAt = now
	}

	if tok.Expired(now) {
		r.Errors = 1

		return Token{}, fmt.Errorf("%w: expired at %s", ErrTokenExpired, tok.ExpiresAt.Format(time.RFC3339))
	}

	r.Successes = 1

	c.options.logger.Debug(ctx, "token minted", map[string]any{
		"issued_at":  tok.IssuedAt,
		"expires_at": tok.ExpiresAt,
	})

	return tok, nil
}

func (c *Controller) subscriptions() []subscription {
	return []subscription{
		// QoS 1 (ack) for configuration messages
		{topic: c.topics.config, qos: QOSOne},
		// QoS 0 (no ack) for commands
		{topic: c.topics.commands, qos: QOSZero},
	}
}

func (c *Controller) subscribe(ctx context.Context) {
	t := c.options.transport

	var errs *multierror.Error

	for _, sub := range c.subscriptions() {
		start := time.Now()
		ok := t.Subscribe(sub.topic, sub.qos, c.enqueue)

		r := metrics.Result{OpType: metrics.SubscribeOp, Attempts: 1, RunDuration: time.Since(start)}
		if ok {
			r.Successes = 1
		} else {
			r.Errors = 1
			errs = multierror.Append(errs, fmt.Errorf("%w: %s: %s", ErrSubscribeFailed, sub.topic, t.LastError()))
		}

		c.options.metricsCollector.Update(r)
	}

	if err := errs.ErrorOrNil(); err != nil {
		c.options.logger.Error(ctx, err, map[string]any{"client_id": c.options.identity.ClientID()})
	}
}

func (c *Controller) onConnect(ctx context.Context) {
	if !c.options.connectNotifications {
		return
	}

	if !c.PublishState(ctx, []byte("connected")) {
		c.options.logger.Warn(ctx, "could not publish connected state", nil)
	}

	if !c.PublishTelemetry(ctx, []byte(c.options.identity.DeviceID()+"-connected")) {
		c.options.logger.Warn(ctx, "could not publish connected event", nil)
	}
}

func (c *Controller) enqueue(m Message) {
	c.inboxMu.RLock()
	defer c.inboxMu.RUnlock()

	if c.inboxEOF {
		return
	}

	select {
	case c.inbox <- m:
	default:
		c.options.logger.Warn(context.Background(), "inbox full, dropping message", map[string]any{
			"topic": m.Topic,
		})
	}
}

// Stop publishes a "disconnected" state when connect notifications are enabled,
// closes the transport session and closes the Messages channel.
func (c *Controller) Stop(ctx context.Context) {
	s := c.State()

	if c.options.transport.IsConnected() {
		if c.options.connectNotifications {
			_ = c.PublishState(ctx, []byte("disconnected"))
		}

		c.options.transport.Disconnect()
	}

	s.Status = Disconnected
	c.commit(s)

	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()

	if !c.inboxEOF {
		c.inboxEOF = true
		close(c.inbox)
	}
}

// SetConnectNotifications enables or disables the connected state and event
// published after every successful connection.
func (c *Controller) SetConnectNotifications(enabled bool) { c.options.connectNotifications = enabled }

// SetUseLTS selects the long-term-support broker hostname from the next connection attempt on.
func (c *Controller) SetUseLTS(enabled bool) { c.options.useLTS = enabled }

// SetUse443Port selects port 443 from the next connection attempt on.
func (c *Controller) SetUse443Port(enabled bool) { c.options.use443Port = enabled }

// BrokerAddress returns the broker the next connection attempt will use.
func (c *Controller) BrokerAddress() TCPAddress { return brokerAddress(c.options) }
