package courier

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/gojek/courier-iot/backoff"
	"github.com/gojek/courier-iot/diagnostics"
	"github.com/gojek/courier-iot/metrics"
)

type ControllerSuite struct {
	suite.Suite

	ctx       context.Context
	clock     *fakeClock
	provider  *mockCredentialProvider
	transport *fakeTransport
	logger    *recordingLogger
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: testEpoch}
	s.provider = &mockCredentialProvider{}
	s.provider.Test(s.T())
	s.transport = newFakeTransport()
	s.logger = &recordingLogger{}
}

func (s *ControllerSuite) TearDownTest() {
	s.provider.AssertExpectations(s.T())
}

func (s *ControllerSuite) newController(opts ...ClientOption) *Controller {
	c, err := NewController(append([]ClientOption{
		WithIdentity(testDevice),
		WithCredentialProvider(s.provider),
		WithTransport(s.transport),
		WithLogger(s.logger),
		WithClock(s.clock.Now),
		WithJitterSource(zeroJitter{}),
		WithBackoff(time.Second, time.Minute, 2.5, 500*time.Millisecond),
	}, opts...)...)
	s.Require().NoError(err)

	return c
}

func (s *ControllerSuite) token(value string, lifetime time.Duration) Token {
	now := s.clock.Now()

	return Token{Value: value, IssuedAt: now, ExpiresAt: now.Add(lifetime)}
}

func (s *ControllerSuite) connectErrors() []*ConnectError {
	var out []*ConnectError

	for _, e := range s.logger.errors() {
		var ce *ConnectError
		if errors.As(e.err, &ce) {
			out = append(out, ce)
		}
	}

	return out
}

func (s *ControllerSuite) TestNewController() {
	tests := []struct {
		name    string
		opts    []ClientOption
		wantErr error
	}{
		{
			name:    "MissingIdentity",
			opts:    []ClientOption{WithCredentialProvider(s.provider), WithTransport(s.transport)},
			wantErr: ErrIdentityRequired,
		},
		{
			name:    "MissingCredentialProvider",
			opts:    []ClientOption{WithIdentity(testDevice), WithTransport(s.transport)},
			wantErr: ErrCredentialProviderRequired,
		},
		{
			name:    "MissingTransport",
			opts:    []ClientOption{WithIdentity(testDevice), WithCredentialProvider(s.provider)},
			wantErr: ErrTransportRequired,
		},
		{
			name: "InvalidBackoff",
			opts: []ClientOption{
				WithIdentity(testDevice), WithCredentialProvider(s.provider), WithTransport(s.transport),
				WithBackoff(time.Minute, time.Second, 2, 0),
			},
			wantErr: backoff.ErrInvalidBounds,
		},
		{
			name: "Success",
			opts: []ClientOption{WithIdentity(testDevice), WithCredentialProvider(s.provider), WithTransport(s.transport)},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			c, err := NewController(tt.opts...)
			if tt.wantErr != nil {
				s.ErrorIs(err, tt.wantErr)
				s.Nil(c)

				return
			}

			s.NoError(err)
			s.Equal(Disconnected, c.State().Status)
			s.Equal(backoff.Default(), c.State().Backoff)
			s.False(c.State().Token.Valid())
		})
	}
}

func (s *ControllerSuite) TestTick_CleanReconnectCycle() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok-1", time.Hour), nil).Once()
	c := s.newController()

	s.Equal(Disconnected, c.State().Status)
	c.Tick(s.ctx)

	st := c.State()
	s.Equal(Connected, st.Status)
	s.Equal(time.Second, st.Backoff.Delay)
	s.Equal(testEpoch, st.LastAttempt)
	s.Equal("tok-1", st.Token.Value)

	s.Equal(ConnectParams{
		Broker:       TCPAddress{Host: DefaultHost, Port: DefaultPort},
		ClientID:     "projects/proj/locations/europe-west1/registries/reg/devices/dev-1",
		Username:     "unused",
		Password:     "tok-1",
		CleanSession: true,
	}, s.transport.params[0])

	s.Equal(map[string]QOSLevel{
		"/devices/dev-1/config":     QOSOne,
		"/devices/dev-1/commands/#": QOSZero,
	}, s.transport.subscriptions)

	s.Equal([]publishedMessage{
		{topic: "/devices/dev-1/state", payload: "connected"},
		{topic: "/devices/dev-1/events", payload: "dev-1-connected"},
	}, s.transport.publishedMessages())

	s.transport.drop()
	s.clock.Advance(time.Second)
	c.Tick(s.ctx)

	s.True(s.logger.has("warn", "connection lost"))
	s.Equal(2, s.transport.connectCount())
	s.Equal(Connected, c.State().Status)
	s.Equal("tok-1", s.transport.params[1].Password)
}

func (s *ControllerSuite) TestTick_RepeatedRejection() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Times(5)

	rejected := connectResult{err: diagnostics.ConnectionDenied, rc: diagnostics.NotAuthorized}
	s.transport = newFakeTransport(rejected, rejected, rejected, rejected, rejected)
	c := s.newController(WithJitterSource(rand.New(rand.NewSource(1))))

	for i := 1; i <= 5; i++ {
		before := c.State().Backoff
		c.Tick(s.ctx)
		after := c.State()

		s.Equal(i, s.transport.connectCount())
		s.Equal(Disconnected, after.Status)
		s.False(after.Token.Valid(), "token must be discarded after a rejection")

		grown := time.Duration(float64(before.Delay) * before.Factor)
		s.GreaterOrEqual(after.Backoff.Delay, minDuration(grown, before.Max))
		s.LessOrEqual(after.Backoff.Delay, minDuration(grown+before.Jitter, before.Max))

		s.clock.Advance(after.Backoff.Delay)
	}

	s.Equal(time.Minute, c.State().Backoff.Delay)

	errs := s.connectErrors()
	s.Len(errs, 5)
	s.Equal(diagnostics.CategoryCredentials, errs[0].Diagnosis.Category)
	s.True(errs[0].Diagnosis.InvalidateToken)
	s.True(s.logger.has("info", "token invalidated, a new one will be minted on the next attempt"))
}

func (s *ControllerSuite) TestTick_RefreshesExpiredToken() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok-1", 10*time.Minute), nil).Once()
	c := s.newController()
	s.Require().True(c.Connect(s.ctx))

	s.clock.Advance(10 * time.Minute)
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok-2", 10*time.Minute), nil).Once()

	c.Tick(s.ctx)

	s.Equal(1, s.transport.disconnects)
	s.Equal(2, s.transport.connectCount())
	s.Equal("tok-2", s.transport.params[1].Password)
	s.Equal("tok-2", c.State().Token.Value)
	s.Equal(Connected, c.State().Status)
}

func (s *ControllerSuite) TestTick_ExpiredTokenIgnoresBackoff() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok-1", time.Minute), nil).Once()
	s.transport = newFakeTransport(connectResult{err: diagnostics.NetworkFailedConnect})
	c := s.newController(WithBackoff(time.Hour, 2*time.Hour, 2, 0))

	c.Tick(s.ctx)
	s.Equal(2*time.Hour, c.State().Backoff.Delay)

	s.clock.Advance(time.Minute)
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok-2", time.Minute), nil).Once()

	c.Tick(s.ctx)

	s.Equal(2, s.transport.connectCount())
	s.Equal(0, s.transport.disconnects)
	s.Equal(Connected, c.State().Status)
}

func (s *ControllerSuite) TestTick_NoPrematureRetry() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	s.transport = newFakeTransport(connectResult{err: diagnostics.NetworkFailedConnect})
	c := s.newController()

	c.Tick(s.ctx)
	s.Equal(1, s.transport.connectCount())
	s.Equal(2500*time.Millisecond, c.State().Backoff.Delay)
	s.True(c.State().Token.Valid(), "network failures keep the token")

	s.clock.Advance(2 * time.Second)
	c.Tick(s.ctx)
	s.Equal(1, s.transport.connectCount())
	s.Equal(1, s.transport.pumps)

	s.clock.Advance(500 * time.Millisecond)
	c.Tick(s.ctx)
	s.Equal(2, s.transport.connectCount())
	s.Equal(Connected, c.State().Status)
}

func (s *ControllerSuite) TestTick_PumpsWhenHealthy() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	c := s.newController()
	s.Require().True(c.Connect(s.ctx))

	c.Tick(s.ctx)
	c.Tick(s.ctx)

	s.Equal(1, s.transport.connectCount())
	s.Equal(2, s.transport.pumps)
}

func (s *ControllerSuite) TestConnect_ResetsBackoffOnSuccess() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	failed := connectResult{err: diagnostics.NetworkTimeout}
	s.transport = newFakeTransport(failed, failed)
	c := s.newController()

	s.False(c.Connect(s.ctx))
	s.False(c.Connect(s.ctx))
	s.Equal(6250*time.Millisecond, c.State().Backoff.Delay)

	s.True(c.Connect(s.ctx))
	s.Equal(time.Second, c.State().Backoff.Delay)

	s.transport.script = []connectResult{failed}
	s.False(c.Connect(s.ctx))
	s.Equal(2500*time.Millisecond, c.State().Backoff.Delay, "growth restarts from the minimum")
}

func (s *ControllerSuite) TestTick_LateHandshakeIsReestablished() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	s.transport = newFakeTransport(connectResult{err: diagnostics.NetworkTimeout})
	c := s.newController()

	s.False(c.Connect(s.ctx))
	s.transport.completeLate()

	s.clock.Advance(time.Minute)
	c.Tick(s.ctx)

	s.Equal(1, s.transport.disconnects)
	s.Equal(2, s.transport.connectCount())
	s.Equal(Connected, c.State().Status)
	s.Equal(time.Second, c.State().Backoff.Delay)
	s.Equal(map[string]QOSLevel{
		"/devices/dev-1/config":     QOSOne,
		"/devices/dev-1/commands/#": QOSZero,
	}, s.transport.subscriptions)
	s.Len(s.transport.publishedMessages(), 2)
	s.True(s.logger.has("warn", "dropping session left over from a failed attempt"))
}

func (s *ControllerSuite) TestTick_LateHandshakeWaitsForBackoff() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	s.transport = newFakeTransport(connectResult{err: diagnostics.NetworkTimeout})
	c := s.newController()

	s.False(c.Connect(s.ctx))
	s.transport.completeLate()

	s.clock.Advance(time.Second)
	c.Tick(s.ctx)

	s.Equal(1, s.transport.disconnects)
	s.Equal(1, s.transport.connectCount())
	s.False(s.transport.IsConnected())
	s.Equal(Disconnected, c.State().Status)
}

func (s *ControllerSuite) TestConnect_ExpiredTokenIsBackedOff() {
	stale := Token{Value: "stale", IssuedAt: testEpoch.Add(-2 * time.Hour), ExpiresAt: testEpoch.Add(-time.Hour)}
	s.provider.On("MintToken", mock.Anything).Return(stale, nil).Twice()
	c := s.newController()

	s.False(c.Connect(s.ctx))
	s.Equal(0, s.transport.connectCount())
	s.Equal(2500*time.Millisecond, c.State().Backoff.Delay)
	s.False(c.State().Token.Valid())

	errs := s.connectErrors()
	s.Require().Len(errs, 1)
	s.Equal(diagnostics.TokenUnavailable, errs[0].Diagnosis.Error)
	s.ErrorIs(errs[0], ErrTokenExpired)

	s.clock.Advance(time.Second)
	c.Tick(s.ctx)
	s.Equal(1, s.transport.pumps, "no attempt before the backoff delay")

	s.clock.Advance(1500 * time.Millisecond)
	c.Tick(s.ctx)
	s.Equal(0, s.transport.connectCount())
	s.Equal(6250*time.Millisecond, c.State().Backoff.Delay)
}

func (s *ControllerSuite) TestConnect_MintFailure() {
	errSigning := errors.New("signing key unavailable")
	s.provider.On("MintToken", mock.Anything).Return(Token{}, errSigning).Once()
	c := s.newController()

	s.False(c.Connect(s.ctx))

	st := c.State()
	s.Equal(0, s.transport.connectCount())
	s.Equal(Disconnected, st.Status)
	s.Equal(testEpoch, st.LastAttempt)
	s.Equal(2500*time.Millisecond, st.Backoff.Delay)

	errs := s.connectErrors()
	s.Require().Len(errs, 1)
	s.Equal(diagnostics.TokenUnavailable, errs[0].Diagnosis.Error)
	s.ErrorIs(errs[0], errSigning)
}

func (s *ControllerSuite) TestConnect_EmptyToken() {
	s.provider.On("MintToken", mock.Anything).Return(Token{ExpiresAt: testEpoch.Add(time.Hour)}, nil).Once()
	c := s.newController()

	s.False(c.Connect(s.ctx))
	s.Equal(0, s.transport.connectCount())

	errs := s.connectErrors()
	s.Require().Len(errs, 1)
	s.ErrorIs(errs[0], ErrEmptyToken)
}

func (s *ControllerSuite) TestConnect_FillsMissingIssuedAt() {
	s.provider.On("MintToken", mock.Anything).Return(Token{Value: "tok"}, nil).Once()
	c := s.newController()

	s.True(c.Connect(s.ctx))
	s.Equal(testEpoch, c.State().Token.IssuedAt)
	s.True(c.State().Token.ExpiresAt.IsZero())
}

func (s *ControllerSuite) TestConnect_UnexplainedFailureIsNetwork() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	s.transport = newFakeTransport(connectResult{})
	c := s.newController()

	s.False(c.Connect(s.ctx))

	errs := s.connectErrors()
	s.Require().Len(errs, 1)
	s.Equal(diagnostics.NetworkFailedConnect, errs[0].Diagnosis.Error)
	s.Equal(diagnostics.CategoryNetwork, errs[0].Diagnosis.Category)
	s.True(c.State().Token.Valid())
}

func (s *ControllerSuite) TestConnect_ReportNeverContainsToken() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("secret-jwt", time.Hour), nil).Once()
	s.transport = newFakeTransport(connectResult{err: diagnostics.ConnectionDenied, rc: diagnostics.BadUsernameOrPassword})
	c := s.newController()

	s.False(c.Connect(s.ctx))

	entries := s.logger.errors()
	s.Require().Len(entries, 1)
	s.NotContains(entries[0].err.Error(), "secret-jwt")

	for _, v := range entries[0].attrs {
		s.NotEqual("secret-jwt", v)
	}

	s.Equal(DefaultHost+":8883", entries[0].attrs["broker"])
	s.Equal(testDevice.ClientID(), entries[0].attrs["client_id"])
	s.Equal("BAD_USERNAME_OR_PASSWORD", entries[0].attrs["return_code"])
}

func (s *ControllerSuite) TestConnect_SubscribeFailureIsNotFatal() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	s.transport.rejectSubscribe["/devices/dev-1/commands/#"] = true
	c := s.newController()

	s.True(c.Connect(s.ctx))
	s.Equal(Connected, c.State().Status)
	s.Contains(s.transport.subscriptions, "/devices/dev-1/config")

	entries := s.logger.errors()
	s.Require().Len(entries, 1)
	s.ErrorIs(entries[0].err, ErrSubscribeFailed)
	s.Contains(entries[0].err.Error(), "/devices/dev-1/commands/#")
}

func (s *ControllerSuite) TestConnect_NotificationsDisabled() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	c := s.newController(WithConnectNotifications(false))

	s.True(c.Connect(s.ctx))
	s.Empty(s.transport.publishedMessages())

	c.SetConnectNotifications(true)
	s.transport.drop()
	s.clock.Advance(time.Second)
	c.Tick(s.ctx)

	s.Len(s.transport.publishedMessages(), 2)
}

func (s *ControllerSuite) TestBrokerAddress() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	c := s.newController()

	s.Equal(TCPAddress{Host: DefaultHost, Port: 8883}, c.BrokerAddress())

	c.SetUseLTS(true)
	s.Equal(TCPAddress{Host: LTSHost, Port: 8883}, c.BrokerAddress())

	c.SetUse443Port(true)
	s.Equal(TCPAddress{Host: LTSHost, Port: 443}, c.BrokerAddress())

	s.True(c.Connect(s.ctx))
	s.Equal(TCPAddress{Host: LTSHost, Port: 443}, s.transport.params[0].Broker)

	o := s.newController(WithLTS(true), WithBrokerHost("broker.local"), With443Port(true))
	s.Equal("broker.local:443", o.BrokerAddress().String())
}

func (s *ControllerSuite) TestMessages() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	c := s.newController(WithInboxSize(1))
	s.Require().True(c.Connect(s.ctx))

	cfg := Message{Topic: "/devices/dev-1/config", Payload: []byte(`{"interval":5}`), QoS: QOSOne}
	s.transport.deliver(cfg)
	s.transport.deliver(Message{Topic: "/devices/dev-1/config", Payload: []byte("dropped")})

	s.Equal(cfg, <-c.Messages())
	s.True(s.logger.has("warn", "inbox full, dropping message"))
}

func (s *ControllerSuite) TestStop() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil).Once()
	c := s.newController()
	s.Require().True(c.Connect(s.ctx))

	c.Stop(s.ctx)

	published := s.transport.publishedMessages()
	s.Equal(publishedMessage{topic: "/devices/dev-1/state", payload: "disconnected"}, published[len(published)-1])
	s.Equal(1, s.transport.disconnects)
	s.Equal(Disconnected, c.State().Status)

	_, ok := <-c.Messages()
	s.False(ok)

	s.NotPanics(func() {
		s.transport.deliver(Message{Topic: "/devices/dev-1/config"})
		c.Stop(s.ctx)
	})
	s.Equal(1, s.transport.disconnects)
}

func (s *ControllerSuite) TestMetrics() {
	s.provider.On("MintToken", mock.Anything).Return(s.token("tok", time.Hour), nil)
	s.transport = newFakeTransport(connectResult{err: diagnostics.ConnectionDenied, rc: diagnostics.NotAuthorized})

	mc := &mockCollector{}
	mc.On("Update", mock.Anything).Return()

	c := s.newController(WithCustomMetrics(mc), WithConnectNotifications(false))

	s.False(c.Connect(s.ctx))
	s.True(c.Connect(s.ctx))

	mc.AssertCalled(s.T(), "Update", mock.MatchedBy(func(r metrics.Result) bool {
		return r.OpType == metrics.ConnectOp && r.Errors == 1 && r.Category == "credentials" &&
			r.Backoff == 2500*time.Millisecond
	}))
	mc.AssertCalled(s.T(), "Update", mock.MatchedBy(func(r metrics.Result) bool {
		return r.OpType == metrics.ConnectOp && r.Successes == 1 && r.Backoff == time.Second
	}))
	mc.AssertCalled(s.T(), "Update", mock.MatchedBy(func(r metrics.Result) bool {
		return r.OpType == metrics.TokenMintOp && r.Successes == 1
	}))
	mc.AssertCalled(s.T(), "Update", mock.MatchedBy(func(r metrics.Result) bool {
		return r.OpType == metrics.SubscribeOp && r.Successes == 1
	}))
}

func TestToken(t *testing.T) {
	now := testEpoch

	assert.False(t, Token{}.Valid())
	assert.False(t, Token{Value: "v"}.Valid())
	assert.False(t, Token{IssuedAt: now}.Valid())
	assert.True(t, Token{Value: "v", IssuedAt: now}.Valid())

	tok := Token{Value: "v", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, tok.Expired(now.Add(time.Hour-time.Nanosecond)))
	assert.True(t, tok.Expired(now.Add(time.Hour)))
	assert.False(t, Token{Value: "v", IssuedAt: now}.Expired(now.Add(24*time.Hour)), "no expiry means never expires")
	assert.False(t, Token{ExpiresAt: now}.Expired(now.Add(time.Hour)), "cleared tokens never expire")
}

func TestCredentialProviderFunc(t *testing.T) {
	want := Token{Value: "v", IssuedAt: testEpoch}
	p := CredentialProviderFunc(func(context.Context) (Token, error) { return want, nil })

	got, err := p.MintToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}

	return b
}
