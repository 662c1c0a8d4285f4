package courier

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/gojek/courier-iot/diagnostics"
	"github.com/gojek/courier-iot/metrics"
)

var (
	testDevice = Device{ProjectID: "proj", Region: "europe-west1", RegistryID: "reg", ID: "dev-1"}
	testEpoch  = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
)

type mockCredentialProvider struct {
	mock.Mock
}

func (m *mockCredentialProvider) MintToken(ctx context.Context) (Token, error) {
	args := m.Called(ctx)

	return args.Get(0).(Token), args.Error(1)
}

type connectResult struct {
	ok  bool
	err diagnostics.TransportError
	rc  diagnostics.ReturnCode
}

var accepted = connectResult{ok: true}

type publishedMessage struct {
	topic    string
	payload  string
	retained bool
	qos      QOSLevel
}

// fakeTransport is a scriptable Transport. Connect consumes results in order
// and accepts once the script is exhausted.
type fakeTransport struct {
	mu sync.Mutex

	connected bool
	script    []connectResult
	lastErr   diagnostics.TransportError
	rc        diagnostics.ReturnCode

	params          []ConnectParams
	handlers        map[string]MessageHandler
	subscriptions   map[string]QOSLevel
	rejectSubscribe map[string]bool
	published       []publishedMessage
	failPublish     bool
	disconnects     int
	pumps           int
}

func newFakeTransport(script ...connectResult) *fakeTransport {
	return &fakeTransport{
		script:          script,
		handlers:        map[string]MessageHandler{},
		subscriptions:   map[string]QOSLevel{},
		rejectSubscribe: map[string]bool{},
	}
}

func (f *fakeTransport) Connect(_ context.Context, p ConnectParams) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := accepted
	if len(f.script) > 0 {
		r, f.script = f.script[0], f.script[1:]
	}

	f.params = append(f.params, p)
	f.connected = r.ok && r.err == diagnostics.NoError
	f.lastErr, f.rc = r.err, r.rc

	return r.ok
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = false
	f.disconnects++
}

func (f *fakeTransport) Subscribe(topic string, qos QOSLevel, handler MessageHandler) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rejectSubscribe[topic] {
		f.lastErr = diagnostics.FailedSubscription

		return false
	}

	f.subscriptions[topic] = qos
	f.handlers[topic] = handler

	return true
}

func (f *fakeTransport) Publish(topic string, payload []byte, retained bool, qos QOSLevel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failPublish {
		f.lastErr = diagnostics.NetworkFailedWrite

		return false
	}

	f.published = append(f.published, publishedMessage{topic: topic, payload: string(payload), retained: retained, qos: qos})

	return true
}

func (f *fakeTransport) LastError() diagnostics.TransportError {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastErr
}

func (f *fakeTransport) ReturnCode() diagnostics.ReturnCode {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.rc
}

func (f *fakeTransport) Pump() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pumps++
}

func (f *fakeTransport) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = false
	f.lastErr = diagnostics.NetworkFailedRead
}

// completeLate marks the transport connected without a Connect call succeeding.
func (f *fakeTransport) completeLate() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = true
	f.lastErr = diagnostics.NoError
}

func (f *fakeTransport) deliver(m Message) {
	f.mu.Lock()
	h := f.handlers[m.Topic]
	f.mu.Unlock()

	h(m)
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.params)
}

func (f *fakeTransport) publishedMessages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]publishedMessage(nil), f.published...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type zeroJitter struct{}

func (zeroJitter) Int63n(int64) int64 { return 0 }

type logEntry struct {
	level string
	msg   string
	err   error
	attrs map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(e logEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
}

func (l *recordingLogger) Error(_ context.Context, err error, attrs map[string]any) {
	l.add(logEntry{level: "error", err: err, attrs: attrs})
}

func (l *recordingLogger) Warn(_ context.Context, msg string, attrs map[string]any) {
	l.add(logEntry{level: "warn", msg: msg, attrs: attrs})
}

func (l *recordingLogger) Info(_ context.Context, msg string, attrs map[string]any) {
	l.add(logEntry{level: "info", msg: msg, attrs: attrs})
}

func (l *recordingLogger) Debug(_ context.Context, msg string, attrs map[string]any) {
	l.add(logEntry{level: "debug", msg: msg, attrs: attrs})
}

func (l *recordingLogger) errors() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []logEntry

	for _, e := range l.entries {
		if e.level == "error" {
			out = append(out, e)
		}
	}

	return out
}

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}

	return false
}

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) Update(r metrics.Result) {
	m.Called(r)
}
