package wsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"market-relay/src/helpers"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeScheduler records timers; tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

func (s *fakeScheduler) fireLast() {
	t := s.last()
	if t != nil && !t.stopped {
		t.fn()
	}
}

// fakeConn blocks reads until a frame is pushed or the conn is dropped.
type fakeConn struct {
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.incoming:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection reset")
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if mt == websocket.TextMessage {
		c.written = append(c.written, data)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, w := range c.written {
		out = append(out, string(w))
	}
	return out
}

// scriptedDialer returns the queued results in order, then fails.
type scriptedDialer struct {
	mu      sync.Mutex
	results []interface{} // *fakeConn or error
	dials   int
}

func (d *scriptedDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return nil, errors.New("connection refused")
	}
	next := d.results[0]
	d.results = d.results[1:]
	if conn, ok := next.(*fakeConn); ok {
		return conn, nil
	}
	return nil, next.(error)
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) add(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *errorLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func newTestManager(d Dialer, s Scheduler, onMessage func([]byte), errs *errorLog) *Manager {
	return NewManager(Config{URL: "ws://relay.test/ws", MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay},
		onMessage, errs.add, WithDialer(d), WithScheduler(s))
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestBackoffScheduleAndTerminalFailure(t *testing.T) {
	dialer := &scriptedDialer{}
	sched := &fakeScheduler{}
	errs := &errorLog{}
	m := newTestManager(dialer, sched, nil, errs)

	m.Connect([]byte(`{"type":"subscribe"}`))
	for i := 0; i < 10; i++ {
		sched.fireLast()
	}

	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, sched.delays())
	assert.Equal(t, 6, dialer.count())
	assert.Equal(t, 5, m.Attempts())

	all := errs.all()
	require.NotEmpty(t, all)
	assert.ErrorIs(t, all[len(all)-1], ErrConnectionFailed)
	assert.Equal(t, "websocket connection failed", all[len(all)-1].Error())

	var te *helpers.TransportError
	assert.ErrorAs(t, all[0], &te)
}

func TestZeroConfigUsesDefaultAttempts(t *testing.T) {
	dialer := &scriptedDialer{}
	sched := &fakeScheduler{}
	errs := &errorLog{}
	m := NewManager(Config{URL: "ws://relay.test/ws"}, nil, errs.add, WithDialer(dialer), WithScheduler(sched))

	m.Connect(nil)
	for i := 0; i < 10; i++ {
		sched.fireLast()
	}

	assert.Len(t, sched.delays(), DefaultMaxAttempts)
	assert.Equal(t, DefaultBaseDelay, sched.delays()[0])
	assert.Equal(t, DefaultMaxAttempts+1, dialer.count())
}

func TestNoReconnectFailsOnFirstClose(t *testing.T) {
	dialer := &scriptedDialer{}
	sched := &fakeScheduler{}
	errs := &errorLog{}
	m := NewManager(Config{URL: "ws://relay.test/ws", MaxAttempts: NoReconnect}, nil, errs.add,
		WithDialer(dialer), WithScheduler(sched))

	m.Connect(nil)

	assert.Empty(t, sched.delays())
	assert.Equal(t, 1, dialer.count())
	all := errs.all()
	require.NotEmpty(t, all)
	assert.ErrorIs(t, all[len(all)-1], ErrConnectionFailed)
}

func TestAttemptsResetAfterSuccessfulConnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{results: []interface{}{
		errors.New("refused"),
		errors.New("refused"),
		conn,
	}}
	sched := &fakeScheduler{}
	m := newTestManager(dialer, sched, nil, &errorLog{})

	m.Connect([]byte(`sub`))
	sched.fireLast()
	assert.Equal(t, 1, m.Attempts())
	sched.fireLast()

	assert.Equal(t, 0, m.Attempts())
	assert.True(t, m.Connected())
	assert.Equal(t, []string{"sub"}, conn.writes())
	m.Disconnect()
}

func TestDisconnectDuringBackoffStopsTimer(t *testing.T) {
	dialer := &scriptedDialer{}
	sched := &fakeScheduler{}
	m := newTestManager(dialer, sched, nil, &errorLog{})

	m.Connect(nil)
	pending := sched.last()
	require.NotNil(t, pending)

	m.Disconnect()
	assert.True(t, pending.stopped)

	// a timer that fires anyway must not reconnect
	pending.fn()
	assert.Equal(t, 1, dialer.count())
	assert.False(t, m.Connected())
}

func TestDropTriggersReconnectWithResend(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	dialer := &scriptedDialer{results: []interface{}{first, second}}
	sched := &fakeScheduler{}
	errs := &errorLog{}
	m := newTestManager(dialer, sched, nil, errs)

	m.Connect([]byte(`{"type":"subscribe","symbols":["KRW-BTC"]}`))
	require.True(t, m.Connected())

	first.Close()
	require.Eventually(t, func() bool { return sched.last() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Second, sched.last().delay)

	sched.fireLast()
	assert.True(t, m.Connected())
	assert.Equal(t, []string{`{"type":"subscribe","symbols":["KRW-BTC"]}`}, second.writes())
	assert.Len(t, errs.all(), 1)
	m.Disconnect()
}

func TestMessagesDispatchedInOrderAndPanicsRecovered(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{results: []interface{}{conn}}

	var mu sync.Mutex
	var got []string
	onMessage := func(data []byte) {
		if string(data) == "boom" {
			panic("handler failure")
		}
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	}
	m := newTestManager(dialer, &fakeScheduler{}, onMessage, &errorLog{})
	m.Connect(nil)

	conn.incoming <- []byte("a")
	conn.incoming <- []byte("boom")
	conn.incoming <- []byte("b")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.True(t, m.Connected())
	m.Disconnect()
}

func TestSendWhenClosedIsDropped(t *testing.T) {
	m := newTestManager(&scriptedDialer{}, &fakeScheduler{}, nil, &errorLog{})
	assert.False(t, m.Send([]byte("x")))

	conn := newFakeConn()
	m = newTestManager(&scriptedDialer{results: []interface{}{conn}}, &fakeScheduler{}, nil, &errorLog{})
	m.Connect(nil)
	assert.True(t, m.Send([]byte("x")))
	assert.Equal(t, []string{"x"}, conn.writes())

	m.Disconnect()
	assert.False(t, m.Send([]byte("y")))
	m.Disconnect()
}

// -----------------------------------------------------------------------------
// End to end over a real socket
// -----------------------------------------------------------------------------

func TestReconnectResubscribesOverRealSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 4)
	var mu sync.Mutex
	connections := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)

		if n == 1 {
			// drop the first connection abruptly
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ticker","code":"KRW-BTC"}`))
		conn.ReadMessage()
	}))
	defer srv.Close()

	frames := make(chan string, 4)
	m := NewManager(Config{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxAttempts: 5,
		BaseDelay:   20 * time.Millisecond,
	}, func(data []byte) { frames <- string(data) }, nil)
	defer m.Disconnect()

	sub := `{"type":"subscribe","dataType":"ticker","symbols":["KRW-BTC"]}`
	m.Connect([]byte(sub))

	for i := 0; i < 2; i++ {
		select {
		case got := <-received:
			assert.Equal(t, sub, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("subscription %d not received", i+1)
		}
	}

	select {
	case f := <-frames:
		assert.JSONEq(t, `{"type":"ticker","code":"KRW-BTC"}`, f)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame after reconnect")
	}
	assert.Equal(t, 0, m.Attempts())
}
