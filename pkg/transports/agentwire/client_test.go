package agentwire

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adityow/sourcedesk/pkg/frames"
)

type readStep struct {
	data []byte
	err  error
}

type scriptedConn struct {
	mu        sync.Mutex
	steps     []readStep
	idx       int
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedConn(steps ...readStep) *scriptedConn {
	return &scriptedConn{steps: steps, closed: make(chan struct{})}
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if c.idx < len(c.steps) {
		step := c.steps[c.idx]
		c.idx++
		c.mu.Unlock()
		return websocket.TextMessage, step.data, step.err
	}
	c.mu.Unlock()
	<-c.closed
	return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type dialOutcome struct {
	conn *scriptedConn
	err  error
}

type scriptedDialer struct {
	mu       sync.Mutex
	outcomes []dialOutcome
	dials    int
}

func dialerFor(conns ...*scriptedConn) *scriptedDialer {
	d := &scriptedDialer{}
	for _, c := range conns {
		d.outcomes = append(d.outcomes, dialOutcome{conn: c})
	}
	return d
}

func (d *scriptedDialer) dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.outcomes) == 0 {
		return newScriptedConn(), nil
	}
	o := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func abnormalDrop() readStep {
	return readStep{err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "dropped"}}
}

// collect drains frames until want of the given kind were seen or the
// deadline passes.
func collect(t *testing.T, ch <-chan frames.Frame, kind frames.Kind, want int) []frames.Frame {
	t.Helper()
	var got []frames.Frame
	seen := 0
	deadline := time.After(2 * time.Second)
	for seen < want {
		select {
		case f := <-ch:
			got = append(got, f)
			if f.Kind == kind {
				seen++
			}
		case <-deadline:
			t.Fatalf("saw %d %s frames, want %d (collected %d total)", seen, kind, want, len(got))
		}
	}
	return got
}

func TestReconnectLinearDelays(t *testing.T) {
	base := 2 * time.Second
	dialer := dialerFor(
		newScriptedConn(abnormalDrop()),
		newScriptedConn(abnormalDrop()),
		newScriptedConn(abnormalDrop()),
		newScriptedConn(), // stays open
	)
	sleeps := &sleepRecorder{}
	c := New(Config{URL: "ws://desk/agents", SessionID: "sess-1", MaxReconnects: 5, ReconnectBase: base},
		nil, WithDialer(dialer.dial), WithSleep(sleeps.sleep))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	// Initial connect plus one per successful reconnect.
	collect(t, c.Recv(), frames.KindConnected, 4)

	if got := dialer.dialCount(); got != 4 {
		t.Fatalf("dials = %d, want 4", got)
	}
	delays := sleeps.recorded()
	want := []time.Duration{base, 2 * base, 3 * base}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
		if i > 0 && delays[i] <= delays[i-1] {
			t.Fatalf("delays not strictly increasing: %v", delays)
		}
	}
}

func TestReconnectCeilingIsFinal(t *testing.T) {
	// Five drops consume the whole budget; the sixth drop must not
	// schedule another attempt.
	dialer := &scriptedDialer{}
	for i := 0; i < 6; i++ {
		dialer.outcomes = append(dialer.outcomes, dialOutcome{conn: newScriptedConn(abnormalDrop())})
	}
	sleeps := &sleepRecorder{}
	c := New(Config{URL: "ws://desk/agents", SessionID: "sess-1", MaxReconnects: 5, ReconnectBase: time.Second},
		nil, WithDialer(dialer.dial), WithSleep(sleeps.sleep))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	got := collect(t, c.Recv(), frames.KindDisconnected, 1)
	last := got[len(got)-1]
	if last.Meta[frames.MetaReason] != "reconnect_exhausted" {
		t.Fatalf("disconnect reason = %q", last.Meta[frames.MetaReason])
	}
	if n := dialer.dialCount(); n != 6 {
		t.Fatalf("dials = %d, want 6 (initial + 5 reconnects)", n)
	}
	if n := len(sleeps.recorded()); n != 5 {
		t.Fatalf("scheduled delays = %d, want 5", n)
	}
}

func TestFailedDialsConsumeBudget(t *testing.T) {
	dialErr := &websocket.CloseError{Code: websocket.CloseTryAgainLater}
	dialer := &scriptedDialer{outcomes: []dialOutcome{
		{conn: newScriptedConn(abnormalDrop())},
		{err: dialErr},
		{err: dialErr},
		{err: dialErr},
	}}
	sleeps := &sleepRecorder{}
	c := New(Config{URL: "ws://desk/agents", SessionID: "sess-1", MaxReconnects: 3, ReconnectBase: time.Second},
		nil, WithDialer(dialer.dial), WithSleep(sleeps.sleep))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	got := collect(t, c.Recv(), frames.KindDisconnected, 1)
	last := got[len(got)-1]
	if last.Meta[frames.MetaReason] != "reconnect_exhausted" {
		t.Fatalf("disconnect reason = %q", last.Meta[frames.MetaReason])
	}
	if n := len(sleeps.recorded()); n != 3 {
		t.Fatalf("scheduled delays = %d, want 3", n)
	}
}

func TestNormalClosureNeverReconnects(t *testing.T) {
	dialer := dialerFor(
		newScriptedConn(readStep{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}),
	)
	sleeps := &sleepRecorder{}
	c := New(Config{URL: "ws://desk/agents", SessionID: "sess-1", ReconnectBase: time.Second},
		nil, WithDialer(dialer.dial), WithSleep(sleeps.sleep))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	got := collect(t, c.Recv(), frames.KindDisconnected, 1)
	last := got[len(got)-1]
	if last.Meta[frames.MetaReason] != "normal_closure" {
		t.Fatalf("disconnect reason = %q", last.Meta[frames.MetaReason])
	}
	if n := dialer.dialCount(); n != 1 {
		t.Fatalf("dials = %d, want 1", n)
	}
	if n := len(sleeps.recorded()); n != 0 {
		t.Fatalf("normal closure scheduled %d reconnects", n)
	}
}

func TestWireFramesDelivered(t *testing.T) {
	raw := []byte(`{"event_type":"tool_output","status":"success","tool_name":"chat_decision_maker",` +
		`"tool_output":"{'response': '{\\\"from\\\": \\\"chat_decision_maker\\\", \\\"response\\\": [\\\"GENERAL_CHAT\\\"]}', 'module_outputs': {}}",` +
		`"execution_time":0.42,"timestamp":"2026-08-28T10:00:00Z"}`)
	dialer := dialerFor(
		newScriptedConn(readStep{data: raw}, readStep{data: []byte("not json")}),
	)
	c := New(Config{URL: "ws://desk/agents", SessionID: "sess-9"},
		nil, WithDialer(dialer.dial), WithSleep(func(time.Duration) {}))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	got := collect(t, c.Recv(), frames.KindToolOutput, 1)
	f := got[len(got)-1]
	if f.ToolName != "chat_decision_maker" || f.Status != frames.StatusSuccess {
		t.Fatalf("frame = %+v", f)
	}
	if f.SessionID() != "sess-9" {
		t.Fatalf("session id = %q", f.SessionID())
	}
}

func TestStopIsDeliberate(t *testing.T) {
	dialer := dialerFor(newScriptedConn())
	sleeps := &sleepRecorder{}
	c := New(Config{URL: "ws://desk/agents", SessionID: "sess-1"},
		nil, WithDialer(dialer.dial), WithSleep(sleeps.sleep))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	collect(t, c.Recv(), frames.KindConnected, 1)
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Recv drains and closes; no reconnect is scheduled.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Recv():
			if !ok {
				if n := len(sleeps.recorded()); n != 0 {
					t.Fatalf("stop scheduled %d reconnects", n)
				}
				if err := c.Stop(); err != nil {
					t.Fatalf("second stop: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatalf("recv channel never closed after stop")
		}
	}
}
