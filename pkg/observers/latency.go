package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/adityow/sourcedesk/pkg/metrics"
)

// TurnLatencyObserver correlates the events of one conversation turn
// and logs a latency line when the turn completes.
type TurnLatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*turnTrace
	log    *slog.Logger
}

type turnTrace struct {
	started   time.Time
	decision  time.Time
	firstData time.Time
	done      time.Time
	traceID   string
}

func NewTurnLatencyObserver(log *slog.Logger) *TurnLatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &TurnLatencyObserver{
		traces: make(map[string]*turnTrace),
		log:    log,
	}
}

func (o *TurnLatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ""
	if ev.Tags != nil {
		sessionID = ev.Tags["session_id"]
	}
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	t := o.traces[sessionID]
	if t == nil {
		t = &turnTrace{}
		o.traces[sessionID] = t
	}
	switch ev.Name {
	case "turn_started":
		// A new turn restarts the trace for this session.
		*t = turnTrace{started: ev.Time}
		if ev.Tags != nil {
			t.traceID = ev.Tags["trace_id"]
		}
	case "decision":
		if t.decision.IsZero() {
			t.decision = ev.Time
		}
	case "vendor_query", "pricing_stored", "event_classified":
		if t.firstData.IsZero() {
			t.firstData = ev.Time
		}
	case "turn_completed":
		t.done = ev.Time
	}
	if !t.done.IsZero() {
		o.logTurnLocked(sessionID, t)
		delete(o.traces, sessionID)
	}
	o.mu.Unlock()
}

func (o *TurnLatencyObserver) logTurnLocked(sessionID string, t *turnTrace) {
	o.log.Info("turn_latency",
		"session_id", sessionID,
		"trace_id", t.traceID,
		"decision_ms", durationMs(t.started, t.decision),
		"first_data_ms", durationMs(t.started, t.firstData),
		"turn_ms", durationMs(t.started, t.done),
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
