package desk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adityow/sourcedesk/pkg/errorsx"
	"github.com/adityow/sourcedesk/pkg/session"
	"github.com/adityow/sourcedesk/pkg/transports"
)

// Session bundles everything the engine owns for one conversation:
// the orchestrator and its single live stream client.
type Session struct {
	ID           string
	Orchestrator *session.Orchestrator
	Stream       transports.StreamClient

	cancel context.CancelFunc
	done   chan struct{}
}

// Registry tracks live sessions. One entry per session ID; a second
// registration for the same ID is rejected.
type Registry struct {
	sessions sync.Map
	count    atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Put(s *Session) error {
	if _, loaded := r.sessions.LoadOrStore(s.ID, s); loaded {
		return errorsx.Newf(errorsx.ReasonDuplicateSession, "session %s already open", s.ID)
	}
	r.count.Add(1)
	return nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

func (r *Registry) Remove(id string) (*Session, bool) {
	v, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	r.count.Add(-1)
	return v.(*Session), true
}

func (r *Registry) Len() int {
	return int(r.count.Load())
}

func (r *Registry) Range(fn func(*Session) bool) {
	r.sessions.Range(func(_, v any) bool {
		return fn(v.(*Session))
	})
}

// WaitForEmpty blocks until every session is gone or the timeout hits.
func (r *Registry) WaitForEmpty(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.Len() == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return r.Len() == 0
}
