package offload

import (
	"context"
	"sync"
	"time"

	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/pollers"
)

// Listener is told about every result delivered in any session.
type Listener interface {
	JobFinished(session string, r Result)
}

// Sessions keeps one Coordinator per UI session. Each session therefore has
// its own single result slot; sessions never supersede each other.
type Sessions struct {
	process     ProcessFunc
	idleTimeout time.Duration
	metrics     *Metrics
	listener    Listener

	mu       sync.Mutex
	sessions map[string]*Coordinator
	janitor  *pollers.BasePoller
}

// NewSessions creates an empty session table. Coordinators idle for longer
// than idleTimeout are closed by the janitor started with Start; zero
// disables eviction.
func NewSessions(process ProcessFunc, idleTimeout time.Duration, listener Listener) *Sessions {
	s := &Sessions{
		process:     process,
		idleTimeout: idleTimeout,
		metrics:     &Metrics{},
		listener:    listener,
		sessions:    make(map[string]*Coordinator),
	}
	if idleTimeout > 0 {
		config := pollers.DefaultConfig("session-janitor", max(idleTimeout/2, time.Second))
		config.RunAtStart = false
		config.MaxRetries = 1
		s.janitor = pollers.NewBasePoller(config, func(ctx context.Context) error {
			s.EvictIdle(time.Now())
			return nil
		})
	}
	return s
}

// Janitor returns the eviction poller, or nil when eviction is disabled.
func (s *Sessions) Janitor() pollers.Poller {
	if s.janitor == nil {
		return nil
	}
	return s.janitor
}

// Get returns the coordinator of session, creating it on first use.
func (s *Sessions) Get(session string) *Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.sessions[session]; ok {
		return c
	}

	opts := []Option{WithMetrics(s.metrics)}
	if s.listener != nil {
		listener := s.listener
		opts = append(opts, WithNotify(func(r Result) { listener.JobFinished(session, r) }))
	}
	c := New(s.process, opts...)
	s.sessions[session] = c
	logging.DebugWithComponent(logging.ComponentSessions, "Session created", "session", session)
	return c
}

// Lookup returns an existing coordinator without creating one.
func (s *Sessions) Lookup(session string) (*Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sessions[session]
	return c, ok
}

// Remove closes and forgets a session.
func (s *Sessions) Remove(session string) {
	s.mu.Lock()
	c, ok := s.sessions[session]
	delete(s.sessions, session)
	s.mu.Unlock()

	if ok {
		c.Close()
	}
}

// EvictIdle closes sessions with no running job whose last activity is
// older than the idle timeout. It returns the number evicted.
func (s *Sessions) EvictIdle(now time.Time) int {
	if s.idleTimeout <= 0 {
		return 0
	}

	var idle []*Coordinator
	s.mu.Lock()
	for id, c := range s.sessions {
		if _, running := c.Current(); running {
			continue
		}
		if now.Sub(c.LastActive()) > s.idleTimeout {
			idle = append(idle, c)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		logging.InfoWithComponent(logging.ComponentSessions, "Evicted idle sessions", "count", len(idle))
	}
	return len(idle)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Metrics returns counters aggregated over all sessions, including closed
// ones.
func (s *Sessions) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Close closes every session.
func (s *Sessions) Close() {
	if s.janitor != nil {
		s.janitor.Stop()
	}

	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Coordinator)
	s.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
