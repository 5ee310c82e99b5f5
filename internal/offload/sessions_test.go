package offload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
)

type recordingListener struct {
	mu   sync.Mutex
	jobs map[string][]uuid.UUID
}

func (l *recordingListener) JobFinished(session string, r Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jobs == nil {
		l.jobs = make(map[string][]uuid.UUID)
	}
	l.jobs[session] = append(l.jobs[session], r.JobID)
}

func instant(ctx context.Context, req imageprocessing.Request) (imageprocessing.Output, error) {
	return imageprocessing.Output{PNG: req.Source}, nil
}

func TestSessionsAreIndependent(t *testing.T) {
	listener := &recordingListener{}
	s := NewSessions(instant, 0, listener)
	defer s.Close()

	a := s.Get("alice")
	b := s.Get("bob")
	if a == b {
		t.Fatal("different sessions share a coordinator")
	}
	if s.Get("alice") != a {
		t.Fatal("Get created a second coordinator for the same session")
	}

	idA, _ := a.Submit(request('a'))
	idB, _ := b.Submit(request('b'))

	if r := waitResult(t, a); r.JobID != idA {
		t.Errorf("alice got %s, want %s", r.JobID, idA)
	}
	if r := waitResult(t, b); r.JobID != idB {
		t.Errorf("bob got %s, want %s", r.JobID, idB)
	}

	if m := s.Metrics(); m.Submitted != 2 || m.Completed != 2 {
		t.Errorf("metrics = %+v", m)
	}

	// The listener runs after delivery, so it may lag the result.
	deadline := time.Now().Add(2 * time.Second)
	for {
		listener.mu.Lock()
		seen := append([]uuid.UUID(nil), listener.jobs["alice"]...)
		listener.mu.Unlock()
		if len(seen) == 1 && seen[0] == idA {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("listener saw %v for alice, want [%s]", seen, idA)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEvictIdle(t *testing.T) {
	s := NewSessions(instant, time.Minute, nil)
	defer s.Close()

	stale := s.Get("stale")
	s.Get("fresh")

	evicted := s.EvictIdle(time.Now().Add(30 * time.Second))
	if evicted != 0 {
		t.Fatalf("evicted %d sessions before timeout", evicted)
	}

	s.Get("fresh").Submit(request('f'))
	waitResult(t, s.Get("fresh"))

	evicted = s.EvictIdle(stale.LastActive().Add(2 * time.Minute))
	if evicted < 1 {
		t.Fatalf("evicted %d sessions, want the stale one", evicted)
	}
	if _, ok := s.Lookup("stale"); ok {
		t.Fatal("stale session still present")
	}
	if _, err := stale.Submit(request('x')); err == nil {
		t.Fatal("evicted coordinator still accepts work")
	}
}

func TestEvictIdleSkipsRunningJobs(t *testing.T) {
	g := newGatedProcess()
	s := NewSessions(g.process, time.Minute, nil)
	defer s.Close()

	c := s.Get("busy")
	c.Submit(request('a'))
	g.waitStarted(t, 'a')
	defer g.release('a')

	if n := s.EvictIdle(time.Now().Add(time.Hour)); n != 0 {
		t.Fatalf("evicted %d sessions with a running job", n)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestRemoveClosesSession(t *testing.T) {
	s := NewSessions(instant, 0, nil)
	defer s.Close()

	c := s.Get("gone")
	s.Remove("gone")
	if _, ok := s.Lookup("gone"); ok {
		t.Fatal("session still present after Remove")
	}
	if _, err := c.Submit(request('a')); err == nil {
		t.Fatal("removed coordinator accepts work")
	}
	if s.Janitor() != nil {
		t.Error("janitor exists with eviction disabled")
	}
}
