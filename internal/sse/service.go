package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/offload"
)

// Event types sent to session streams.
const (
	EventConnected    = "connected"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
	EventPing         = "ping"
	EventFeedUpdated  = "feed_updated"
)

// FeedSession is the stream that receives feed_updated events.
const FeedSession = "feed"

// Event represents a server-sent event
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// JobEvent is the payload of job_completed and job_failed.
type JobEvent struct {
	Session   string               `json:"session"`
	JobID     uuid.UUID            `json:"job_id"`
	Width     int                  `json:"width,omitempty"`
	Height    int                  `json:"height,omitempty"`
	Bytes     int                  `json:"bytes,omitempty"`
	Kind      imageprocessing.Kind `json:"kind,omitempty"`
	Error     string               `json:"error,omitempty"`
	ElapsedMS int64                `json:"elapsed_ms"`
}

// Client represents a connected SSE client
type Client struct {
	ID      string
	Session string
	Done    chan struct{}

	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
}

// Service fans job events out to the streams open on each session.
type Service struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewService creates a new SSE service
func NewService() *Service {
	return &Service{
		clients: make(map[string]*Client),
	}
}

// AddClient registers w as a stream for session. It returns nil when w
// cannot be flushed.
func (s *Service) AddClient(session string, w http.ResponseWriter) *Client {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &Client{
		ID:      fmt.Sprintf("%s-%d", session, time.Now().UnixNano()),
		Session: session,
		Done:    make(chan struct{}),
		writer:  w,
		flusher: flusher,
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	logging.DebugWithComponent(logging.ComponentEvents, "Client connected", "client", client.ID, "session", session)

	client.send(Event{
		Type: EventConnected,
		Data: map[string]interface{}{
			"session":   session,
			"timestamp": time.Now().UTC(),
		},
	})

	return client
}

// RemoveClient removes a client connection
func (s *Service) RemoveClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, exists := s.clients[clientID]; exists {
		close(client.Done)
		delete(s.clients, clientID)
		logging.DebugWithComponent(logging.ComponentEvents, "Client disconnected", "client", clientID)
	}
}

// CloseAll disconnects every client so their Serve calls return.
func (s *Service) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, client := range s.clients {
		close(client.Done)
		delete(s.clients, id)
	}
}

// Serve streams events for session to w until ctx ends.
func (s *Service) Serve(ctx context.Context, session string, w http.ResponseWriter) error {
	client := s.AddClient(session, w)
	if client == nil {
		return fmt.Errorf("response writer does not support streaming")
	}
	defer s.RemoveClient(client.ID)

	select {
	case <-ctx.Done():
	case <-client.Done:
	}
	return nil
}

// BroadcastToSession sends an event to every stream open on session.
func (s *Service) BroadcastToSession(session string, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		if client.Session == session {
			client.send(event)
		}
	}
}

// JobFinished implements offload.Listener.
func (s *Service) JobFinished(session string, r offload.Result) {
	payload := JobEvent{
		Session:   session,
		JobID:     r.JobID,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	event := Event{Type: EventJobCompleted, Data: &payload}
	if r.Err != nil {
		event.Type = EventJobFailed
		payload.Kind = r.Kind
		payload.Error = imageprocessing.UserMessage(r.Err)
	} else {
		payload.Width = r.Output.Width
		payload.Height = r.Output.Height
		payload.Bytes = len(r.Output.PNG)
	}
	s.BroadcastToSession(session, event)
}

func (c *Client) send(event Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentEvents, "Failed to marshal event", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, "data: %s\n\n", eventData)
	c.flusher.Flush()
}

// KeepAlive pings every client each interval until ctx ends.
func (s *Service) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, client := range s.clients {
				client.send(Event{
					Type: EventPing,
					Data: map[string]interface{}{
						"timestamp": time.Now().UTC(),
					},
				})
			}
			s.mu.RUnlock()
		}
	}
}

// GetClientCount returns the number of connected clients
func (s *Service) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// GetSessionClientCount returns the number of streams open on session.
func (s *Service) GetSessionClientCount(session string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, client := range s.clients {
		if client.Session == session {
			count++
		}
	}
	return count
}

var _ offload.Listener = (*Service)(nil)
