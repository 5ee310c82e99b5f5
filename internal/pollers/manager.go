package pollers

import (
	"context"
	"sort"
	"sync"

	"github.com/rmitchellscott/inkprep/internal/logging"
)

// Manager starts and stops a set of pollers together.
type Manager struct {
	mu      sync.RWMutex
	pollers map[string]Poller
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func NewManager() *Manager {
	return &Manager{pollers: make(map[string]Poller)}
}

// Register adds a poller. If the manager is already running the poller is
// started immediately.
func (m *Manager) Register(poller Poller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pollers[poller.Name()] = poller
	logging.DebugWithComponent(logging.ComponentPollers, "Registered poller", "poller", poller.Name())

	if m.running {
		if err := poller.Start(m.ctx); err != nil {
			logging.ErrorWithComponent(logging.ComponentPollers, "Failed to start poller", "poller", poller.Name(), "error", err)
		}
	}
}

// Unregister stops and removes a poller.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	poller, ok := m.pollers[name]
	delete(m.pollers, name)
	m.mu.Unlock()

	if ok && poller.IsRunning() {
		poller.Stop()
	}
}

// Start starts every registered poller.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for name, poller := range m.pollers {
		if err := poller.Start(m.ctx); err != nil {
			logging.ErrorWithComponent(logging.ComponentPollers, "Failed to start poller", "poller", name, "error", err)
		}
	}
	return nil
}

// Stop stops every poller concurrently and waits for all of them.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var wg sync.WaitGroup
	for name, poller := range m.pollers {
		if !poller.IsRunning() {
			continue
		}
		wg.Add(1)
		go func(name string, p Poller) {
			defer wg.Done()
			if err := p.Stop(); err != nil {
				logging.ErrorWithComponent(logging.ComponentPollers, "Error stopping poller", "poller", name, "error", err)
			}
		}(name, poller)
	}
	wg.Wait()

	m.cancel()
	m.running = false
	logging.InfoWithComponent(logging.ComponentPollers, "All pollers stopped")
	return nil
}

func (m *Manager) GetPoller(name string) (Poller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pollers[name]
	return p, ok
}

// ListPollers returns registered names in sorted order.
func (m *Manager) ListPollers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pollers))
	for name := range m.pollers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
