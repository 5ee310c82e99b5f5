package pollers

import (
	"context"
	"sync"
	"time"

	"github.com/rmitchellscott/inkprep/internal/logging"
)

// PollFunc is one unit of work. A returned error triggers a retry.
type PollFunc func(ctx context.Context) error

// BasePoller runs a PollFunc on a ticker until stopped.
type BasePoller struct {
	config   PollerConfig
	pollFunc PollFunc

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	reset   chan time.Duration
	wg      sync.WaitGroup
}

// NewBasePoller creates a stopped poller.
func NewBasePoller(config PollerConfig, pollFunc PollFunc) *BasePoller {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &BasePoller{
		config:   config,
		pollFunc: pollFunc,
		reset:    make(chan time.Duration, 1),
	}
}

func (p *BasePoller) Name() string {
	return p.config.Name
}

// Start launches the polling goroutine. Starting a running or disabled
// poller is a no-op.
func (p *BasePoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if !p.config.Enabled {
		logging.InfoWithComponent(logging.ComponentPollers, "Poller disabled, not starting", "poller", p.config.Name)
		return nil
	}

	logging.InfoWithComponent(logging.ComponentPollers, "Starting poller", "poller", p.config.Name, "interval", p.config.Interval)

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.loop(loopCtx, p.config)
	return nil
}

// Stop cancels the loop and waits for an in-progress poll to return.
func (p *BasePoller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	logging.InfoWithComponent(logging.ComponentPollers, "Poller stopped", "poller", p.config.Name)
	return nil
}

func (p *BasePoller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *BasePoller) GetInterval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.Interval
}

// SetInterval changes the interval; a running loop picks it up at once.
func (p *BasePoller) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.mu.Lock()
	p.config.Interval = interval
	p.mu.Unlock()

	select {
	case <-p.reset:
	default:
	}
	p.reset <- interval
	logging.InfoWithComponent(logging.ComponentPollers, "Poller interval updated", "poller", p.config.Name, "interval", interval)
}

func (p *BasePoller) loop(ctx context.Context, config PollerConfig) {
	defer p.wg.Done()

	if config.RunAtStart {
		p.poll(ctx, config)
	}

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case interval := <-p.reset:
			ticker.Reset(interval)
		case <-ticker.C:
			p.poll(ctx, config)
		}
	}
}

// poll runs pollFunc up to MaxRetries times, each attempt bounded by
// Timeout, waiting RetryDelay between failures.
func (p *BasePoller) poll(ctx context.Context, config PollerConfig) {
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}

		attemptCtx, cancel := context.WithCancel(ctx)
		if config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		}
		err := p.pollFunc(attemptCtx)
		cancel()
		if err == nil {
			return
		}

		logging.WarnWithComponent(logging.ComponentPollers, "Poll attempt failed",
			"poller", config.Name, "attempt", attempt, "max_attempts", config.MaxRetries, "error", err)

		if attempt < config.MaxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(config.RetryDelay):
			}
		}
	}
	logging.ErrorWithComponent(logging.ComponentPollers, "Poll failed after all attempts", "poller", config.Name)
}
