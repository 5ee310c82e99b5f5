package offload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
)

// ErrClosed is returned for submissions to a closed coordinator.
var ErrClosed = errors.New("coordinator closed")

// ProcessFunc runs one preparation. imageprocessing.Prepare in production.
type ProcessFunc func(ctx context.Context, req imageprocessing.Request) (imageprocessing.Output, error)

// Result is the outcome of one job. Exactly one of Output and Err is set.
type Result struct {
	JobID   uuid.UUID
	Output  imageprocessing.Output
	Err     error
	Kind    imageprocessing.Kind
	Elapsed time.Duration
}

// Coordinator runs at most one preparation at a time off the caller's
// goroutine. A new submission supersedes the one in flight: the old job is
// cancelled and whatever it produces is dropped, so the result slot only
// ever holds the output of the latest submission.
type Coordinator struct {
	process ProcessFunc
	metrics *Metrics
	notify  func(Result)

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	current    uuid.UUID
	running    bool
	closed     bool
	lastActive time.Time

	results chan Result
	wg      sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics shares a metrics set between coordinators.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithNotify registers a callback invoked after each delivered result.
func WithNotify(fn func(Result)) Option {
	return func(c *Coordinator) { c.notify = fn }
}

// New creates an idle coordinator.
func New(process ProcessFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		process:    process,
		metrics:    &Metrics{},
		results:    make(chan Result, 1),
		lastActive: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts req on a new goroutine and returns its job id. Any job
// still running is cancelled and any undelivered result is discarded.
func (c *Coordinator) Submit(req imageprocessing.Request) (uuid.UUID, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return uuid.Nil, ErrClosed
	}

	if c.running {
		c.metrics.superseded.Add(1)
		logging.DebugWithComponent(logging.ComponentOffload, "Superseding running job", "job_id", c.current)
	}
	c.abandonLocked()

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	gen := c.generation
	c.cancel = cancel
	c.current = id
	c.running = true
	c.lastActive = time.Now()
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.submitted.Add(1)
	go c.run(ctx, gen, id, req)
	return id, nil
}

// Results delivers job outcomes. The channel is closed by Close.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// Wait blocks until a result is available or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) (Result, error) {
	select {
	case r, ok := <-c.results:
		if !ok {
			return Result{}, ErrClosed
		}
		c.touch()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel abandons the running job, if any, and discards an undelivered
// result. The coordinator stays usable.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.abandonLocked()
}

// Close cancels outstanding work, waits for the worker to return and closes
// the results channel. It is safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.abandonLocked()
	c.mu.Unlock()

	c.wg.Wait()
	close(c.results)
}

// Current returns the id of the latest submission and whether it is still
// running.
func (c *Coordinator) Current() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.running
}

// LastActive is the time of the last submission or received result.
func (c *Coordinator) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Coordinator) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// abandonLocked cancels the running job, bumps the generation so its
// result is dropped and empties the result slot. c.mu must be held.
func (c *Coordinator) abandonLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.running = false
	select {
	case <-c.results:
		c.metrics.discarded.Add(1)
	default:
	}
}

func (c *Coordinator) run(ctx context.Context, gen uint64, id uuid.UUID, req imageprocessing.Request) {
	defer c.wg.Done()

	start := time.Now()
	out, err := c.safeProcess(ctx, req)
	result := Result{JobID: id, Output: out, Err: err, Kind: imageprocessing.KindOf(err), Elapsed: time.Since(start)}
	if err != nil {
		result.Output = imageprocessing.Output{}
	}

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		c.metrics.discarded.Add(1)
		logging.DebugWithComponent(logging.ComponentOffload, "Dropped stale result", "job_id", id)
		return
	}
	c.cancel()
	c.cancel = nil
	c.running = false
	c.lastActive = time.Now()
	if err != nil {
		c.metrics.failed.Add(1)
	} else {
		c.metrics.completed.Add(1)
	}
	// The slot was emptied when this generation began and only this
	// worker can fill it.
	c.results <- result
	c.mu.Unlock()

	if err != nil {
		logging.WarnWithComponent(logging.ComponentOffload, "Job failed", "job_id", id, "kind", result.Kind, "error", err)
	} else {
		logging.DebugWithComponent(logging.ComponentOffload, "Job completed", "job_id", id, "elapsed", result.Elapsed)
	}
	if c.notify != nil {
		c.notify(result)
	}
}

// safeProcess converts a panic in the pipeline into ErrWorkerFailure.
func (c *Coordinator) safeProcess(ctx context.Context, req imageprocessing.Request) (out imageprocessing.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithComponent(logging.ComponentOffload, "Worker panicked", "panic", r)
			out = imageprocessing.Output{}
			err = fmt.Errorf("%w: %v", imageprocessing.ErrWorkerFailure, r)
		}
	}()
	return c.process(ctx, req)
}
