package pollers

import (
	"context"
	"time"
)

// Poller is a background task run on a fixed interval.
type Poller interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	GetInterval() time.Duration
	SetInterval(interval time.Duration)
}

// PollerConfig holds the schedule and retry policy of a poller.
type PollerConfig struct {
	Name       string
	Interval   time.Duration
	Enabled    bool
	RunAtStart bool
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns an enabled config that polls once at start, then
// every interval, with three attempts per tick.
func DefaultConfig(name string, interval time.Duration) PollerConfig {
	return PollerConfig{
		Name:       name,
		Interval:   interval,
		Enabled:    true,
		RunAtStart: true,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
		Timeout:    60 * time.Second,
	}
}
