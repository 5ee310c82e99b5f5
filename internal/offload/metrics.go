package offload

import "sync/atomic"

// Metrics counts job outcomes. A zero Metrics is ready to use and may be
// shared by many coordinators.
type Metrics struct {
	submitted  atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	superseded atomic.Int64
	discarded  atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Submitted  int64 `json:"submitted" yaml:"submitted"`
	Completed  int64 `json:"completed" yaml:"completed"`
	Failed     int64 `json:"failed" yaml:"failed"`
	Superseded int64 `json:"superseded" yaml:"superseded"`
	Discarded  int64 `json:"discarded" yaml:"discarded"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Submitted:  m.submitted.Load(),
		Completed:  m.completed.Load(),
		Failed:     m.failed.Load(),
		Superseded: m.superseded.Load(),
		Discarded:  m.discarded.Load(),
	}
}
