package processor

import (
	"sync/atomic"
	"time"
)

type ServiceMetrics struct {
	processed  atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	durationNs atomic.Int64
	startedAt  time.Time
}

type MetricsSnapshot struct {
	Processed     int64
	Failed        int64
	Skipped       int64
	RatePerSecond float64
	AvgDuration   time.Duration
	Uptime        time.Duration
}

func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{startedAt: time.Now()}
}

func (m *ServiceMetrics) RecordSuccess(d time.Duration) {
	m.processed.Add(1)
	m.durationNs.Add(int64(d))
}

func (m *ServiceMetrics) RecordFailure() { m.failed.Add(1) }

// RecordSkipped counts duplicates acked without running handlers.
func (m *ServiceMetrics) RecordSkipped() { m.skipped.Add(1) }

func (m *ServiceMetrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Processed: m.processed.Load(),
		Failed:    m.failed.Load(),
		Skipped:   m.skipped.Load(),
		Uptime:    time.Since(m.startedAt),
	}
	if secs := s.Uptime.Seconds(); secs > 0 {
		s.RatePerSecond = float64(s.Processed) / secs
	}
	if s.Processed > 0 {
		s.AvgDuration = time.Duration(m.durationNs.Load() / s.Processed)
	}
	return s
}
