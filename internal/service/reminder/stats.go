package reminder

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of the service counters since start.
type Stats struct {
	Runs            int64     `json:"runs"`
	Sent            int64     `json:"sent"`
	SendFailures    int64     `json:"send_failures"`
	PersistFailures int64     `json:"persist_failures"` // sent but not marked, needs reconciling
	LockContention  int64     `json:"lock_contention"`
	LockFailures    int64     `json:"lock_failures"`
	StoreFailures   int64     `json:"store_failures"`
	Skipped         int64     `json:"skipped"`
	LastRunAt       time.Time `json:"last_run_at"`
	LastRunSent     int       `json:"last_run_sent"`
}

type statsCounters struct {
	runs, sent, sendFailures, persistFailures    atomic.Int64
	lockContention, lockFailures, storeFailures atomic.Int64
	skipped                                      atomic.Int64

	mu          sync.Mutex
	lastRunAt   time.Time
	lastRunSent int
}

func (c *statsCounters) finishRun(at time.Time, sent int) {
	c.mu.Lock()
	c.lastRunAt = at
	c.lastRunSent = sent
	c.mu.Unlock()
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	c := &s.stats

	c.mu.Lock()
	lastRunAt, lastRunSent := c.lastRunAt, c.lastRunSent
	c.mu.Unlock()

	return Stats{
		Runs:            c.runs.Load(),
		Sent:            c.sent.Load(),
		SendFailures:    c.sendFailures.Load(),
		PersistFailures: c.persistFailures.Load(),
		LockContention:  c.lockContention.Load(),
		LockFailures:    c.lockFailures.Load(),
		StoreFailures:   c.storeFailures.Load(),
		Skipped:         c.skipped.Load(),
		LastRunAt:       lastRunAt,
		LastRunSent:     lastRunSent,
	}
}
