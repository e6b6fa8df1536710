package snapshot

import (
	"sync"
	"time"

	"github.com/bobboyms/docdb/pkg/clock"
	"github.com/bobboyms/docdb/pkg/dblog"
)

// schedulerState guards the optional background snapshot timer so
// StartScheduler/StopScheduler are idempotent.
type schedulerState struct {
	mu     sync.Mutex
	ticker *clock.Ticker
}

// DefaultInterval is used when the caller does not specify one.
const DefaultInterval = 30 * time.Minute

// StartScheduler begins calling cb every interval (DefaultInterval if
// zero) until StopScheduler is called. Calling StartScheduler while
// already running is a no-op. Errors returned by cb are logged, never
// propagated or fatal.
func (s *Store) StartScheduler(interval time.Duration, cb func() error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	if s.scheduler == nil {
		s.scheduler = &schedulerState{}
	}
	sched := s.scheduler
	s.mu.Unlock()

	sched.mu.Lock()
	defer sched.mu.Unlock()
	if sched.ticker != nil {
		return
	}

	log := dblog.WithComponent("snapshot")
	sched.ticker = clock.Start(interval, func() {
		if err := cb(); err != nil {
			log.Warn().Err(err).Msg("scheduled snapshot failed")
		}
	})
}

// StopScheduler halts the background timer, if running. Idempotent.
func (s *Store) StopScheduler() {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()
	if sched == nil {
		return
	}

	sched.mu.Lock()
	defer sched.mu.Unlock()
	if sched.ticker == nil {
		return
	}
	sched.ticker.Stop()
	sched.ticker = nil
}
