// Package clock provides a reusable periodic-timer wrapper shared by the
// WAL's batched-fsync timer and the snapshot scheduler's interval timer.
// Generalized from the teacher's pkg/wal/writer.go backgroundSync
// ticker+done-channel shape.
package clock

import (
	"sync"
	"time"
)

// Ticker runs fn on every tick of interval until Stop is called. Stop is
// idempotent and blocks until the background goroutine has exited.
type Ticker struct {
	ticker   *time.Ticker
	done     chan struct{}
	closed   chan struct{}
	stopOnce sync.Once
}

// Start begins calling fn every interval, in its own goroutine.
func Start(interval time.Duration, fn func()) *Ticker {
	t := &Ticker{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go t.run(fn)
	return t
}

func (t *Ticker) run(fn func()) {
	defer close(t.closed)
	for {
		select {
		case <-t.ticker.C:
			fn()
		case <-t.done:
			return
		}
	}
}

// Stop halts the ticker and waits for the background goroutine to exit.
// Calling Stop more than once is safe.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
	<-t.closed
}
