package store

import (
	"github.com/bobboyms/docdb/pkg/snapshot"
)

// takeScheduledSnapshot is the callback handed to the snapshot manager's
// ticker: build a consistent view of the hot tier, write it out, and on
// success archive the WAL so the next startup's replay begins from the
// fresh segment. Errors are returned to the caller (the scheduler logs
// them; Disconnect's final snapshot only logs its error too).
func (a *Adapter) takeScheduledSnapshot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Adapter) snapshotLocked() error {
	docs := a.hot.MaterializedDocuments()
	collections := a.hot.Collections()

	lineCount := 0
	if a.wal != nil {
		lineCount = a.wal.LineCount()
	}

	state := snapshot.State{
		WalOffset:   lineCount,
		Documents:   docs,
		Collections: collections,
	}

	if _, err := a.snap.Create(state); err != nil {
		return err
	}

	a.stats.SnapshotsTaken.Inc()
	if a.wal != nil {
		return a.wal.Archive()
	}
	return nil
}

// CreateSnapshot triggers an out-of-band snapshot, independent of the
// scheduler's interval.
func (a *Adapter) CreateSnapshot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}
