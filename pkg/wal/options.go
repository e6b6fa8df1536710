package wal

import "time"

// FsyncMode selects the durability/throughput tradeoff for WAL appends,
// per spec.md §6 (`fsyncMode` config field).
type FsyncMode int

const (
	// FsyncAlways calls fsync after every append. Safest, slowest.
	FsyncAlways FsyncMode = iota
	// FsyncBatched calls fsync on a background interval timer.
	FsyncBatched
	// FsyncNone never calls fsync explicitly; relies on OS page cache
	// flush. Fastest, least durable.
	FsyncNone
)

// Options configures a Writer/Reader pair sharing one WAL directory.
type Options struct {
	// DirPath is the directory holding numbered segment files.
	DirPath string

	// SegmentSize is the size threshold (bytes) that triggers rotation.
	SegmentSize int64

	FsyncMode     FsyncMode
	FsyncInterval time.Duration
	BufferSize    int
	EncryptionKey []byte // nil disables at-rest encryption of entry bodies
}

// DefaultOptions mirrors spec.md §6's config defaults.
func DefaultOptions() Options {
	return Options{
		DirPath:       "./wal",
		SegmentSize:   10 * 1024 * 1024,
		FsyncMode:     FsyncBatched,
		FsyncInterval: 100 * time.Millisecond,
		BufferSize:    64 * 1024,
	}
}
