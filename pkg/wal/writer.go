package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bobboyms/docdb/pkg/dblog"
)

// Writer appends entries to the active segment of a WAL directory,
// chaining each line's pointer to the previous one and rotating to a new
// segment once the current one exceeds SegmentSize.
type Writer struct {
	mu   sync.Mutex
	opts Options
	dir  string
	file *os.File
	buf  *bufio.Writer

	segmentIndex int
	segmentBytes int64
	lastPointer  string
	lineCount    int

	batchBytes int64
	ticker     *time.Ticker
	done       chan struct{}
	closed     bool
}

// NewWriter opens (or creates) the WAL directory, resumes from its
// highest-numbered segment, and starts the background fsync timer when
// FsyncMode is FsyncBatched.
func NewWriter(opts Options) (*Writer, error) {
	if opts.DirPath == "" {
		opts.DirPath = DefaultOptions().DirPath
	}
	if err := os.MkdirAll(opts.DirPath, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	segments, err := listSegments(opts.DirPath)
	if err != nil {
		return nil, err
	}

	lastPointer, lineCount, err := tailState(opts.DirPath, segments)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		opts:        opts,
		dir:         opts.DirPath,
		lastPointer: lastPointer,
		lineCount:   lineCount,
		done:        make(chan struct{}),
	}

	idx := 0
	if len(segments) > 0 {
		idx = segments[len(segments)-1]
	}
	if err := w.openSegment(idx); err != nil {
		return nil, err
	}

	if opts.FsyncMode == FsyncBatched {
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = DefaultOptions().FsyncInterval
		}
		w.ticker = time.NewTicker(interval)
		go w.backgroundSync()
	}

	return w, nil
}

func (w *Writer) openSegment(idx int) error {
	path := segmentPath(w.dir, idx)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open segment %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	bufSize := w.opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultOptions().BufferSize
	}

	w.file = f
	w.buf = bufio.NewWriterSize(f, bufSize)
	w.segmentIndex = idx
	w.segmentBytes = info.Size()
	return nil
}

// Append writes one entry to the active segment, threading the pointer
// chain from the last-written line, and applies the configured fsync
// policy. It returns the fully-formed Entry (with Pointer/Timestamp set).
func (w *Writer) Append(e Entry) (Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return Entry{}, fmt.Errorf("wal: writer closed")
	}

	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	body, err := encodeBody(e, w.opts.EncryptionKey)
	if err != nil {
		return Entry{}, err
	}

	pointer := nextPointer(w.lastPointer, body)
	e.Pointer = pointer

	bufPtr := acquireBuffer()
	defer releaseBuffer(bufPtr)
	line := *bufPtr
	line = append(line, strconv.FormatInt(e.Timestamp, 10)...)
	line = append(line, '|')
	line = append(line, pointer...)
	line = append(line, '|')
	line = append(line, body...)
	line = append(line, '\n')
	*bufPtr = line

	n, err := w.buf.Write(line)
	if err != nil {
		return Entry{}, err
	}

	w.lastPointer = pointer
	w.lineCount++
	w.segmentBytes += int64(n)
	w.batchBytes += int64(n)

	switch w.opts.FsyncMode {
	case FsyncAlways:
		if err := w.syncLocked(); err != nil {
			return Entry{}, err
		}
	case FsyncBatched:
		// handled by the background ticker
	case FsyncNone:
		if err := w.buf.Flush(); err != nil {
			return Entry{}, err
		}
	}

	if w.segmentBytes >= w.opts.SegmentSize && w.opts.SegmentSize > 0 {
		if err := w.rotateLocked(); err != nil {
			return e, err
		}
	}

	return e, nil
}

// Sync flushes the bufio writer and fsyncs the active segment file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.batchBytes = 0
	return nil
}

func (w *Writer) rotateLocked() error {
	if err := w.syncLocked(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return w.openSegment(w.segmentIndex + 1)
}

// Archive closes the current segment and advances to a new one,
// independent of the size threshold. Called after a successful snapshot
// so replay on next startup can begin from the fresh segment.
func (w *Writer) Archive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

// LineCount returns the total number of entries in the WAL directory: the
// count found across existing segments when the writer was opened, plus
// every entry appended through it since.
func (w *Writer) LineCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lineCount
}

// Close stops the background sync goroutine (if any), flushes, fsyncs,
// and closes the active segment file. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.done)
	}

	if err := w.syncLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *Writer) backgroundSync() {
	log := dblog.WithComponent("wal")
	for {
		select {
		case <-w.ticker.C:
			if err := w.Sync(); err != nil {
				log.Warn().Err(err).Msg("background fsync failed")
			}
		case <-w.done:
			return
		}
	}
}

func segmentPath(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.wal", idx))
}

func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}

	var indices []int
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".wal") {
			continue
		}
		name := strings.TrimSuffix(ent.Name(), ".wal")
		idx, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}
