package wal

import "testing"

func TestTruncateLastLine_RemovesOnlyFinalEntry(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Options{DirPath: dir, FsyncMode: FsyncAlways})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Append(Entry{Action: ActionSet, Target: "A_0000001", Value: "1"}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if _, err := w.Append(Entry{Action: ActionSet, Target: "A_0000002", Value: "2"}); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := TruncateLastLine(dir); err != nil {
		t.Fatalf("TruncateLastLine: %v", err)
	}

	r := NewReader(dir, nil)
	entries, err := r.ReadEntries(0)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after truncate, got %d", len(entries))
	}
	if entries[0].Target != "A_0000001" {
		t.Fatalf("unexpected surviving entry: %+v", entries[0])
	}
}

func TestTruncateLastLine_EmptyDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Options{DirPath: dir, FsyncMode: FsyncAlways})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Close()

	if err := TruncateLastLine(dir); err != nil {
		t.Fatalf("TruncateLastLine on empty segment: %v", err)
	}
}
