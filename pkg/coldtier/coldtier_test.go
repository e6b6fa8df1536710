package coldtier

import (
	"testing"

	"github.com/bobboyms/docdb/pkg/dockey"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := dockey.New("document")
	if err := s.Write(key, `{"x":1}`); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v, found, err := s.Read(key)
	if err != nil || !found {
		t.Fatalf("Read: found=%v err=%v", found, err)
	}
	if v != `{"x":1}` {
		t.Fatalf("got %q", v)
	}
}

func TestRead_MissingFileNotFoundNotError(t *testing.T) {
	s, _ := New(t.TempDir())
	_, found, err := s.Read(dockey.New("document"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestDelete_MissingIsNotError(t *testing.T) {
	s, _ := New(t.TempDir())
	if err := s.Delete(dockey.New("document")); err != nil {
		t.Fatalf("unexpected error deleting missing key: %v", err)
	}
}

func TestExists(t *testing.T) {
	s, _ := New(t.TempDir())
	key := dockey.New("document")
	if s.Exists(key) {
		t.Fatal("expected not to exist yet")
	}
	s.Write(key, "v")
	if !s.Exists(key) {
		t.Fatal("expected to exist after write")
	}
}

func TestList_EnumeratesAcrossTypes(t *testing.T) {
	s, _ := New(t.TempDir())
	k1 := dockey.New("document")
	k2 := dockey.New("account")
	s.Write(k1, "v1")
	s.Write(k2, "v2")

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
}

func TestStats(t *testing.T) {
	s, _ := New(t.TempDir())
	s.Write(dockey.New("document"), "v1")
	s.Write(dockey.New("document"), "v2")
	s.Write(dockey.New("account"), "v3")

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.FileCount != 3 || stats.TypeCount != 2 {
		t.Fatalf("got %+v, want FileCount=3 TypeCount=2", stats)
	}
}

func TestTombstonedKey_UsesUnderlyingPath(t *testing.T) {
	s, _ := New(t.TempDir())
	key := dockey.New("document")
	if err := s.Write(key, "v"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tomb := key.Tombstone()
	v, found, err := s.Read(tomb)
	if err != nil || !found || v != "v" {
		t.Fatalf("expected tombstoned key to resolve to the same file: found=%v err=%v v=%q", found, err, v)
	}
}
