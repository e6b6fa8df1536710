package hottier

import "testing"

func TestSetGet_Roundtrip(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	if err := tier.Set("DOC_aaaaaaa", "hello", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := tier.Get("DOC_aaaaaaa")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if v != "hello" {
		t.Fatalf("got %q, want hello", v)
	}
}

func TestGet_MissingKey(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	_, ok, err := tier.Get("nope")
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestDelete_RemovesEntry(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	tier.Set("k", "v", false)
	tier.Delete("k")
	if tier.Has("k") {
		t.Fatal("expected key removed")
	}
}

func TestRename_PreservesValue(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	tier.Set("old", "v", false)
	tier.Rename("old", "new")
	if tier.Has("old") {
		t.Fatal("old key should be gone")
	}
	v, ok, _ := tier.Get("new")
	if !ok || v != "v" {
		t.Fatalf("expected renamed value, got %q ok=%v", v, ok)
	}
}

func TestDirtyEntries_ExcludesClean(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	tier.Set("dirty-key", "v", true)
	tier.Set("clean-key", "v", false)

	dirty := tier.DirtyEntries()
	if len(dirty) != 1 || dirty[0] != "dirty-key" {
		t.Fatalf("got %v, want [dirty-key]", dirty)
	}

	tier.MarkClean("dirty-key")
	if len(tier.DirtyEntries()) != 0 {
		t.Fatal("expected no dirty entries after MarkClean")
	}
}

func TestEviction_SkipsDirtyAndColdEntries(t *testing.T) {
	var evicted []string
	tier := New(Config{
		MaxMemoryBytes: 200,
		Threshold:      1.0,
		OnEvict: func(key, data string) error {
			evicted = append(evicted, key)
			return nil
		},
	})

	// A dirty entry should never be evicted even though it's the oldest.
	tier.Set("dirty", "xxxxxxxxxx", true)
	tier.Set("clean1", "xxxxxxxxxx", false)
	tier.Set("clean2", "xxxxxxxxxx", false)
	tier.Set("clean3", "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", false)

	if tier.IsCold("dirty") {
		t.Fatal("dirty entry must never be evicted")
	}
	found := false
	for _, k := range evicted {
		if k == "dirty" {
			found = true
		}
	}
	if found {
		t.Fatal("dirty entry must not appear in the evicted set")
	}
}

func TestEviction_PromotesFromColdLoader(t *testing.T) {
	coldStore := map[string]string{}
	tier := New(Config{
		MaxMemoryBytes: 150,
		Threshold:      1.0,
		OnEvict: func(key, data string) error {
			coldStore[key] = data
			return nil
		},
		ColdLoader: func(key string) (string, bool, error) {
			v, ok := coldStore[key]
			return v, ok, nil
		},
	})

	tier.Set("a", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false)
	tier.Set("b", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", false)

	if !tier.IsCold("a") && !tier.IsCold("b") {
		t.Fatal("expected at least one entry evicted to cold")
	}

	// Whichever got evicted should promote back via the cold loader.
	for _, k := range []string{"a", "b"} {
		if tier.IsCold(k) {
			v, ok, err := tier.Get(k)
			if err != nil || !ok {
				t.Fatalf("Get(%s): ok=%v err=%v", k, ok, err)
			}
			if v == "" {
				t.Fatalf("expected promoted value for %s", k)
			}
			if tier.IsCold(k) {
				t.Fatalf("expected %s to be materialized after promotion", k)
			}
		}
	}
}

func TestCollections_SAddSRemSMembers(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	tier.SAdd("DOC?", "aaaaaaa")
	tier.SAdd("DOC?", "bbbbbbb")
	tier.SAdd("DOC?", "aaaaaaa") // duplicate, no-op

	members := tier.SMembers("DOC?")
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2: %v", len(members), members)
	}

	tier.SRem("DOC?", "aaaaaaa")
	members = tier.SMembers("DOC?")
	if len(members) != 1 || members[0] != "bbbbbbb" {
		t.Fatalf("got %v, want [bbbbbbb]", members)
	}
}

func TestInsertColdRef_DoesNotOverwriteExisting(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	tier.Set("k", "v", false)
	tier.InsertColdRef("k")
	v, ok, _ := tier.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected existing materialized entry preserved, got %q ok=%v", v, ok)
	}
}

func TestMaterializedDocumentsAndCollections_Snapshot(t *testing.T) {
	tier := New(Config{MaxMemoryBytes: 1 << 20})
	tier.Set("k1", "v1", false)
	tier.SAdd("SET?", "m1")

	docs := tier.MaterializedDocuments()
	if docs["k1"] != "v1" {
		t.Fatalf("got %v", docs)
	}
	cols := tier.Collections()
	if len(cols["SET?"]) != 1 || cols["SET?"][0] != "m1" {
		t.Fatalf("got %v", cols)
	}
}
