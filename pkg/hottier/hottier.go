// Package hottier implements the in-memory document cache: a bounded map
// of materialized values and cold references, with LRU-like scored
// eviction once the memory budget is exceeded. Modeled on the teacher's
// pkg/heap mutex-guarded manager shape, generalized from a page/segment
// file into a plain in-memory map[string]*entry.
package hottier

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bobboyms/docdb/pkg/dberrors"
)

// entry holds either a materialized value or a cold reference, never both.
type entry struct {
	// materialized fields
	data        string
	size        int64
	lastAccess  int64 // unix millis
	accessCount int64
	dirty       bool

	cold bool
}

// ColdLoader fetches a value evicted to cold storage, promoting it back
// into the hot tier on a miss.
type ColdLoader func(key string) (string, bool, error)

// OnEvict persists an evicted materialized value to cold storage.
type OnEvict func(key string, data string) error

// Tier is the hot-tier cache plus its collection (set) index.
type Tier struct {
	mu sync.Mutex

	maxMemory int64
	threshold float64
	usedBytes int64

	entries     map[string]*entry
	collections map[string][]string // set name -> ordered members

	onEvict    OnEvict
	coldLoader ColdLoader

	now func() int64
}

// Config configures a new Tier.
type Config struct {
	MaxMemoryBytes int64
	Threshold      float64 // fraction of MaxMemoryBytes at which eviction begins
	OnEvict        OnEvict
	ColdLoader     ColdLoader
}

// New constructs an empty Tier.
func New(cfg Config) *Tier {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.8
	}
	return &Tier{
		maxMemory:   cfg.MaxMemoryBytes,
		threshold:   threshold,
		entries:     make(map[string]*entry),
		collections: make(map[string][]string),
		onEvict:     cfg.OnEvict,
		coldLoader:  cfg.ColdLoader,
		now:         func() int64 { return time.Now().UnixMilli() },
	}
}

// estimateSize approximates a document's memory footprint: roughly twice
// its byte length plus a small per-entry constant, per spec.md §4.4.
func estimateSize(value string) int64 {
	return int64(2*len(value) + 64)
}

// Set stores value under key. dirty marks the entry as not yet durably
// written via WAL, exempting it from eviction until MarkClean. Setting an
// existing key increments its access count.
func (t *Tier) Set(key, value string, dirty bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if existing, ok := t.entries[key]; ok && !existing.cold {
		t.usedBytes -= existing.size
		existing.data = value
		existing.size = estimateSize(value)
		existing.lastAccess = now
		existing.accessCount++
		existing.dirty = dirty
		t.usedBytes += existing.size
	} else {
		size := estimateSize(value)
		t.entries[key] = &entry{
			data:        value,
			size:        size,
			lastAccess:  now,
			accessCount: 1,
			dirty:       dirty,
		}
		t.usedBytes += size
	}

	if t.maxMemory > 0 && t.usedBytes > int64(float64(t.maxMemory)*t.threshold) {
		return t.evictLocked()
	}
	return nil
}

// Get returns the value for key, promoting it from cold storage on a
// cold-reference hit. Returns ok=false if the key is absent or the cold
// loader reports it missing (the stale cold reference is removed).
func (t *Tier) Get(key string) (value string, ok bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, present := t.entries[key]
	if !present {
		return "", false, nil
	}

	if !e.cold {
		e.lastAccess = t.now()
		e.accessCount++
		return e.data, true, nil
	}

	if t.coldLoader == nil {
		return "", false, nil
	}
	data, found, err := t.coldLoader(key)
	if err != nil {
		return "", false, err
	}
	if !found {
		delete(t.entries, key)
		return "", false, nil
	}

	// Promotion resets dirty=false and accessCount=1, per spec.md §9 open
	// question 4: preserve the source contract rather than recomputing it.
	t.entries[key] = &entry{
		data:        data,
		size:        estimateSize(data),
		lastAccess:  t.now(),
		accessCount: 1,
		dirty:       false,
	}
	return data, true, nil
}

// Has reports whether key is present (materialized or cold).
func (t *Tier) Has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// IsCold reports whether key is present only as a cold reference.
func (t *Tier) IsCold(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return ok && e.cold
}

// Delete removes key entirely (materialized or cold).
func (t *Tier) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		if !e.cold {
			t.usedBytes -= e.size
		}
		delete(t.entries, key)
	}
}

// Rename moves the entry at oldKey to newKey, preserving its contents.
func (t *Tier) Rename(oldKey, newKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[oldKey]; ok {
		delete(t.entries, oldKey)
		t.entries[newKey] = e
	}
}

// MarkClean clears the dirty flag on key, making it eviction-eligible.
func (t *Tier) MarkClean(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok && !e.cold {
		e.dirty = false
	}
}

// DirtyEntries returns the keys of all materialized entries not yet
// durably written.
func (t *Tier) DirtyEntries() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var keys []string
	for k, e := range t.entries {
		if !e.cold && e.dirty {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clear empties the tier (materialized entries, cold references, and
// collections).
func (t *Tier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*entry)
	t.collections = make(map[string][]string)
	t.usedBytes = 0
}

// InsertColdRef marks key as present only in cold storage, used during
// recovery when a cold-tier file has no corresponding hot entry yet.
func (t *Tier) InsertColdRef(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok {
		t.entries[key] = &entry{cold: true}
	}
}

// UsedBytes returns the current estimated memory footprint of
// materialized entries.
func (t *Tier) UsedBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usedBytes
}

// Count returns the total number of entries (materialized + cold).
func (t *Tier) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// scoredKey is a candidate for eviction.
type scoredKey struct {
	key   string
	score float64
	size  int64
}

// evictLocked runs the scored eviction pass. Caller must hold t.mu.
func (t *Tier) evictLocked() error {
	target := int64(float64(t.maxMemory) * t.threshold * 0.8)

	var candidates []scoredKey
	for k, e := range t.entries {
		if e.cold || e.dirty {
			continue
		}
		score := float64(e.lastAccess) * math.Log(float64(e.accessCount)+1)
		candidates = append(candidates, scoredKey{key: k, score: score, size: e.size})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	for _, c := range candidates {
		if t.usedBytes <= target {
			break
		}
		e := t.entries[c.key]
		if t.onEvict != nil {
			if err := t.onEvict(c.key, e.data); err != nil {
				return &dberrors.IOError{Op: "evict", Path: c.key, Cause: err}
			}
		}
		t.entries[c.key] = &entry{cold: true}
		t.usedBytes -= c.size
	}

	return nil
}

// --- Collections (set name -> ordered member list) ---

// SAdd appends member to the named collection if not already present.
func (t *Tier) SAdd(set, member string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	members := t.collections[set]
	for _, m := range members {
		if m == member {
			return
		}
	}
	t.collections[set] = append(members, member)
}

// SRem removes member from the named collection.
func (t *Tier) SRem(set, member string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	members := t.collections[set]
	for i, m := range members {
		if m == member {
			t.collections[set] = append(members[:i], members[i+1:]...)
			return
		}
	}
}

// SMembers returns the ordered members of the named collection.
func (t *Tier) SMembers(set string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	members := t.collections[set]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// Collections returns a snapshot of every collection's members, for
// building a snapshot-manager state.
func (t *Tier) Collections() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]string, len(t.collections))
	for k, v := range t.collections {
		members := make([]string, len(v))
		copy(members, v)
		out[k] = members
	}
	return out
}

// MaterializedDocuments returns a snapshot of every materialized (non-cold)
// document's value, for building a snapshot-manager state.
func (t *Tier) MaterializedDocuments() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string)
	for k, e := range t.entries {
		if !e.cold {
			out[k] = e.data
		}
	}
	return out
}
