// Package snapshot implements the single-file, whole-hot-tier,
// optionally-encrypted point-in-time dump used for fast recovery.
// Generalizes the teacher's pkg/storage/checkpoint.go (CheckpointManager,
// atomic temp-then-rename, per-table file naming) into one file covering
// the entire hot tier rather than one B+tree per table.
package snapshot

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobboyms/docdb/pkg/codec"
	"github.com/bobboyms/docdb/pkg/crypto"
	"github.com/bobboyms/docdb/pkg/dberrors"
	"github.com/bobboyms/docdb/pkg/dblog"
)

const fileName = "snapshot.jss"

// metadataFields are never rewritten into a reference pointer during v2
// reference resolution.
var metadataFields = map[string]bool{
	"$ID":       true,
	"createdAt": true,
	"updatedAt": true,
	"deletedAt": true,
	"deletedBy": true,
}

// State is what the adapter hands to Create: a consistent view of the
// hot tier's materialized documents (raw opaque values, keyed by
// document key) and its collections, paired with the WAL line count at
// which the view was taken.
type State struct {
	WalOffset   int
	Documents   map[string]string // key -> raw serialized value
	Collections map[string][]string
}

// Snapshot is the decoded, in-memory form of a loaded (or about-to-be-
// written) snapshot file.
type Snapshot struct {
	Version      int
	WalOffset    int
	Timestamp    int64
	Documents    map[string]any    // decoded document bodies (v2: cross-references resolved to shared objects)
	RawDocuments map[string]string // stored values that were not codec-decodable, preserved byte-for-byte
	Collections  map[string][]string
}

// Store manages the single snapshot file under dataDir.
type Store struct {
	dataDir       string
	encryptionKey []byte

	mu         sync.Mutex
	isCreating bool

	scheduler *schedulerState
}

// New constructs a Store rooted at dataDir. encryptionKey may be nil.
func New(dataDir string, encryptionKey []byte) *Store {
	return &Store{dataDir: dataDir, encryptionKey: encryptionKey}
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, fileName)
}

// Create builds a version-2 snapshot from state, resolving inter-document
// string references into shared Go objects so the codec's cyclic-
// reference mechanism encodes them as pointers, then writes it to a temp
// file and renames it into place. Refuses concurrent creation.
func (s *Store) Create(state State) (string, error) {
	s.mu.Lock()
	if s.isCreating {
		s.mu.Unlock()
		return "", &dberrors.SnapshotInProgressError{}
	}
	s.isCreating = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isCreating = false
		s.mu.Unlock()
	}()

	decoded := make(map[string]any, len(state.Documents))
	raw := make(map[string]string)
	for key, value := range state.Documents {
		v, err := codec.Decode([]byte(value))
		if err != nil {
			// An undecodable document body is preserved verbatim, byte
			// for byte, rather than failing the whole snapshot. It is
			// kept out of the reference-resolution/codec-encoding path
			// entirely so it comes back unchanged on reload.
			raw[key] = value
			continue
		}
		decoded[key] = v
	}
	resolveReferences(decoded)

	wire := map[string]any{
		"version":      int64(2),
		"walOffset":    int64(state.WalOffset),
		"timestamp":    time.Now().UnixMilli(),
		"documents":    decoded,
		"rawDocuments": rawToAny(raw),
		"collections":  collectionsToAny(state.Collections),
	}

	plain, err := codec.Encode(wire)
	if err != nil {
		return "", err
	}

	payload := plain
	if s.encryptionKey != nil {
		sealed, err := crypto.Encrypt(s.encryptionKey, plain, nil)
		if err != nil {
			return "", err
		}
		payload = []byte(base64.StdEncoding.EncodeToString(sealed))
	}

	path := s.path()
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, payload, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}

	return path, nil
}

// LoadLatest reads and decodes the snapshot file. It returns (nil, false)
// rather than an error on any failure (missing file, corrupt data, wrong
// key) so the caller falls back to WAL-only recovery, per spec.md §4.6.
func (s *Store) LoadLatest() (*Snapshot, bool) {
	log := dblog.WithComponent("snapshot")

	raw, err := os.ReadFile(s.path())
	if err != nil {
		return nil, false
	}

	plain := raw
	if s.encryptionKey != nil {
		sealed, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			log.Warn().Err(err).Msg("snapshot base64 decode failed")
			return nil, false
		}
		plain, err = crypto.Decrypt(s.encryptionKey, sealed, nil)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot decrypt failed")
			return nil, false
		}
	}

	decoded, err := codec.Decode(plain)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot decode failed")
		return nil, false
	}

	top, ok := decoded.(map[string]any)
	if !ok {
		log.Warn().Msg("snapshot body was not a document")
		return nil, false
	}

	snap := &Snapshot{Version: 1}
	if v, ok := top["version"]; ok {
		if n, ok := asInt(v); ok {
			snap.Version = int(n)
		}
	}
	if v, ok := top["walOffset"]; ok {
		if n, ok := asInt(v); ok {
			snap.WalOffset = int(n)
		}
	}
	if v, ok := top["timestamp"]; ok {
		if n, ok := asInt(v); ok {
			snap.Timestamp = n
		}
	}
	if docs, ok := top["documents"].(map[string]any); ok {
		snap.Documents = docs
	}
	if rawDocs, ok := top["rawDocuments"]; ok {
		snap.RawDocuments = anyToRaw(rawDocs)
	}
	if cols, ok := top["collections"]; ok {
		snap.Collections = anyToCollections(cols)
	}

	return snap, true
}

// Stats reports whether a snapshot file exists and its size.
type Stats struct {
	Exists bool
	Bytes  int64
}

func (s *Store) Stats() Stats {
	info, err := os.Stat(s.path())
	if err != nil {
		return Stats{}
	}
	return Stats{Exists: true, Bytes: info.Size()}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func collectionsToAny(cols map[string][]string) map[string]any {
	out := make(map[string]any, len(cols))
	for k, members := range cols {
		list := make([]any, len(members))
		for i, m := range members {
			list[i] = m
		}
		out[k] = list
	}
	return out
}

func rawToAny(raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

func anyToRaw(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func anyToCollections(v any) map[string][]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(m))
	for set, members := range m {
		list, ok := members.([]any)
		if !ok {
			continue
		}
		strs := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				strs = append(strs, s)
			}
		}
		out[set] = strs
	}
	return out
}
