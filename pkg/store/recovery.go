package store

import (
	"github.com/bobboyms/docdb/pkg/codec"
	"github.com/bobboyms/docdb/pkg/dblog"
	"github.com/bobboyms/docdb/pkg/wal"
)

// reencodeSnapshotDocument turns a snapshot's already-decoded document
// body (with any cross-document references inlined as shared Go objects)
// back into the hot tier's raw string representation. Each document is
// re-encoded independently, so a field that pointed at another document
// purely to save snapshot-file space is simply written out inline here —
// the hot tier always stores one document's content per key.
func reencodeSnapshotDocument(doc any) (string, error) {
	raw, err := codec.Encode(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// recover runs spec.md §4.8's startup sequence: load the latest snapshot
// into the hot tier, insert cold references for any cold-tier file not
// already represented, open the WAL, and replay it from the snapshot's
// recorded offset. Transaction recovery happens separately in Connect,
// after the transaction manager exists.
func (a *Adapter) recover(walOpts wal.Options) error {
	log := dblog.WithComponent("store")
	startLine := 0

	if snap, ok := a.snap.LoadLatest(); ok {
		for key, doc := range snap.Documents {
			raw, err := reencodeSnapshotDocument(doc)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("skipping undecodable snapshot document")
				continue
			}
			if err := a.hot.Set(key, raw, false); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("hot tier set failed during snapshot load")
			}
		}
		for key, raw := range snap.RawDocuments {
			// Preserved verbatim at snapshot time because it wasn't
			// codec-decodable; restore it unchanged instead of running it
			// back through codec.Encode, which would wrap it in a BSON
			// envelope it never had.
			if err := a.hot.Set(key, raw, false); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("hot tier set failed during snapshot load")
			}
		}
		for set, members := range snap.Collections {
			for _, member := range members {
				a.hot.SAdd(set, member)
			}
		}
		startLine = snap.WalOffset
	}

	coldEntries, err := a.cold.List()
	if err != nil {
		return err
	}
	for _, ce := range coldEntries {
		key := ce.Type + "_" + ce.ID
		if !a.hot.Has(key) {
			a.hot.InsertColdRef(key)
		}
	}

	w, err := wal.NewWriter(walOpts)
	if err != nil {
		return err
	}
	a.wal = w

	reader := wal.NewReader(walOpts.DirPath, walOpts.EncryptionKey)
	handlers := wal.Handlers{
		OnSet: func(key, value string) {
			if err := a.hot.Set(key, value, false); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("hot tier set failed during wal replay")
			}
		},
		OnDelete: func(key string) {
			a.hot.Delete(key)
			if parsed, err := parseKey(key); err == nil {
				a.cold.Delete(parsed)
			}
		},
		OnRename: func(oldKey, newKey string) {
			a.hot.Rename(oldKey, newKey)
		},
		OnSAdd: func(set, member string) {
			a.hot.SAdd(set, member)
		},
		OnSRem: func(set, member string) {
			a.hot.SRem(set, member)
		},
	}
	return reader.Replay(startLine, handlers, nil)
}
