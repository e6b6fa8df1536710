package store

import (
	"github.com/bobboyms/docdb/pkg/pubsub"
	"github.com/bobboyms/docdb/pkg/snapshot"
	"github.com/bobboyms/docdb/pkg/wal"
)

func (a *Adapter) publish(op, key, value string) {
	a.pubs.Publish(eventsChannel, Event{Op: op, Key: key, Value: value})
}

// Set writes key=value. With txnID, the write lands only in that
// transaction's shadow state; without one, it goes straight to the WAL
// and hot tier.
func (a *Adapter) Set(key, value string, txnID string) error {
	if txnID != "" {
		return a.txns.Set(txnID, key, value)
	}

	if _, err := a.wal.Append(wal.Entry{Action: wal.ActionSet, Target: key, Value: value}); err != nil {
		return err
	}
	if err := a.hot.Set(key, value, true); err != nil {
		return err
	}
	a.hot.MarkClean(key)
	a.stats.WALAppends.Inc()
	a.publish("set", key, value)
	return nil
}

// Get reads key. With txnID, the transaction's shadow state is consulted
// first: "deleted" returns absent, a shadow value is returned directly,
// and "undefined" falls through to the hot tier.
func (a *Adapter) Get(key string, txnID string) (value string, found bool, err error) {
	if txnID != "" {
		lk, err := a.txns.Get(txnID, key)
		if err != nil {
			return "", false, err
		}
		if lk.Deleted {
			return "", false, nil
		}
		if lk.Present {
			return lk.Value, true, nil
		}
	}
	return a.hot.Get(key)
}

// Delete removes key.
func (a *Adapter) Delete(key string, txnID string) error {
	if txnID != "" {
		return a.txns.Delete(txnID, key)
	}

	if _, err := a.wal.Append(wal.Entry{Action: wal.ActionDelete, Target: key}); err != nil {
		return err
	}
	a.hot.Delete(key)
	if parsed, err := parseKey(key); err == nil {
		if err := a.cold.Delete(parsed); err != nil {
			return err
		}
	}
	a.stats.WALAppends.Inc()
	a.publish("delete", key, "")
	return nil
}

// Rename moves a document from oldKey to newKey.
func (a *Adapter) Rename(oldKey, newKey string, txnID string) error {
	if txnID != "" {
		return a.txns.Rename(txnID, oldKey, newKey)
	}

	if _, err := a.wal.Append(wal.Entry{Action: wal.ActionRename, Target: newKey, OldKey: oldKey}); err != nil {
		return err
	}
	a.hot.Rename(oldKey, newKey)
	a.stats.WALAppends.Inc()
	a.publish("rename", newKey, oldKey)
	return nil
}

// SAdd adds member to the named collection.
func (a *Adapter) SAdd(set, member string, txnID string) error {
	if txnID != "" {
		return a.txns.SAdd(txnID, set, member)
	}

	if _, err := a.wal.Append(wal.Entry{Action: wal.ActionSAdd, Target: set, Member: member}); err != nil {
		return err
	}
	a.hot.SAdd(set, member)
	a.stats.WALAppends.Inc()
	a.publish("sadd", set, member)
	return nil
}

// SRem removes member from the named collection.
func (a *Adapter) SRem(set, member string, txnID string) error {
	if txnID != "" {
		return a.txns.SRem(txnID, set, member)
	}

	if _, err := a.wal.Append(wal.Entry{Action: wal.ActionSRem, Target: set, Member: member}); err != nil {
		return err
	}
	a.hot.SRem(set, member)
	a.stats.WALAppends.Inc()
	a.publish("srem", set, member)
	return nil
}

// SMembers returns the deduplicated union of the main store's members
// and a transaction's shadow additions, minus its shadow removals, when
// txnID is present.
func (a *Adapter) SMembers(set string, txnID string) ([]string, error) {
	base := a.hot.SMembers(set)
	if txnID == "" {
		return base, nil
	}

	added, err := a.txns.SMembers(txnID, set)
	if err != nil {
		return nil, err
	}
	removed, err := a.txns.SRemovals(txnID, set)
	if err != nil {
		return nil, err
	}
	removedSet := make(map[string]bool, len(removed))
	for _, m := range removed {
		removedSet[m] = true
	}

	seen := make(map[string]bool, len(base)+len(added))
	out := make([]string, 0, len(base)+len(added))
	for _, m := range base {
		if removedSet[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	for _, m := range added {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

// Begin starts a new transaction and returns its txnId.
func (a *Adapter) Begin() (string, error) {
	a.stats.TxnsActive.Inc()
	return a.txns.Begin()
}

// Commit folds a transaction's squashed shadow state into the main WAL
// and hot tier, then fans the resulting events out over pub/sub.
func (a *Adapter) Commit(txnID string) error {
	result, err := a.txns.Commit(txnID)
	if err != nil {
		return err
	}

	for key, value := range result.Sets {
		if _, err := a.wal.Append(wal.Entry{Action: wal.ActionSet, Target: key, Value: value, TxnID: txnID}); err != nil {
			return err
		}
		if err := a.hot.Set(key, value, true); err != nil {
			return err
		}
		a.hot.MarkClean(key)
		a.publish("set", key, value)
	}
	for _, key := range result.Deletes {
		if _, err := a.wal.Append(wal.Entry{Action: wal.ActionDelete, Target: key, TxnID: txnID}); err != nil {
			return err
		}
		a.hot.Delete(key)
		if parsed, err := parseKey(key); err == nil {
			a.cold.Delete(parsed)
		}
		a.publish("delete", key, "")
	}
	for old, new := range result.Renames {
		if _, err := a.wal.Append(wal.Entry{Action: wal.ActionRename, Target: new, OldKey: old, TxnID: txnID}); err != nil {
			return err
		}
		a.hot.Rename(old, new)
		a.publish("rename", new, old)
	}
	for set, members := range result.SAdds {
		for _, member := range members {
			if _, err := a.wal.Append(wal.Entry{Action: wal.ActionSAdd, Target: set, Member: member, TxnID: txnID}); err != nil {
				return err
			}
			a.hot.SAdd(set, member)
			a.publish("sadd", set, member)
		}
	}
	for set, members := range result.SRems {
		for _, member := range members {
			if _, err := a.wal.Append(wal.Entry{Action: wal.ActionSRem, Target: set, Member: member, TxnID: txnID}); err != nil {
				return err
			}
			a.hot.SRem(set, member)
			a.publish("srem", set, member)
		}
	}

	a.stats.TxnsActive.Dec()
	a.stats.TxnsCommitted.Inc()
	return nil
}

// Abort discards a pending transaction without applying any of its
// shadow state.
func (a *Adapter) Abort(txnID string) error {
	if err := a.txns.Abort(txnID); err != nil {
		return err
	}
	a.stats.TxnsActive.Dec()
	a.stats.TxnsAborted.Inc()
	return nil
}

// Pop reverses the most recent operation recorded in a pending
// transaction.
func (a *Adapter) Pop(txnID string) (bool, error) {
	return a.txns.Pop(txnID)
}

// TxnStatus reports whether txnID is currently pending.
func (a *Adapter) TxnStatus(txnID string) bool {
	return a.txns.Status(txnID)
}

// Publish fans payload out to every current subscriber of channel.
func (a *Adapter) Publish(channel string, payload any) {
	a.pubs.Publish(channel, payload)
}

// Subscribe registers handler on channel and returns a token usable with
// Unsubscribe.
func (a *Adapter) Subscribe(channel string, handler pubsub.Handler) int {
	return a.pubs.Subscribe(channel, handler)
}

// Unsubscribe removes a subscription previously returned by Subscribe.
func (a *Adapter) Unsubscribe(channel string, id int) {
	a.pubs.Unsubscribe(channel, id)
}

// SnapshotStats reports whether a snapshot file exists and its size.
func (a *Adapter) SnapshotStats() snapshot.Stats {
	return a.snap.Stats()
}
