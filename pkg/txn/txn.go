// Package txn implements the long-lived transaction manager: per-txnId
// shadow state backed by a private WAL file, with full commit/abort/undo
// semantics. Generalizes the teacher's MVCC write-transaction machinery
// (pkg/storage/transaction_write.go's buffered write-set + WAL-then-apply
// commit, pkg/storage/transaction_manager.go's registry-of-active-
// transactions shape) from per-row version chains into the spec's
// shadow-document model.
package txn

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/bobboyms/docdb/pkg/dberrors"
	"github.com/bobboyms/docdb/pkg/dblog"
	"github.com/bobboyms/docdb/pkg/wal"
)

const idAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"
const idLen = 7

func newTxnID() string {
	buf := make([]byte, idLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, idLen)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return "txn_" + string(out)
}

// Lookup is the three-way result of a shadow-state read: Deleted means
// the key was explicitly removed within the transaction; Present means
// Value holds the transaction's override; neither means "undefined" —
// the caller must consult the base store.
type Lookup struct {
	Deleted bool
	Present bool
	Value   string
}

// CommitResult is everything the adapter needs to fold a committed
// transaction into the main WAL, hot tier, and pub/sub registry.
type CommitResult struct {
	TxnID   string
	Sets    map[string]string // key -> final value
	Deletes []string
	Renames map[string]string // old -> new
	SAdds   map[string][]string
	SRems   map[string][]string
}

// state is one pending transaction's shadow view plus its undo log.
type state struct {
	txnID             string
	shadowDocs        map[string]string
	deletedKeys       map[string]bool
	shadowCollections map[string]map[string]bool // set -> members added in this txn
	shadowRemovals    map[string]map[string]bool // set -> members removed in this txn
	renames           map[string]string
	actions           []action
	walDir            string
	writer            *wal.Writer
}

// Manager owns every pending transaction, keyed by txnId.
type Manager struct {
	mu      sync.Mutex
	dir     string
	walOpts wal.Options
	pending map[string]*state
}

// New constructs a Manager rooted at dir (typically dataDir/txn),
// using walOpts as the template for each private WAL (DirPath is
// overridden per transaction).
func New(dir string, walOpts wal.Options) *Manager {
	return &Manager{
		dir:     dir,
		walOpts: walOpts,
		pending: make(map[string]*state),
	}
}

func (m *Manager) privateDir(txnID string) string {
	return filepath.Join(m.dir, txnID+".wal")
}

// Begin starts a new transaction: allocates a txnId, creates its private
// WAL directory, and initializes empty shadow state.
func (m *Manager) Begin() (string, error) {
	txnID := newTxnID()

	opts := m.walOpts
	opts.DirPath = m.privateDir(txnID)
	w, err := wal.NewWriter(opts)
	if err != nil {
		return "", err
	}

	st := &state{
		txnID:             txnID,
		shadowDocs:        make(map[string]string),
		deletedKeys:       make(map[string]bool),
		shadowCollections: make(map[string]map[string]bool),
		shadowRemovals:    make(map[string]map[string]bool),
		renames:           make(map[string]string),
		walDir:            opts.DirPath,
		writer:            w,
	}

	m.mu.Lock()
	m.pending[txnID] = st
	m.mu.Unlock()

	return txnID, nil
}

func (m *Manager) lookup(txnID string) (*state, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.pending[txnID]
	if !ok {
		return nil, &dberrors.TransactionNotFoundError{TxnID: txnID}
	}
	return st, nil
}

// Set records key=value in the shadow state, appending a SET entry to
// the private WAL and clearing any pending tombstone for key.
func (m *Manager) Set(txnID, key, value string) error {
	st, err := m.lookup(txnID)
	if err != nil {
		return err
	}

	if _, err := st.writer.Append(wal.Entry{Action: wal.ActionSet, Target: key, Value: value, TxnID: txnID}); err != nil {
		return err
	}

	priorValue, hadPrior := st.shadowDocs[key]
	wasDeleted := st.deletedKeys[key]

	st.shadowDocs[key] = value
	delete(st.deletedKeys, key)

	st.actions = append(st.actions, action{
		kind:       actionSet,
		key:        key,
		hadPrior:   hadPrior,
		priorValue: priorValue,
		wasDeleted: wasDeleted,
	})
	return nil
}

// Get consults only this transaction's shadow state.
func (m *Manager) Get(txnID, key string) (Lookup, error) {
	st, err := m.lookup(txnID)
	if err != nil {
		return Lookup{}, err
	}

	if st.deletedKeys[key] {
		return Lookup{Deleted: true}, nil
	}
	if v, ok := st.shadowDocs[key]; ok {
		return Lookup{Present: true, Value: v}, nil
	}
	return Lookup{}, nil
}

// Delete tombstones key within the shadow state.
func (m *Manager) Delete(txnID, key string) error {
	st, err := m.lookup(txnID)
	if err != nil {
		return err
	}

	if _, err := st.writer.Append(wal.Entry{Action: wal.ActionDelete, Target: key, TxnID: txnID}); err != nil {
		return err
	}

	priorValue, hadPrior := st.shadowDocs[key]

	st.deletedKeys[key] = true
	delete(st.shadowDocs, key)

	st.actions = append(st.actions, action{
		kind:       actionDelete,
		key:        key,
		hadPrior:   hadPrior,
		priorValue: priorValue,
	})
	return nil
}

// Rename moves a key's shadow value (if any) to newKey and records the
// rename mapping.
func (m *Manager) Rename(txnID, oldKey, newKey string) error {
	st, err := m.lookup(txnID)
	if err != nil {
		return err
	}

	if _, err := st.writer.Append(wal.Entry{Action: wal.ActionRename, Target: newKey, OldKey: oldKey, TxnID: txnID}); err != nil {
		return err
	}

	priorRenames := make(map[string]string, len(st.renames))
	for k, v := range st.renames {
		priorRenames[k] = v
	}
	priorOldValue, hadOld := st.shadowDocs[oldKey]
	priorNewValue, hadNew := st.shadowDocs[newKey]

	if hadOld {
		st.shadowDocs[newKey] = priorOldValue
		delete(st.shadowDocs, oldKey)
	}
	st.renames[oldKey] = newKey

	st.actions = append(st.actions, action{
		kind:           actionRename,
		oldKey:         oldKey,
		newKey:         newKey,
		priorRenames:   priorRenames,
		priorOldValue:  priorOldValue,
		priorOldExists: hadOld,
		priorNewValue:  priorNewValue,
		priorNewExists: hadNew,
	})
	return nil
}

// SAdd adds member to the shadow view of set.
func (m *Manager) SAdd(txnID, set, member string) error {
	st, err := m.lookup(txnID)
	if err != nil {
		return err
	}

	if _, err := st.writer.Append(wal.Entry{Action: wal.ActionSAdd, Target: set, Member: member, TxnID: txnID}); err != nil {
		return err
	}

	if st.shadowCollections[set] == nil {
		st.shadowCollections[set] = make(map[string]bool)
	}
	hadBefore := st.shadowCollections[set][member]
	hadRemoval := st.shadowRemovals[set] != nil && st.shadowRemovals[set][member]

	st.shadowCollections[set][member] = true
	if st.shadowRemovals[set] != nil {
		delete(st.shadowRemovals[set], member)
	}

	st.actions = append(st.actions, action{
		kind: actionSAdd, set: set, member: member,
		hadBefore: hadBefore, hadRemoval: hadRemoval,
	})
	return nil
}

// SRem removes member from the shadow view of set. Per the transaction
// manager's recommended (non-source) behavior, this is tracked so commit
// squashes it into a real SREM against the base store, not only against
// this transaction's own additions.
func (m *Manager) SRem(txnID, set, member string) error {
	st, err := m.lookup(txnID)
	if err != nil {
		return err
	}

	if _, err := st.writer.Append(wal.Entry{Action: wal.ActionSRem, Target: set, Member: member, TxnID: txnID}); err != nil {
		return err
	}

	hadInCollection := st.shadowCollections[set] != nil && st.shadowCollections[set][member]
	if st.shadowCollections[set] != nil {
		delete(st.shadowCollections[set], member)
	}

	hadRemovalBefore := st.shadowRemovals[set] != nil && st.shadowRemovals[set][member]
	if st.shadowRemovals[set] == nil {
		st.shadowRemovals[set] = make(map[string]bool)
	}
	st.shadowRemovals[set][member] = true

	st.actions = append(st.actions, action{
		kind: actionSRem, set: set, member: member,
		hadBefore: hadInCollection, hadRemoval: hadRemovalBefore,
	})
	return nil
}

// SMembers returns this transaction's shadow-added members of set (the
// adapter unions this with the base store's members).
func (m *Manager) SMembers(txnID, set string) ([]string, error) {
	st, err := m.lookup(txnID)
	if err != nil {
		return nil, err
	}
	members := st.shadowCollections[set]
	out := make([]string, 0, len(members))
	for member := range members {
		out = append(out, member)
	}
	return out, nil
}

// SRemovals returns the members explicitly removed within txnID, so the
// adapter can exclude them from a union read before commit.
func (m *Manager) SRemovals(txnID, set string) ([]string, error) {
	st, err := m.lookup(txnID)
	if err != nil {
		return nil, err
	}
	removed := st.shadowRemovals[set]
	out := make([]string, 0, len(removed))
	for member := range removed {
		out = append(out, member)
	}
	return out, nil
}

// Commit squashes the transaction's shadow state into a CommitResult,
// deletes its private WAL, and drops the pending record.
func (m *Manager) Commit(txnID string) (CommitResult, error) {
	st, err := m.lookup(txnID)
	if err != nil {
		return CommitResult{}, err
	}

	result := CommitResult{
		TxnID:   txnID,
		Sets:    make(map[string]string, len(st.shadowDocs)),
		Renames: make(map[string]string, len(st.renames)),
		SAdds:   make(map[string][]string, len(st.shadowCollections)),
		SRems:   make(map[string][]string, len(st.shadowRemovals)),
	}

	for key, value := range st.shadowDocs {
		result.Sets[key] = value
	}
	for key := range st.deletedKeys {
		result.Deletes = append(result.Deletes, key)
	}
	for old, new := range st.renames {
		if _, overwrittenBySet := st.shadowDocs[new]; overwrittenBySet {
			continue
		}
		result.Renames[old] = new
	}
	for set, members := range st.shadowCollections {
		for member := range members {
			result.SAdds[set] = append(result.SAdds[set], member)
		}
	}
	for set, members := range st.shadowRemovals {
		for member := range members {
			result.SRems[set] = append(result.SRems[set], member)
		}
	}

	if err := m.discard(st); err != nil {
		return CommitResult{}, err
	}
	return result, nil
}

// Abort discards the transaction's private WAL and shadow state without
// producing any entries.
func (m *Manager) Abort(txnID string) error {
	st, err := m.lookup(txnID)
	if err != nil {
		return err
	}
	return m.discard(st)
}

func (m *Manager) discard(st *state) error {
	if err := st.writer.Close(); err != nil {
		return err
	}
	if err := os.RemoveAll(st.walDir); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.pending, st.txnID)
	m.mu.Unlock()
	return nil
}

// Status reports whether txnID is currently pending.
func (m *Manager) Status(txnID string) (pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[txnID]
	return ok
}

// ListPending returns every currently pending txnId.
func (m *Manager) ListPending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pending))
	for id := range m.pending {
		out = append(out, id)
	}
	return out
}

// Pop removes and reverses the most recently recorded action for txnID,
// truncating the matching line from its private WAL. Returns ok=false if
// there is nothing to pop.
func (m *Manager) Pop(txnID string) (ok bool, err error) {
	st, err := m.lookup(txnID)
	if err != nil {
		return false, err
	}
	if len(st.actions) == 0 {
		return false, nil
	}

	last := st.actions[len(st.actions)-1]
	st.actions = st.actions[:len(st.actions)-1]
	undo(st, last)

	if err := st.writer.Close(); err != nil {
		return false, err
	}
	if err := wal.TruncateLastLine(st.walDir); err != nil {
		return false, err
	}

	opts := m.walOpts
	opts.DirPath = st.walDir
	w, err := wal.NewWriter(opts)
	if err != nil {
		return false, err
	}
	st.writer = w

	return true, nil
}

// Recover scans the transaction directory on startup, reconstructing
// shadow state from every *.wal entry so pending transactions survive a
// restart. The undo stack is not rebuilt: Pop on a recovered transaction
// reverses only actions made after recovery. Directly modeled on the teacher's
// Recover(walPath) WAL-replay structure, narrowed to one private log per
// transaction.
func (m *Manager) Recover() error {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	log := dblog.WithComponent("txn")

	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		name := ent.Name()
		if filepath.Ext(name) != ".wal" {
			continue
		}
		txnID := name[:len(name)-len(".wal")]
		walDir := filepath.Join(m.dir, name)

		st := &state{
			txnID:             txnID,
			shadowDocs:        make(map[string]string),
			deletedKeys:       make(map[string]bool),
			shadowCollections: make(map[string]map[string]bool),
			shadowRemovals:    make(map[string]map[string]bool),
			renames:           make(map[string]string),
			walDir:            walDir,
		}

		reader := wal.NewReader(walDir, m.walOpts.EncryptionKey)
		replayErr := reader.Replay(0, wal.Handlers{}, func(e wal.Entry) {
			applyRecoveredEntry(st, e)
		})
		if replayErr != nil {
			log.Warn().Err(replayErr).Str("txn", txnID).Msg("failed reading private wal during recovery")
		}

		opts := m.walOpts
		opts.DirPath = walDir
		w, err := wal.NewWriter(opts)
		if err != nil {
			log.Warn().Err(err).Str("txn", txnID).Msg("failed reopening private wal during recovery")
			continue
		}
		st.writer = w

		m.mu.Lock()
		m.pending[txnID] = st
		m.mu.Unlock()
	}
	return nil
}

func applyRecoveredEntry(st *state, e wal.Entry) {
	switch e.Action {
	case wal.ActionSet:
		st.shadowDocs[e.Target] = e.Value
		delete(st.deletedKeys, e.Target)
	case wal.ActionDelete:
		st.deletedKeys[e.Target] = true
		delete(st.shadowDocs, e.Target)
	case wal.ActionRename:
		if v, ok := st.shadowDocs[e.OldKey]; ok {
			st.shadowDocs[e.Target] = v
			delete(st.shadowDocs, e.OldKey)
		}
		st.renames[e.OldKey] = e.Target
	case wal.ActionSAdd:
		if st.shadowCollections[e.Target] == nil {
			st.shadowCollections[e.Target] = make(map[string]bool)
		}
		st.shadowCollections[e.Target][e.Member] = true
		if st.shadowRemovals[e.Target] != nil {
			delete(st.shadowRemovals[e.Target], e.Member)
		}
	case wal.ActionSRem:
		if st.shadowCollections[e.Target] != nil {
			delete(st.shadowCollections[e.Target], e.Member)
		}
		if st.shadowRemovals[e.Target] == nil {
			st.shadowRemovals[e.Target] = make(map[string]bool)
		}
		st.shadowRemovals[e.Target][e.Member] = true
	}
}
