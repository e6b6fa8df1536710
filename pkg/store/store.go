// Package store implements the storage adapter: the single orchestrating
// façade over the hot tier, cold tier, WAL, snapshot manager, transaction
// manager, and pub/sub registry. Generalizes the teacher's StorageEngine
// (pkg/storage/engine.go) — same role, same "nobody touches the
// subsystems but me" ownership model — onto the spec's document/key-value
// surface instead of tables/B+trees.
package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobboyms/docdb/pkg/coldtier"
	"github.com/bobboyms/docdb/pkg/crypto"
	"github.com/bobboyms/docdb/pkg/dberrors"
	"github.com/bobboyms/docdb/pkg/dbconfig"
	"github.com/bobboyms/docdb/pkg/dblog"
	"github.com/bobboyms/docdb/pkg/hottier"
	"github.com/bobboyms/docdb/pkg/metrics"
	"github.com/bobboyms/docdb/pkg/pubsub"
	"github.com/bobboyms/docdb/pkg/snapshot"
	"github.com/bobboyms/docdb/pkg/txn"
	"github.com/bobboyms/docdb/pkg/wal"
)

// Event is published on the "docdb" pub/sub channel for every applied
// mutation, including ones folded in from a transaction commit.
type Event struct {
	Op    string // "set", "delete", "rename", "sadd", "srem"
	Key   string
	Value string
}

const eventsChannel = "docdb"

// Adapter is the storage engine's single entry point.
type Adapter struct {
	mu        sync.Mutex
	cfg       dbconfig.Config
	connected bool

	keyManager *crypto.KeyManager
	encKey     []byte

	hot   *hottier.Tier
	cold  *coldtier.Store
	wal   *wal.Writer
	snap  *snapshot.Store
	txns  *txn.Manager
	pubs  *pubsub.Registry
	stats *metrics.Registry
}

// Connect initializes every subsystem under cfg.DataDir and runs the
// spec.md §4.8 recovery sequence: load latest snapshot, seed cold
// references, open the WAL, replay it from the snapshot's recorded
// offset, then recover pending transactions from their private WALs.
func Connect(cfg dbconfig.Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := dblog.WithComponent("store")

	if cfg.DataDir == "" {
		cfg.DataDir = dbconfig.Default().DataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, &dberrors.IOError{Op: "mkdir", Path: cfg.DataDir, Cause: err}
	}

	a := &Adapter{
		cfg:   cfg,
		pubs:  pubsub.New(),
		stats: metrics.New(nil),
	}

	var encKey []byte
	if cfg.Encryption.Enabled {
		provider, err := buildKeyProvider(cfg.Encryption)
		if err != nil {
			return nil, err
		}
		a.keyManager = crypto.NewKeyManager(provider)
		if err := a.keyManager.Initialize(context.Background()); err != nil {
			return nil, err
		}
		material, err := a.keyManager.GetKey()
		if err != nil {
			return nil, err
		}
		encKey = material.Key
	}
	a.encKey = encKey

	coldDir := filepath.Join(cfg.DataDir, "cold")
	cold, err := coldtier.New(coldDir)
	if err != nil {
		return nil, err
	}
	a.cold = cold

	a.hot = hottier.New(hottier.Config{
		MaxMemoryBytes: int64(cfg.MaxMemoryBytes()),
		Threshold:      cfg.EvictionThreshold,
		OnEvict: func(key, data string) error {
			parsed, err := parseKey(key)
			if err != nil {
				return err
			}
			a.stats.HotTierEvictions.Inc()
			return a.cold.Write(parsed, data)
		},
		ColdLoader: func(key string) (string, bool, error) {
			parsed, err := parseKey(key)
			if err != nil {
				return "", false, err
			}
			return a.cold.Read(parsed)
		},
	})

	a.snap = snapshot.New(cfg.DataDir, encKey)

	walDir := filepath.Join(cfg.DataDir, "wal")
	walOpts := wal.Options{
		DirPath:       walDir,
		SegmentSize:   cfg.WALSegmentSize,
		FsyncMode:     convertFsyncMode(cfg.FsyncMode),
		FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
		EncryptionKey: encKey,
	}

	if err := a.recover(walOpts); err != nil {
		return nil, err
	}

	a.txns = txn.New(filepath.Join(cfg.DataDir, "txn"), walOpts)
	if err := a.txns.Recover(); err != nil {
		log.Warn().Err(err).Msg("pending transaction recovery reported errors")
	}

	interval := cfg.SnapshotInterval
	if interval <= 0 {
		interval = snapshot.DefaultInterval
	}
	a.snap.StartScheduler(interval, a.takeScheduledSnapshot)

	a.connected = true
	return a, nil
}

func buildKeyProvider(enc dbconfig.Encryption) (crypto.KeyProvider, error) {
	switch enc.Provider {
	case dbconfig.KeyProviderEnv:
		return crypto.NewEnvKeyProvider(enc.EnvVar), nil
	case dbconfig.KeyProviderFile:
		return crypto.NewFileKeyProvider(enc.FilePath, enc.AllowInsecureFile), nil
	case dbconfig.KeyProviderRemote:
		p := crypto.NewRemoteKeyProvider(enc.RemoteEndpoint, enc.RemoteKeyID)
		if enc.RemoteBearerToken != "" {
			p.BearerToken = enc.RemoteBearerToken
		}
		if enc.RemoteMaxRetries > 0 {
			p.MaxRetries = enc.RemoteMaxRetries
		}
		if enc.RemoteRetryDelay > 0 {
			p.RetryDelay = enc.RemoteRetryDelay
		}
		if enc.RemoteTimeout > 0 {
			p.Timeout = enc.RemoteTimeout
		}
		return p, nil
	default:
		return nil, &dberrors.ConfigError{Field: "encryption.keyProvider", Reason: "unknown provider"}
	}
}

func convertFsyncMode(m dbconfig.FsyncMode) wal.FsyncMode {
	switch m {
	case dbconfig.FsyncAlways:
		return wal.FsyncAlways
	case dbconfig.FsyncNone:
		return wal.FsyncNone
	default:
		return wal.FsyncBatched
	}
}

// Disconnect stops the snapshot scheduler, attempts one final best-effort
// snapshot, closes the WAL, and clears the pub/sub registry. Idempotent.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return nil
	}

	log := dblog.WithComponent("store")

	a.snap.StopScheduler()
	if err := a.snapshotLocked(); err != nil {
		log.Warn().Err(err).Msg("final snapshot on disconnect failed")
	}

	var err error
	if a.wal != nil {
		err = a.wal.Close()
	}
	a.pubs.Clear()
	a.connected = false
	return err
}
