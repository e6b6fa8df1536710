// Package dbconfig holds the engine's enumerated configuration (spec §6)
// plus defaults and validation.
package dbconfig

import (
	"os"
	"time"

	"github.com/bobboyms/docdb/pkg/dberrors"
	"gopkg.in/yaml.v3"
)

// FsyncMode selects the WAL durability/throughput tradeoff.
type FsyncMode string

const (
	FsyncAlways  FsyncMode = "always"
	FsyncBatched FsyncMode = "batched"
	FsyncNone    FsyncMode = "none"
)

// KeyProviderKind selects which crypto key provider backs encryption.
type KeyProviderKind string

const (
	KeyProviderEnv    KeyProviderKind = "env"
	KeyProviderFile   KeyProviderKind = "file"
	KeyProviderRemote KeyProviderKind = "remote"
)

// Encryption configures at-rest encryption for the WAL and snapshots.
type Encryption struct {
	Enabled   bool            `yaml:"enabled"`
	Algorithm string          `yaml:"algorithm"`
	Provider  KeyProviderKind `yaml:"keyProvider"`

	// Provider-specific settings. Only the fields relevant to Provider
	// need to be set.
	EnvVar string `yaml:"envVar"`

	FilePath          string `yaml:"filePath"`
	AllowInsecureFile bool   `yaml:"allowInsecureFile"`

	RemoteEndpoint    string        `yaml:"remoteEndpoint"`
	RemoteKeyID       string        `yaml:"remoteKeyId"`
	RemoteBearerToken string        `yaml:"remoteBearerToken"`
	RemoteMaxRetries  int           `yaml:"remoteMaxRetries"`
	RemoteRetryDelay  time.Duration `yaml:"remoteRetryDelay"`
	RemoteTimeout     time.Duration `yaml:"remoteTimeout"`
}

// Config is the engine's full configuration.
type Config struct {
	DataDir           string        `yaml:"dataDir"`
	MaxMemoryMB       float64       `yaml:"maxMemoryMB"`
	EvictionThreshold float64       `yaml:"evictionThreshold"`
	WALSegmentSize    int64         `yaml:"walSegmentSize"`
	FsyncMode         FsyncMode     `yaml:"fsyncMode"`
	FsyncIntervalMs   int           `yaml:"fsyncIntervalMs"`
	SnapshotInterval  time.Duration `yaml:"snapshotIntervalMs"`
	KeepSnapshots     int           `yaml:"keepSnapshots"`
	Encryption        Encryption    `yaml:"encryption"`
}

// Default returns a config with every spec-mandated default filled in,
// except MaxMemoryMB which has no sane default and must be set by the
// caller.
func Default() Config {
	return Config{
		DataDir:           "./data",
		MaxMemoryMB:       0,
		EvictionThreshold: 0.8,
		WALSegmentSize:    10 * 1024 * 1024,
		FsyncMode:         FsyncBatched,
		FsyncIntervalMs:   100,
		SnapshotInterval:  30 * time.Minute,
		KeepSnapshots:     3,
	}
}

// Load reads and parses a YAML config file, filling unset fields with
// Default()'s values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &dberrors.IOError{Op: "read", Path: path, Cause: err}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &dberrors.ConfigError{Field: "<file>", Reason: err.Error()}
	}
	return cfg, cfg.Validate()
}

// Validate returns a *dberrors.ConfigError for the first invalid field
// found, or nil.
func (c Config) Validate() error {
	if c.MaxMemoryMB <= 0 {
		return &dberrors.ConfigError{Field: "maxMemoryMB", Reason: "must be a positive number"}
	}
	if c.EvictionThreshold <= 0 || c.EvictionThreshold > 1 {
		return &dberrors.ConfigError{Field: "evictionThreshold", Reason: "must be in (0, 1]"}
	}
	if c.WALSegmentSize <= 0 {
		return &dberrors.ConfigError{Field: "walSegmentSize", Reason: "must be positive"}
	}
	switch c.FsyncMode {
	case FsyncAlways, FsyncBatched, FsyncNone:
	default:
		return &dberrors.ConfigError{Field: "fsyncMode", Reason: "must be always, batched, or none"}
	}
	if c.Encryption.Enabled {
		switch c.Encryption.Provider {
		case KeyProviderEnv, KeyProviderFile, KeyProviderRemote:
		default:
			return &dberrors.ConfigError{Field: "encryption.keyProvider", Reason: "must be env, file, or remote"}
		}
	}
	return nil
}

// MaxMemoryBytes is MaxMemoryMB converted to bytes.
func (c Config) MaxMemoryBytes() float64 {
	return c.MaxMemoryMB * 1024 * 1024
}
