package crypto

import (
	"context"
	"time"
)

// KeyMaterial is the key handed back by a provider, plus the metadata
// needed to track rotation.
type KeyMaterial struct {
	KeyID     string
	Key       []byte // always KeySize bytes
	ExpiresAt *time.Time
}

// KeyProvider is the capability set every key source implements (spec §4.2).
type KeyProvider interface {
	FetchKey(ctx context.Context) (KeyMaterial, error)
	Close() error
}
