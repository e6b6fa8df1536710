package crypto

import (
	"context"
	"testing"

	"github.com/bobboyms/docdb/pkg/dberrors"
)

type fakeProvider struct {
	key     []byte
	fetches int
	closed  bool
}

func (f *fakeProvider) FetchKey(ctx context.Context) (KeyMaterial, error) {
	f.fetches++
	return KeyMaterial{KeyID: "fake", Key: f.key}, nil
}

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func TestKeyManager_GetKeyBeforeInitialize(t *testing.T) {
	m := NewKeyManager(&fakeProvider{key: make([]byte, KeySize)})
	_, err := m.GetKey()
	if _, ok := err.(*dberrors.KeyUnavailableError); !ok {
		t.Fatalf("expected KeyUnavailableError, got %T: %v", err, err)
	}
}

func TestKeyManager_InitializeIsIdempotent(t *testing.T) {
	fp := &fakeProvider{key: make([]byte, KeySize)}
	m := NewKeyManager(fp)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if fp.fetches != 1 {
		t.Fatalf("got %d fetches, want 1", fp.fetches)
	}

	km, err := m.GetKey()
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if km.KeyID != "fake" {
		t.Fatalf("got KeyID %q, want fake", km.KeyID)
	}
}

func TestKeyManager_CloseZeroesKeyAndClosesProvider(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = 0xAB
	}
	fp := &fakeProvider{key: key}
	m := NewKeyManager(fp)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	km, _ := m.GetKey()
	keyRef := km.Key

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fp.closed {
		t.Fatal("expected underlying provider to be closed")
	}
	for i, b := range keyRef {
		if b != 0 {
			t.Fatalf("key byte %d not zeroed: %v", i, b)
		}
	}

	if _, err := m.GetKey(); err == nil {
		t.Fatal("expected GetKey to fail after Close")
	}
}
