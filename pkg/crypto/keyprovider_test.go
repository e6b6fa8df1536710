package crypto

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobboyms/docdb/pkg/dberrors"
)

func TestEnvKeyProvider_Success(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("DOCDB_TEST_KEY", hex.EncodeToString(key))

	p := NewEnvKeyProvider("DOCDB_TEST_KEY")
	km, err := p.FetchKey(context.Background())
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if len(km.Key) != KeySize {
		t.Fatalf("got key length %d, want %d", len(km.Key), KeySize)
	}
}

func TestEnvKeyProvider_Missing(t *testing.T) {
	p := NewEnvKeyProvider("DOCDB_TEST_KEY_DOES_NOT_EXIST")
	_, err := p.FetchKey(context.Background())
	if _, ok := err.(*dberrors.KeyUnavailableError); !ok {
		t.Fatalf("expected KeyUnavailableError, got %T: %v", err, err)
	}
}

func TestEnvKeyProvider_WrongLength(t *testing.T) {
	t.Setenv("DOCDB_TEST_KEY", "deadbeef")
	p := NewEnvKeyProvider("DOCDB_TEST_KEY")
	_, err := p.FetchKey(context.Background())
	if _, ok := err.(*dberrors.InvalidKeyError); !ok {
		t.Fatalf("expected InvalidKeyError, got %T: %v", err, err)
	}
}

func TestFileKeyProvider_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(255 - i)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewFileKeyProvider(path, false)
	km, err := p.FetchKey(context.Background())
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if len(km.Key) != KeySize {
		t.Fatalf("got key length %d, want %d", len(km.Key), KeySize)
	}
}

func TestFileKeyProvider_HexEncoded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.hex")
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i * 3)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewFileKeyProvider(path, false)
	km, err := p.FetchKey(context.Background())
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if len(km.Key) != KeySize {
		t.Fatalf("got key length %d, want %d", len(km.Key), KeySize)
	}
}

func TestFileKeyProvider_InsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	key := make([]byte, KeySize)
	if err := os.WriteFile(path, key, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewFileKeyProvider(path, false)
	_, err := p.FetchKey(context.Background())
	if _, ok := err.(*dberrors.InsecureKeyFileError); !ok {
		t.Fatalf("expected InsecureKeyFileError, got %T: %v", err, err)
	}
}

func TestFileKeyProvider_AllowInsecure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	key := make([]byte, KeySize)
	if err := os.WriteFile(path, key, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewFileKeyProvider(path, true)
	if _, err := p.FetchKey(context.Background()); err != nil {
		t.Fatalf("FetchKey with AllowInsecure: %v", err)
	}
}

func TestFileKeyProvider_Missing(t *testing.T) {
	p := NewFileKeyProvider(filepath.Join(t.TempDir(), "missing.bin"), false)
	_, err := p.FetchKey(context.Background())
	if _, ok := err.(*dberrors.KeyUnavailableError); !ok {
		t.Fatalf("expected KeyUnavailableError, got %T: %v", err, err)
	}
}

func TestRemoteKeyProvider_Success(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"keyId":"k1","key":"` + base64.StdEncoding.EncodeToString(key) + `"}`))
	}))
	defer srv.Close()

	p := NewRemoteKeyProvider(srv.URL, "k1")
	p.BearerToken = "test-token"
	km, err := p.FetchKey(context.Background())
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if km.KeyID != "k1" || len(km.Key) != KeySize {
		t.Fatalf("unexpected key material: %+v", km)
	}
}

func TestRemoteKeyProvider_RetriesThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewRemoteKeyProvider(srv.URL, "k1")
	p.MaxRetries = 3
	p.RetryDelay = time.Millisecond

	_, err := p.FetchKey(context.Background())
	svcErr, ok := err.(*dberrors.KeyServiceUnavailableError)
	if !ok {
		t.Fatalf("expected KeyServiceUnavailableError, got %T: %v", err, err)
	}
	if svcErr.Attempts != 3 {
		t.Fatalf("got %d attempts, want 3", svcErr.Attempts)
	}
	if calls != 3 {
		t.Fatalf("got %d HTTP calls, want 3", calls)
	}
}
