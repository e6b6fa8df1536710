package crypto

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"

	"github.com/bobboyms/docdb/pkg/dberrors"
)

// FileKeyProvider reads a key (32 raw bytes or 64 hex chars) from a file.
// By default the file must be owner-only (mode 0600 or stricter); set
// AllowInsecure to skip that check.
type FileKeyProvider struct {
	Path          string
	AllowInsecure bool
}

// NewFileKeyProvider constructs a provider reading from path.
func NewFileKeyProvider(path string, allowInsecure bool) *FileKeyProvider {
	return &FileKeyProvider{Path: path, AllowInsecure: allowInsecure}
}

func (p *FileKeyProvider) FetchKey(ctx context.Context) (KeyMaterial, error) {
	info, err := os.Stat(p.Path)
	if err != nil {
		return KeyMaterial{}, &dberrors.KeyUnavailableError{Reason: fmt.Sprintf("key file %q not found", p.Path)}
	}

	if !p.AllowInsecure && runtime.GOOS != "windows" {
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return KeyMaterial{}, &dberrors.InsecureKeyFileError{Path: p.Path, Mode: mode.String()}
		}
	}

	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return KeyMaterial{}, &dberrors.KeyUnavailableError{Reason: fmt.Sprintf("key file %q not readable: %v", p.Path, err)}
	}

	key, err := decodeKeyBytes(raw)
	if err != nil {
		return KeyMaterial{}, &dberrors.InvalidKeyError{Reason: err.Error()}
	}

	return KeyMaterial{KeyID: "file:" + p.Path, Key: key}, nil
}

func (p *FileKeyProvider) Close() error { return nil }

// decodeKeyBytes accepts either 32 raw bytes or 64 hex characters (with
// surrounding whitespace trimmed).
func decodeKeyBytes(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == KeySize {
		return trimmed, nil
	}
	if len(trimmed) == KeySize*2 {
		key, err := hex.DecodeString(string(trimmed))
		if err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	return nil, fmt.Errorf("key must be 32 raw bytes or 64 hex characters, got %d bytes", len(trimmed))
}
