package crypto

import (
	"context"
	"encoding/hex"
	"os"

	"github.com/bobboyms/docdb/pkg/dberrors"
)

// EnvKeyProvider reads a 64-hex-char key from a named environment variable.
type EnvKeyProvider struct {
	VarName string
}

// NewEnvKeyProvider constructs a provider reading from varName.
func NewEnvKeyProvider(varName string) *EnvKeyProvider {
	return &EnvKeyProvider{VarName: varName}
}

func (p *EnvKeyProvider) FetchKey(ctx context.Context) (KeyMaterial, error) {
	raw, ok := os.LookupEnv(p.VarName)
	if !ok || raw == "" {
		return KeyMaterial{}, &dberrors.KeyUnavailableError{Reason: "environment variable " + p.VarName + " is not set"}
	}

	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != KeySize {
		return KeyMaterial{}, &dberrors.InvalidKeyError{Reason: "environment variable " + p.VarName + " must contain 64 hex characters"}
	}

	return KeyMaterial{KeyID: "env-static", Key: key}, nil
}

func (p *EnvKeyProvider) Close() error { return nil }
