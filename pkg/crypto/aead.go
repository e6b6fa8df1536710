// Package crypto implements the engine's at-rest AEAD primitive (spec §4.2):
// a 256-bit-key, 96-bit-nonce, 128-bit-tag authenticated cipher, built on
// golang.org/x/crypto/chacha20poly1305, plus the pluggable key-provider
// hierarchy that feeds it key material.
package crypto

import (
	"crypto/rand"
	"io"

	"github.com/bobboyms/docdb/pkg/dberrors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the required raw key length in bytes (256 bits).
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the random nonce length in bytes (96 bits).
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the authentication tag length in bytes (128 bits).
	TagSize = 16
)

// Algorithm is the name SPEC_FULL.md's encryption.algorithm config field
// must match.
const Algorithm = "chacha20poly1305"

// Encrypt seals plaintext under key, with optional associated data aad that
// must be supplied identically to Decrypt. The wire layout is
// nonce ∥ tag ∥ ciphertext, per spec §4.2; chacha20poly1305 produces
// ciphertext ∥ tag, so the tag is moved to the front of the returned blob.
func Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, &dberrors.InvalidKeyError{Reason: "key must be exactly 32 bytes"}
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, &dberrors.InvalidKeyError{Reason: err.Error()}
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, nonce, plaintext, aad) // ciphertext ∥ tag
	ctLen := len(sealed) - TagSize
	tag := sealed[ctLen:]
	ciphertext := sealed[:ctLen]

	out := make([]byte, 0, NonceSize+TagSize+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. aad must match what was passed
// to Encrypt exactly.
func Decrypt(key, blob, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, &dberrors.InvalidKeyError{Reason: "key must be exactly 32 bytes"}
	}
	if len(blob) < NonceSize+TagSize {
		return nil, &dberrors.AuthenticationError{Reason: "ciphertext shorter than nonce+tag"}
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, &dberrors.InvalidKeyError{Reason: err.Error()}
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize : NonceSize+TagSize]
	ciphertext := blob[NonceSize+TagSize:]

	// chacha20poly1305 expects ciphertext ∥ tag; reassemble from the
	// spec's on-disk nonce ∥ tag ∥ ciphertext order.
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, &dberrors.AuthenticationError{Reason: "tag mismatch or tampered ciphertext"}
	}
	return plaintext, nil
}
