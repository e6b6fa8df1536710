package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	aad := []byte("doc:collection/abc123")

	blob, err := Encrypt(key, plaintext, aad)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(key, blob, aad)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncrypt_WrongKeySize(t *testing.T) {
	_, err := Encrypt([]byte("tooshort"), []byte("x"), nil)
	if err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key := randomKey(t)
	blob, err := Encrypt(key, []byte("secret payload"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := make([]byte, len(blob))
	copy(tampered, blob)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := Decrypt(key, tampered, nil); err == nil {
		t.Fatal("expected authentication failure on tampered ciphertext")
	}
}

func TestDecrypt_WrongAAD(t *testing.T) {
	key := randomKey(t)
	blob, err := Encrypt(key, []byte("payload"), []byte("context-a"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(key, blob, []byte("context-b")); err == nil {
		t.Fatal("expected authentication failure on mismatched aad")
	}
}

func TestDecrypt_TruncatedBlob(t *testing.T) {
	key := randomKey(t)
	if _, err := Decrypt(key, []byte("short"), nil); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}

func TestEncrypt_NoncesAreUnique(t *testing.T) {
	key := randomKey(t)
	a, err := Encrypt(key, []byte("same plaintext"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := Encrypt(key, []byte("same plaintext"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("expected distinct ciphertexts for repeated encryption of the same plaintext")
	}
}
