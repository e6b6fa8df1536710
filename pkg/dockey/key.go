// Package dockey implements the document key format shared by the hot
// tier, cold tier, transaction manager, and storage adapter: an opaque
// TYPE_ID string, with a soft-delete (tombstone) rename form.
package dockey

import (
	"crypto/rand"
	"strings"
)

// idAlphabet is lowercase Crockford base32 (excludes i, l, o, u to avoid
// visual ambiguity).
const idAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const (
	typeCodeLen = 4
	idLen       = 7
)

// Key is an opaque document identifier of the form TYPE_ID, or its
// soft-deleted rename X:TYPE_ID:X.
type Key string

// TypeCode folds a human-readable type name into the 4-character
// uppercase code used as a key's TYPE segment: strip non-letters,
// uppercase, then pad with 'X' or truncate to exactly 4 characters.
func TypeCode(typeName string) string {
	var b strings.Builder
	for _, r := range typeName {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r - 32)
		} else if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	code := b.String()
	if len(code) >= typeCodeLen {
		return code[:typeCodeLen]
	}
	return code + strings.Repeat("X", typeCodeLen-len(code))
}

// randomID generates a 7-character lowercase Crockford base32 string.
func randomID() string {
	buf := make([]byte, idLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	out := make([]byte, idLen)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out)
}

// New generates a fresh key for the given human-readable type name.
func New(typeName string) Key {
	return Key(TypeCode(typeName) + "_" + randomID())
}

// Tombstone returns the soft-delete rename form of k: X:TYPE_ID:X.
func (k Key) Tombstone() Key {
	if k.IsTombstoned() {
		return k
	}
	return Key("X:" + string(k) + ":X")
}

// IsTombstoned reports whether k is already in its soft-deleted form.
func (k Key) IsTombstoned() bool {
	s := string(k)
	return strings.HasPrefix(s, "X:") && strings.HasSuffix(s, ":X")
}

// Live strips the tombstone wrapper, returning the underlying TYPE_ID key.
func (k Key) Live() Key {
	if !k.IsTombstoned() {
		return k
	}
	s := string(k)
	return Key(s[2 : len(s)-2])
}

// Type returns the TYPE segment of the (possibly tombstoned) key.
func (k Key) Type() string {
	live := string(k.Live())
	if idx := strings.IndexByte(live, '_'); idx >= 0 {
		return live[:idx]
	}
	return ""
}

// ID returns the ID segment of the (possibly tombstoned) key.
func (k Key) ID() string {
	live := string(k.Live())
	if idx := strings.IndexByte(live, '_'); idx >= 0 {
		return live[idx+1:]
	}
	return ""
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}
