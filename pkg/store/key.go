package store

import "github.com/bobboyms/docdb/pkg/dockey"

// Key is the engine's opaque document identifier (TYPE_ID, or its
// tombstoned rename form). Defined in pkg/dockey and aliased here so the
// adapter's public surface matches spec.md §3 while pkg/coldtier (which
// pkg/store depends on) can use the same type without importing back
// into pkg/store.
type Key = dockey.Key

// NewKey generates a fresh key for the given human-readable type name.
func NewKey(typeName string) Key {
	return dockey.New(typeName)
}

// TypeCode folds a human-readable type name into its 4-character
// uppercase key-type code.
func TypeCode(typeName string) string {
	return dockey.TypeCode(typeName)
}

// parseKey wraps a raw string as a Key. The document key format is an
// opaque string by contract (spec.md §3/§6); no further validation is
// performed here beyond what dockey.Key's own accessors already tolerate.
func parseKey(raw string) (Key, error) {
	return Key(raw), nil
}
