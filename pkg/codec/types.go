// Package codec implements the engine's extended serializer (spec §4.1):
// a bidirectional codec layered on top of go.mongodb.org/mongo-driver's BSON
// document model, extending it with tagged kinds (timestamps, errors,
// regexes, sets, ordered maps, intra-document cyclic references) encoded by
// suffixing the owning key with a reserved marker, e.g. "key<!D>" for a
// timestamp.
//
// Known quirk, carried forward deliberately: an empty map has no keys to
// tell it apart from an empty list, so the encoder writes it as an empty
// array and Decode(Encode(map[string]any{})) comes back as []any{} rather
// than map[string]any{}. Callers that depend on empty-map
// round-tripping as a map must not rely on this codec for that case; this
// mirrors the source engine's behavior and is not "fixed" here.
package codec

// Undefined is the sentinel for JavaScript's undefined. As a map field it
// is dropped entirely by Encode; inside a list it is preserved positionally
// via the list's tag vector.
type Undefined struct{}

// ErrorValue round-trips an error's name, message, and stack trace.
type ErrorValue struct {
	Name    string
	Message string
	Stack   string
}

func (e *ErrorValue) Error() string { return e.Name + ": " + e.Message }

// Regex round-trips a regular expression by its source text only (no
// flags are preserved, matching the source engine).
type Regex struct {
	Source string
}

// Set is an ordered collection of unique-by-identity members.
type Set struct {
	Items []any
}

// NewSet builds a Set from the given items, preserving order.
func NewSet(items ...any) *Set {
	return &Set{Items: append([]any(nil), items...)}
}

// Add appends item if not already present (by == comparability; composite
// members are compared by reference identity).
func (s *Set) Add(item any) {
	for _, existing := range s.Items {
		if existing == item {
			return
		}
	}
	s.Items = append(s.Items, item)
}

// OrderedMap is a string-keyed map that preserves insertion order, used for
// the "ordered maps" kind in spec §4.1. BSON documents (bson.D) are
// naturally order-preserving, so OrderedMap's wire form is just a nested
// document.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any)}
}

// Set inserts or updates key, appending it to the key order on first
// insertion.
func (m *OrderedMap) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int { return len(m.keys) }
