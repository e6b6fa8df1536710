package codec

import (
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Tag codes, suffixed onto a map key as "<!X>".
const (
	tagDate       = "D"
	tagError      = "E"
	tagRegex      = "X"
	tagSet        = "S"
	tagOrderedMap = "O"
	tagPointer    = "P"
	tagUndefined  = "U"
	tagTaggedList = "L"
)

const rootKey = "$root"
const itemKey = "$item"

// Encode serializes v into the extended wire format.
func Encode(v any) ([]byte, error) {
	e := &encoder{refs: make(map[uintptr]string), nextRef: 0}
	e.visit(v, rootKey)

	tag := e.tagOf(v)
	wire, err := e.encodeTagged(v, tag, rootKey)
	if err != nil {
		return nil, err
	}

	envelope := bson.D{{Key: withTag(rootKey, tag), Value: wire}}
	return bson.Marshal(envelope)
}

// Decode reconstructs a value previously produced by Encode.
func Decode(data []byte) (any, error) {
	var envelope bson.D
	if err := bson.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("codec: malformed input: %w", err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("codec: malformed envelope: expected exactly one root field, got %d", len(envelope))
	}

	d := &decoder{byRef: make(map[string]any)}
	key, tag := splitTag(envelope[0].Key)
	if key != rootKey {
		return nil, fmt.Errorf("codec: malformed envelope: unexpected root key %q", key)
	}

	val, err := d.decodeTagged(envelope[0].Value, tag, rootKey)
	if err != nil {
		return nil, err
	}
	d.resolvePointers(val)
	return unwrapPlaceholder(val), nil
}

// --- encoding ---

type encoder struct {
	refs    map[uintptr]string // composite identity -> assigned ref path
	nextRef int
}

// visit assigns a stable ref path to every composite value reachable from v,
// in pre-order, so that a later occurrence of the same composite can be
// encoded as a pointer back to it instead of being re-encoded (and instead
// of infinite-looping on a true cycle).
func (e *encoder) visit(v any, path string) {
	ptr, ok := identityOf(v)
	if !ok {
		return
	}
	if _, seen := e.refs[ptr]; seen {
		return
	}
	e.refs[ptr] = path
	e.nextRef++

	switch t := v.(type) {
	case map[string]any:
		for k, fv := range t {
			e.visit(fv, path+"."+k)
		}
	case *OrderedMap:
		for _, k := range t.Keys() {
			fv, _ := t.Get(k)
			e.visit(fv, path+"."+k)
		}
	case []any:
		for i, iv := range t {
			e.visit(iv, fmt.Sprintf("%s[%d]", path, i))
		}
	case *Set:
		for i, iv := range t.Items {
			e.visit(iv, fmt.Sprintf("%s[%d]", path, i))
		}
	}
}

// identityOf returns a stable pointer for reference-typed composites.
func identityOf(v any) (uintptr, bool) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return 0, false
		}
		return reflect.ValueOf(t).Pointer(), true
	case []any:
		if t == nil {
			return 0, false
		}
		return reflect.ValueOf(t).Pointer(), true
	case *OrderedMap:
		return reflect.ValueOf(t).Pointer(), true
	case *Set:
		return reflect.ValueOf(t).Pointer(), true
	default:
		return 0, false
	}
}

// tagOf returns the reserved-suffix tag code for v, or "" if v needs none.
func (e *encoder) tagOf(v any) string {
	switch v.(type) {
	case time.Time:
		return tagDate
	case *ErrorValue:
		return tagError
	case *Regex:
		return tagRegex
	case *Set:
		return tagSet
	case *OrderedMap:
		return tagOrderedMap
	case Undefined:
		return tagUndefined
	default:
		return ""
	}
}

// alreadyVisitedAsRef reports whether v is a composite whose ref path does
// not equal declaredPath, meaning this occurrence is a second, cyclic
// reference to a node encoded (or being encoded) elsewhere.
func (e *encoder) alreadyVisitedAsRef(v any, declaredPath string) (string, bool) {
	ptr, ok := identityOf(v)
	if !ok {
		return "", false
	}
	refPath, ok := e.refs[ptr]
	if !ok {
		return "", false
	}
	return refPath, refPath != declaredPath
}

// encodeTagged produces the wire value for v given it is tagged with tag
// (tag may be "" for untagged kinds).
func (e *encoder) encodeTagged(v any, tag string, path string) (any, error) {
	if refPath, isRef := e.alreadyVisitedAsRef(v, path); isRef {
		return refPath, nil
	}

	switch tag {
	case tagDate:
		t := v.(time.Time)
		return t.UnixMilli(), nil
	case tagError:
		ev := v.(*ErrorValue)
		return bson.D{{Key: "name", Value: ev.Name}, {Key: "message", Value: ev.Message}, {Key: "stack", Value: ev.Stack}}, nil
	case tagRegex:
		return v.(*Regex).Source, nil
	case tagSet:
		s := v.(*Set)
		return e.encodeList(s.Items, path)
	case tagOrderedMap:
		return e.encodeOrderedMap(v.(*OrderedMap), path)
	case tagUndefined:
		return nil, nil
	default:
		return e.encodeValue(v, path)
	}
}

// encodeValue encodes an untagged value: scalars pass through, maps and
// lists recurse.
func (e *encoder) encodeValue(v any, path string) (any, error) {
	if refPath, isRef := e.alreadyVisitedAsRef(v, path); isRef {
		return bson.D{{Key: withTag(itemKey, tagPointer), Value: refPath}}, nil
	}

	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(t) == 0 {
			// Known quirk, carried forward deliberately (see package doc):
			// an empty map has no keys to distinguish it from an empty
			// list, so it is written (and will read back) as one.
			return bson.A{}, nil
		}
		return e.encodeMap(t, path)
	case *OrderedMap:
		wire, err := e.encodeOrderedMap(t, path)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: withTag(itemKey, tagOrderedMap), Value: wire}}, nil
	case []any:
		return e.encodeList(t, path)
	case *Set:
		items, err := e.encodeList(t.Items, path)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: withTag(itemKey, tagSet), Value: items}}, nil
	case time.Time:
		return bson.D{{Key: withTag(itemKey, tagDate), Value: t.UnixMilli()}}, nil
	case *ErrorValue:
		wire, _ := e.encodeTagged(t, tagError, path)
		return bson.D{{Key: withTag(itemKey, tagError), Value: wire}}, nil
	case *Regex:
		return bson.D{{Key: withTag(itemKey, tagRegex), Value: t.Source}}, nil
	case Undefined:
		return bson.D{{Key: withTag(itemKey, tagUndefined), Value: nil}}, nil
	default:
		return v, nil
	}
}

func (e *encoder) encodeMap(m map[string]any, path string) (bson.D, error) {
	out := bson.D{}
	for k, v := range m {
		fieldPath := path + "." + k
		tag := e.tagOf(v)
		if tag == tagUndefined {
			// An undefined map field is dropped, not written.
			continue
		}
		if refPath, isRef := e.alreadyVisitedAsRef(v, fieldPath); isRef {
			out = append(out, bson.E{Key: withTag(k, tagPointer), Value: refPath})
			continue
		}
		wire, err := e.encodeTagged(v, tag, fieldPath)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: withTag(k, tag), Value: wire})
	}
	return out, nil
}

func (e *encoder) encodeOrderedMap(m *OrderedMap, path string) (bson.D, error) {
	out := bson.D{}
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		fieldPath := path + "." + k
		tag := e.tagOf(v)
		if refPath, isRef := e.alreadyVisitedAsRef(v, fieldPath); isRef {
			out = append(out, bson.E{Key: withTag(k, tagPointer), Value: refPath})
			continue
		}
		wire, err := e.encodeTagged(v, tag, fieldPath)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: withTag(k, tag), Value: wire})
	}
	return out, nil
}

// encodeList encodes a list. If every element is untagged and not a cyclic
// reference, it is written as a plain array; otherwise it is written as a
// tagged object carrying a parallel tag vector, per spec §4.1.
func (e *encoder) encodeList(items []any, path string) (any, error) {
	tags := make([]string, len(items))
	wires := make(bson.A, len(items))
	needsVector := false

	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		if refPath, isRef := e.alreadyVisitedAsRef(item, itemPath); isRef {
			tags[i] = tagPointer
			wires[i] = refPath
			needsVector = true
			continue
		}
		tag := e.tagOf(item)
		if tag != "" {
			needsVector = true
		}
		wire, err := e.encodeTagged(item, tag, itemPath)
		if err != nil {
			return nil, err
		}
		tags[i] = tag
		wires[i] = wire
	}

	if !needsVector {
		// Still need to recurse through untagged composite elements.
		plain := make(bson.A, len(items))
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			wire, err := e.encodeValue(item, itemPath)
			if err != nil {
				return nil, err
			}
			plain[i] = wire
		}
		return plain, nil
	}

	tagsA := make(bson.A, len(tags))
	for i, t := range tags {
		tagsA[i] = t
	}
	return bson.D{{Key: "items", Value: wires}, {Key: "tags", Value: tagsA}}, nil
}

// --- helpers shared by encode/decode ---

func withTag(key, tag string) string {
	if tag == "" {
		return key
	}
	return key + "<!" + tag + ">"
}

func splitTag(rawKey string) (key, tag string) {
	n := len(rawKey)
	if n < 5 || rawKey[n-1] != '>' {
		return rawKey, ""
	}
	i := n - 2
	for i > 0 && rawKey[i] != '<' {
		i--
	}
	if i <= 0 || rawKey[i] != '<' || rawKey[i+1] != '!' {
		return rawKey, ""
	}
	return rawKey[:i], rawKey[i+2 : n-1]
}
