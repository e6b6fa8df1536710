package codec

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// pointerRef is a placeholder installed during pass one and resolved to the
// real target during pass two.
type pointerRef struct {
	path string
}

type decoder struct {
	byRef map[string]any // ref path -> decoded composite, populated as we go
}

// decodeTagged reconstructs the value for wire given its tag.
func (d *decoder) decodeTagged(wire any, tag string, path string) (any, error) {
	switch tag {
	case tagDate:
		ms, err := asInt64(wire)
		if err != nil {
			return nil, fmt.Errorf("codec: bad date at %s: %w", path, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	case tagError:
		doc, ok := wire.(bson.D)
		if !ok {
			return nil, fmt.Errorf("codec: bad error value at %s", path)
		}
		ev := &ErrorValue{}
		for _, e := range doc {
			switch e.Key {
			case "name":
				ev.Name, _ = e.Value.(string)
			case "message":
				ev.Message, _ = e.Value.(string)
			case "stack":
				ev.Stack, _ = e.Value.(string)
			}
		}
		return ev, nil
	case tagRegex:
		src, _ := wire.(string)
		return &Regex{Source: src}, nil
	case tagSet:
		items, err := d.decodeList(wire, path)
		if err != nil {
			return nil, err
		}
		d.byRef[path] = &Set{Items: items}
		return d.byRef[path], nil
	case tagOrderedMap:
		doc, ok := wire.(bson.D)
		if !ok {
			return nil, fmt.Errorf("codec: bad ordered map at %s", path)
		}
		om := NewOrderedMap()
		d.byRef[path] = om
		if err := d.decodeOrderedMapInto(om, doc, path); err != nil {
			return nil, err
		}
		return om, nil
	case tagUndefined:
		return Undefined{}, nil
	case tagPointer:
		refPath, _ := wire.(string)
		return pointerRef{path: refPath}, nil
	default:
		return d.decodeValue(wire, path)
	}
}

func (d *decoder) decodeValue(wire any, path string) (any, error) {
	switch t := wire.(type) {
	case nil:
		return nil, nil
	case bson.D:
		// Could be a plain map, or a synthetic {"$item<!T>": ...} wrapper
		// produced for an untagged context (root/list element/set member).
		if len(t) == 1 {
			key, tag := splitTag(t[0].Key)
			if key == itemKey && tag != "" {
				return d.decodeTagged(t[0].Value, tag, path)
			}
			if key == itemKey && tag == "" {
				return d.decodeValue(t[0].Value, path)
			}
		}
		if _, isListShape := isTaggedListShape(t); isListShape {
			items, err := d.decodeTaggedList(t, path)
			if err != nil {
				return nil, err
			}
			return items, nil
		}
		m := make(map[string]any)
		d.byRef[path] = m
		for _, e := range t {
			key, tag := splitTag(e.Key)
			fieldPath := path + "." + key
			val, err := d.decodeTagged(e.Value, tag, fieldPath)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil
	case bson.A:
		return d.decodeList(t, path)
	default:
		return normalizeScalar(wire), nil
	}
}

func (d *decoder) decodeOrderedMapInto(om *OrderedMap, doc bson.D, path string) error {
	for _, e := range doc {
		key, tag := splitTag(e.Key)
		fieldPath := path + "." + key
		val, err := d.decodeTagged(e.Value, tag, fieldPath)
		if err != nil {
			return err
		}
		om.Set(key, val)
	}
	return nil
}

// isTaggedListShape reports whether doc is the {"items": [...], "tags": [...]}
// encoding produced by encodeList for a list containing tagged elements.
func isTaggedListShape(doc bson.D) (bson.D, bool) {
	if len(doc) != 2 {
		return nil, false
	}
	if doc[0].Key == "items" && doc[1].Key == "tags" {
		return doc, true
	}
	return nil, false
}

func (d *decoder) decodeTaggedList(doc bson.D, path string) ([]any, error) {
	itemsRaw, _ := doc[0].Value.(bson.A)
	tagsRaw, _ := doc[1].Value.(bson.A)

	out := make([]any, len(itemsRaw))
	d.byRef[path] = out
	for i, raw := range itemsRaw {
		tag := ""
		if i < len(tagsRaw) {
			tag, _ = tagsRaw[i].(string)
		}
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		val, err := d.decodeTagged(raw, tag, itemPath)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func (d *decoder) decodeList(wire any, path string) ([]any, error) {
	arr, ok := wire.(bson.A)
	if !ok {
		if arr2, ok2 := wire.([]any); ok2 {
			arr = arr2
		} else {
			return nil, fmt.Errorf("codec: expected array at %s", path)
		}
	}
	out := make([]any, len(arr))
	d.byRef[path] = out
	for i, raw := range arr {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		val, err := d.decodeValue(raw, itemPath)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// resolvePointers walks the fully-decoded tree replacing pointerRef
// placeholders with the referenced composite (pass two).
func (d *decoder) resolvePointers(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, fv := range t {
			if pr, ok := fv.(pointerRef); ok {
				t[k] = d.byRef[pr.path]
				continue
			}
			d.resolvePointers(fv)
		}
	case *OrderedMap:
		for _, k := range t.Keys() {
			fv, _ := t.Get(k)
			if pr, ok := fv.(pointerRef); ok {
				t.Set(k, d.byRef[pr.path])
				continue
			}
			d.resolvePointers(fv)
		}
	case []any:
		for i, iv := range t {
			if pr, ok := iv.(pointerRef); ok {
				t[i] = d.byRef[pr.path]
				continue
			}
			d.resolvePointers(iv)
		}
	case *Set:
		for i, iv := range t.Items {
			if pr, ok := iv.(pointerRef); ok {
				t.Items[i] = d.byRef[pr.path]
				continue
			}
			d.resolvePointers(iv)
		}
	}
}

// unwrapPlaceholder converts a bare top-level pointerRef (degenerate: the
// whole document is just a self-reference) into nil, since there is nothing
// meaningful to alias.
func unwrapPlaceholder(v any) any {
	if _, ok := v.(pointerRef); ok {
		return nil
	}
	return v
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// normalizeScalar maps BSON's decoded scalar types onto the plain Go kinds
// Encode accepts, so Decode(Encode(v)) compares equal for scalars.
func normalizeScalar(v any) any {
	switch t := v.(type) {
	case int32:
		return int64(t)
	default:
		return t
	}
}
