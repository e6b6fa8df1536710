package snapshot

// resolveReferences rewrites fields across decoded whose string value
// matches another document's key in decoded into the actual decoded
// object for that key, so that the codec's identity-tracking encoder
// emits a pointer tag for it instead of duplicating the content. Arrays
// of such strings receive the same treatment. Metadata fields are left
// untouched. This is the only moving part of version-2 snapshot content:
// once the substitution is done, codec.Encode's existing cyclic/shared-
// reference machinery does the rest.
func resolveReferences(decoded map[string]any) {
	for _, doc := range decoded {
		m, ok := doc.(map[string]any)
		if !ok {
			continue
		}
		for field, value := range m {
			if metadataFields[field] {
				continue
			}
			switch v := value.(type) {
			case string:
				if target, ok := decoded[v]; ok {
					m[field] = target
				}
			case []any:
				for i, item := range v {
					if s, ok := item.(string); ok {
						if target, ok := decoded[s]; ok {
							v[i] = target
						}
					}
				}
			}
		}
	}
}
