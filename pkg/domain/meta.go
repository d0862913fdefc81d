package domain

// Meta carries the open, semi-structured payloads exchanged with the
// collaborators (page metadata, raw LLM output, event details). Values are
// restricted to what JSON can represent: strings, numbers, bools, nested
// maps, and lists. Typed accessors keep call sites honest without forcing a
// schema on forward-compatible fields.
type Meta map[string]any

// GetString returns the string value for key, or "" when absent or not a string.
func (m Meta) GetString(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetInt returns the integer value for key. JSON numbers decode as float64,
// so both forms are accepted.
func (m Meta) GetInt(key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GetBool returns the bool value for key, or false when absent.
func (m Meta) GetBool(key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}

// GetStrings returns the value for key as a string slice. Both []string and
// []any-of-strings (the JSON decode shape) are accepted.
func (m Meta) GetStrings(key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy, safe against caller mutation of the top level.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
