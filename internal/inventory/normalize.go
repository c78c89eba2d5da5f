package inventory

import "time"

// NormalizeTimestamps walks a document and converts every time.Time leaf to
// RFC 3339 text. Mappings, sequences, and nested combinations are handled
// uniformly; already-normalised values pass through unchanged, so the walk
// is idempotent. Containers are rewritten in place.
func NormalizeTimestamps(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(time.RFC3339)
	case Document:
		for k, item := range val {
			val[k] = NormalizeTimestamps(item)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = NormalizeTimestamps(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = NormalizeTimestamps(item)
		}
		return val
	default:
		return v
	}
}
