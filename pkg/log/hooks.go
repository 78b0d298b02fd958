package log

import "strings"

// DefaultRedactedFields are masked on every entry unless a config overrides
// the list. Matching is case-insensitive on the field key.
var DefaultRedactedFields = []string{"password", "plaintext", "secret", "hash", "token"}

const redacted = "[REDACTED]"

// RedactionHook masks the values of sensitive fields. A field is sensitive
// when its key contains one of the configured names.
type RedactionHook struct {
	fields []string
}

// NewRedactionHook creates a new redaction hook.
func NewRedactionHook(fields []string) *RedactionHook {
	lowered := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			lowered = append(lowered, f)
		}
	}
	return &RedactionHook{fields: lowered}
}

// Levels returns the levels this hook should be called for.
func (h *RedactionHook) Levels() []Level {
	return []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel}
}

// Fire masks matching fields in place.
func (h *RedactionHook) Fire(entry *Entry) error {
	for key := range entry.Fields {
		lk := strings.ToLower(key)
		for _, f := range h.fields {
			if strings.Contains(lk, f) {
				entry.Fields[key] = redacted
				break
			}
		}
	}
	return nil
}
