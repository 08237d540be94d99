package logging

import (
	"regexp"
	"strings"
)

var keySegments = regexp.MustCompile(`[^a-z0-9]+`)

// redactor masks values whose key names a credential.
type redactor struct {
	sensitive map[string]struct{}
}

func newRedactor() *redactor {
	words := []string{"secret", "password", "token", "auth", "authorization", "credential", "bearer"}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return &redactor{sensitive: m}
}

// redact returns a copy of the flattened key-value pairs with sensitive
// values replaced by "[REDACTED]".
func (r *redactor) redact(pairs []any) []any {
	if len(pairs) == 0 {
		return pairs
	}
	out := make([]any, len(pairs))
	copy(out, pairs)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if r.isSensitive(key) {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}

func (r *redactor) isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range keySegments.Split(lower, -1) {
		if _, ok := r.sensitive[part]; ok {
			return true
		}
	}
	// camelCase keys such as accessToken collapse into a single segment
	for word := range r.sensitive {
		if strings.HasSuffix(lower, word) {
			return true
		}
	}
	return false
}
