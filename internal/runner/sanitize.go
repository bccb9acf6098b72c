package runner

import "strings"

// SanitizeForLog strips ASCII control characters (except tab) from
// strings before they reach structured logs, recursing into slice
// elements and map values. Map keys pass through untouched. Raw
// subprocess output can carry escape sequences and carriage returns
// that would corrupt JSON-lines log output.
func SanitizeForLog(v any) any {
	switch val := v.(type) {
	case string:
		return stripControl(val)
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = stripControl(s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = SanitizeForLog(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = SanitizeForLog(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = stripControl(s)
		}
		return out
	default:
		return v
	}
}

func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
