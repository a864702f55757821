package notify

import (
	"fmt"
	"strings"
)

// RenderTokens substitutes {{token}} placeholders from the data bag.
// Unresolved tokens are left verbatim so a template/data mismatch degrades
// visibly instead of erroring.
func RenderTokens(pattern string, data map[string]any) string {
	if pattern == "" || len(data) == 0 {
		return pattern
	}
	var b strings.Builder
	rest := pattern
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end += start
		token := strings.TrimSpace(rest[start+2 : end])
		b.WriteString(rest[:start])
		if value, ok := data[token]; ok {
			b.WriteString(stringify(value))
		} else {
			b.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
