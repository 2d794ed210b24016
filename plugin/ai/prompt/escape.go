package prompt

import "strings"

// escape keeps v on one line: backslashes, line breaks and every rune in
// special are prefixed with a backslash.
func escape(v, special string) string {
	if !strings.ContainsAny(v, "\\\n\r"+special) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 8)
	for _, r := range v {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case strings.ContainsRune(special, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unescape reverses escape.
func unescape(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' || i+1 == len(v) {
			b.WriteByte(c)
			continue
		}
		i++
		switch v[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// splitEscaped splits s around unescaped occurrences of sep, returning at
// most n parts when n > 0. Parts are still escaped.
func splitEscaped(s, sep string, n int) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if n > 0 && len(parts) == n-1 {
			break
		}
		if s[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// cutEscaped is strings.Cut on the first unescaped sep, with both halves
// unescaped.
func cutEscaped(s, sep string) (before, after string, found bool) {
	parts := splitEscaped(s, sep, 2)
	if len(parts) < 2 {
		return unescape(s), "", false
	}
	return unescape(parts[0]), unescape(parts[1]), true
}
