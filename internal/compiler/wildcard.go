package compiler

import "strings"

// regexReserved are escaped in patterns. The set covers both Go RE2 and
// Lucene regular expressions plus the '/' delimiter of Lucene regex terms.
const regexReserved = `.?+*|{}[]()"\#@&<>~/^$-`

// TranslateWildcard converts a wildcard pattern into a regular expression
// body. '*' becomes ".*" and '?' becomes "."; a backslash makes the next
// character literal. Every other character is escaped before it is
// emitted, so a literal '*' or '?' in data never turns into a wildcard.
func TranslateWildcard(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) * 2)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			writeLiteral(&b, r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteByte('.')
		default:
			writeLiteral(&b, r)
		}
	}
	if escaped {
		// A trailing backslash is a literal backslash.
		writeLiteral(&b, '\\')
	}
	return b.String()
}

func writeLiteral(b *strings.Builder, r rune) {
	if strings.ContainsRune(regexReserved, r) {
		b.WriteByte('\\')
	}
	b.WriteRune(r)
}
