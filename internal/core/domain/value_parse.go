package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseValue reads a value in the notation printed by Value.String:
//
//	<http://ex.org/x>      reference
//	"Paris"@en             text in a language ("Paris" for no language)
//	Paris                  text in any language
//	42, 4.2, true          integer, double, boolean
//	2024-01-02T15:04:05Z   date
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("%w: empty value", ErrInvalidInput)
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		return NewReference(s[1 : len(s)-1]), nil
	case strings.HasPrefix(s, `"`):
		return parseText(s)
	case s == "true" || s == "false":
		return Boolean(s == "true"), nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer(i), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Double(f), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewDateTime(t), nil
	}
	return NewText(s, AnyLanguage), nil
}

// parseText reads "value" or "value"@lang.
func parseText(s string) (Value, error) {
	end := strings.LastIndex(s, `"`)
	if end == 0 {
		return nil, fmt.Errorf("%w: unterminated text %s", ErrInvalidInput, s)
	}
	text, err := strconv.Unquote(s[:end+1])
	if err != nil {
		return nil, fmt.Errorf("%w: text %s: %v", ErrInvalidInput, s, err)
	}
	rest := s[end+1:]
	if rest == "" {
		return NewText(text, ""), nil
	}
	lang, ok := strings.CutPrefix(rest, "@")
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %q after text", ErrInvalidInput, rest)
	}
	return NewText(text, lang), nil
}
