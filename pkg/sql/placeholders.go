package sql

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{(\w*?)\}`)

// ExtractPlaceholders returns the distinct {name} placeholders in a template
// in order of first appearance. Empty braces, as in a JSON "{}" literal, are
// not placeholders.
func ExtractPlaceholders(template string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if m[1] != "" {
			names = append(names, m[1])
		}
	}
	return unique(names)
}

// FormatTemplate substitutes {name} placeholders with pre-rendered values.
// "{{" and "}}" produce literal braces. A placeholder without a value is an
// error.
func FormatTemplate(template string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		ch := template[i]
		switch {
		case ch == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := template[i+1 : i+end]
			if colon := strings.IndexByte(name, ':'); colon >= 0 {
				name = name[:colon]
			}
			value, ok := values[name]
			if !ok {
				return "", fmt.Errorf("no value for placeholder %q", name)
			}
			b.WriteString(value)
			i += end
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}
