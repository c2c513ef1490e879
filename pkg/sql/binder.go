package sql

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ekaya-inc/policy-interface/pkg/jsonutil"
)

// Style selects how a value is rendered into query text.
type Style int

const (
	// StyleProcedureArg renders a stored-procedure argument value. Lists are
	// comma-joined into a single quoted string.
	StyleProcedureArg Style = iota
	// StyleLiteral renders an inline SQL literal. Lists become "(a, b)".
	StyleLiteral
	// StyleJSON renders the JSON encoding of the value.
	StyleJSON
)

// Kind is the coarse type of a caller-supplied argument value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindOther
)

// KindOf classifies an argument value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return KindNumber
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return KindList
	}
	return KindOther
}

// Render converts an argument value to query text in the given style.
func Render(v any, style Style) (string, error) {
	if style == StyleJSON {
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode value: %w", err)
		}
		return string(data), nil
	}

	switch KindOf(v) {
	case KindNull:
		return "NULL", nil
	case KindString:
		return QuoteString(v.(string)), nil
	case KindBool:
		if v.(bool) {
			return "1", nil
		}
		return "0", nil
	case KindNumber:
		return renderNumber(v), nil
	case KindList:
		items := listItems(v)
		if style == StyleProcedureArg {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = jsonutil.FlexibleString(item)
			}
			return QuoteString(strings.Join(parts, ",")), nil
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if KindOf(item) == KindList || KindOf(item) == KindOther {
				return "", fmt.Errorf("unsupported nested value of type %T", item)
			}
			s, err := Render(item, StyleLiteral)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}

// QuoteString renders a SQL string literal, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func renderNumber(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case json.Number:
		return n.String()
	default:
		return fmt.Sprintf("%d", n)
	}
}

func listItems(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(v)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}
