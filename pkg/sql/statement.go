package sql

import (
	"errors"
	"strings"
)

// ErrMultipleStatements indicates the query contains more than one statement.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed")

// SingleStatement trims a trailing semicolon and rejects queries that still
// contain a statement separator outside string literals and comments.
func SingleStatement(query string) (string, error) {
	normalized := strings.TrimSpace(query)
	for strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
	}
	for _, tok := range Tokenize(normalized) {
		if tok.Kind == TokenPunctuation && tok.Value == ";" {
			return "", ErrMultipleStatements
		}
	}
	return normalized, nil
}
