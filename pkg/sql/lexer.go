// Package sql provides lexical analysis of SQL policy queries, placeholder
// handling and value binding for the SQL Server and document-store backends.
package sql

import (
	"regexp"
	"strings"
	"unicode"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenKeyword TokenKind = iota
	TokenName
	TokenWildcard
	TokenPunctuation
	TokenLiteral
	TokenOperator
	TokenPlaceholder
)

// Token is a single non-whitespace lexical unit.
type Token struct {
	Kind  TokenKind
	Value string
}

// Upper returns the token value in upper case.
func (t Token) Upper() string {
	return strings.ToUpper(t.Value)
}

// keywords are the single-word SQL keywords recognised by the lexer. They
// stay keywords before "(" (IN (...), EXISTS (...), FROM (SELECT ...)); only
// a word after "." is always a name.
var keywords = map[string]bool{
	"ALL": true, "ALTER": true, "AND": true, "AS": true, "ASC": true,
	"BETWEEN": true, "BY": true, "CASE": true, "CREATE": true, "CROSS": true,
	"DELETE": true, "DESC": true, "DISTINCT": true, "DROP": true, "ELSE": true,
	"END": true, "EXEC": true, "EXECUTE": true, "EXISTS": true, "FALSE": true,
	"FORCE": true, "FROM": true, "FULL": true, "GROUP": true, "HAVING": true,
	"IN": true, "INDEX": true, "INNER": true, "INSERT": true, "INTO": true,
	"IS": true, "JOIN": true, "LEFT": true, "LIKE": true, "LIMIT": true,
	"NOT": true, "NULL": true, "OFFSET": true, "ON": true, "OR": true,
	"ORDER": true, "OUTER": true, "RIGHT": true, "SELECT": true, "SET": true,
	"TABLE": true, "THEN": true, "TOP": true, "TRUE": true, "TRUNCATE": true,
	"UNION": true, "UPDATE": true, "USE": true, "USING": true, "VALUES": true,
	"WHEN": true, "WHERE": true, "WITH": true,
}

// functionKeywords double as T-SQL function names when a call follows.
var functionKeywords = map[string]bool{"LEFT": true, "RIGHT": true}

// multiWordKeywords match at a word boundary and become one keyword token.
var multiWordKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:ORDER\s+BY|GROUP\s+BY|NOT\s+NULL|UNION\s+ALL)\b`),
	regexp.MustCompile(`(?i)^(?:(?:LEFT|RIGHT|FULL)\s+)?(?:(?:INNER|OUTER)\s+)?JOIN\b`),
	regexp.MustCompile(`(?i)^(?:CROSS|NATURAL)\s+JOIN\b`),
}

var (
	// FROM `table` `alias` -> FROM `table`
	backtickAliasPattern = regexp.MustCompile("(?i)(\\s(?:FROM|JOIN)\\s`[^`]+`)\\s`[^`]+`")
	// `db`.`table` -> db.table
	backtickQualifiedPattern = regexp.MustCompile("`([^`]+)`\\.`([^`]+)`")
	whitespacePattern        = regexp.MustCompile(`\s+`)
)

// preprocess removes newlines and collapses backtick-quoted aliases and
// qualified names before lexing.
func preprocess(query string) string {
	query = strings.ReplaceAll(query, "\n", " ")
	query = backtickAliasPattern.ReplaceAllString(query, "${1}")
	query = backtickQualifiedPattern.ReplaceAllString(query, "${1}.${2}")
	return query
}

// Tokenize splits a query into tokens with whitespace and comments removed.
// It never fails: characters it does not understand become operator tokens.
func Tokenize(query string) []Token {
	src := []rune(preprocess(query))
	var tokens []Token

	emit := func(kind TokenKind, value string) {
		tokens = append(tokens, Token{Kind: kind, Value: value})
	}
	prevIsDot := func() bool {
		return len(tokens) > 0 && tokens[len(tokens)-1].Value == "."
	}

	i := 0
	for i < len(src) {
		ch := src[i]

		switch {
		case unicode.IsSpace(ch):
			i++

		case ch == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\r' && src[i] != '\n' {
				i++
			}

		case ch == '/' && i+1 < len(src) && src[i+1] == '*':
			end := indexFrom(src, i+2, "*/")
			if end < 0 {
				i = len(src)
			} else {
				i = end + 2
			}

		case ch == '\'' || ch == '"':
			j := scanQuoted(src, i, ch)
			emit(TokenLiteral, string(src[i:j]))
			i = j

		case ch == '`':
			j := scanQuoted(src, i, '`')
			emit(TokenName, string(src[i:j]))
			i = j

		case ch == '[':
			j := i + 1
			for j < len(src) && src[j] != ']' {
				j++
			}
			emit(TokenName, string(src[i+1:min(j, len(src))]))
			i = min(j+1, len(src))

		case ch == '{':
			j := i + 1
			for j < len(src) && isWordRune(src[j]) {
				j++
			}
			if j < len(src) && src[j] == '}' && j > i+1 {
				emit(TokenPlaceholder, string(src[i:j+1]))
				i = j + 1
			} else {
				emit(TokenOperator, "{")
				i++
			}

		case ch == '*':
			emit(TokenWildcard, "*")
			i++

		case strings.ContainsRune(";:(),.", ch):
			emit(TokenPunctuation, string(ch))
			i++

		case unicode.IsDigit(ch) && !prevIsDot():
			j := i
			for j < len(src) && (unicode.IsDigit(src[j]) || src[j] == '.') {
				j++
			}
			if j < len(src) && isWordRune(src[j]) {
				// identifiers such as 1st_table
				for j < len(src) && isWordRune(src[j]) {
					j++
				}
				emit(TokenName, string(src[i:j]))
			} else {
				emit(TokenLiteral, string(src[i:j]))
			}
			i = j

		case isWordRune(ch) || ch == '@' || ch == '#':
			rest := string(src[i:])
			if kw := matchMultiWordKeyword(rest); kw != "" {
				emit(TokenKeyword, whitespacePattern.ReplaceAllString(strings.ToUpper(kw), " "))
				i += len([]rune(kw))
				continue
			}
			j := i + 1
			for j < len(src) && (isWordRune(src[j]) || src[j] == '$' || src[j] == '#') {
				j++
			}
			word := string(src[i:j])
			emit(classifyWord(word, prevIsDot(), nextNonSpace(src, j)), word)
			i = j

		default:
			j := i + 1
			if strings.ContainsRune("<>=!", ch) {
				for j < len(src) && strings.ContainsRune("<>=!", src[j]) {
					j++
				}
			}
			emit(TokenOperator, string(src[i:j]))
			i = j
		}
	}
	return tokens
}

func classifyWord(word string, afterDot bool, next rune) TokenKind {
	if afterDot {
		return TokenName
	}
	upper := strings.ToUpper(word)
	if functionKeywords[upper] && next == '(' {
		return TokenName
	}
	if keywords[upper] {
		return TokenKeyword
	}
	return TokenName
}

func matchMultiWordKeyword(s string) string {
	for _, re := range multiWordKeywords {
		if m := re.FindString(s); m != "" {
			return m
		}
	}
	return ""
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func nextNonSpace(src []rune, from int) rune {
	for i := from; i < len(src); i++ {
		if !unicode.IsSpace(src[i]) {
			return src[i]
		}
	}
	return 0
}

// scanQuoted returns the index just past the closing quote, treating a doubled
// quote as an escaped one. Unterminated literals run to the end of input.
func scanQuoted(src []rune, start int, quote rune) int {
	j := start + 1
	for j < len(src) {
		if src[j] == quote {
			if j+1 < len(src) && src[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(src)
}

func indexFrom(src []rune, from int, needle string) int {
	idx := strings.Index(string(src[from:]), needle)
	if idx < 0 {
		return -1
	}
	return from + len([]rune(string(src[from:])[:idx]))
}
