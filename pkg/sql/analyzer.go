package sql

import "strings"

var (
	// columnContextKeywords are the keywords after which names are columns.
	columnContextKeywords = map[string]bool{
		"SELECT": true, "WHERE": true, "ORDER BY": true, "ON": true,
	}

	// ignoredKeywords do not change the column context.
	ignoredKeywords = map[string]bool{
		"AS": true, "AND": true, "OR": true, "IN": true, "IS": true,
		"NOT": true, "NOT NULL": true, "LIKE": true, "CASE": true, "WHEN": true,
	}

	// ignoredFunctions are function names that are never reported as columns.
	ignoredFunctions = map[string]bool{
		"COUNT": true, "MIN": true, "MAX": true, "FROM_UNIXTIME": true,
		"DATE_FORMAT": true, "CAST": true, "CONVERT": true,
	}

	// tableContextKeywords start or end a clause that may name tables.
	tableContextKeywords = map[string]bool{
		"FROM": true, "WHERE": true, "JOIN": true, "INNER JOIN": true,
		"FULL JOIN": true, "FULL OUTER JOIN": true, "LEFT OUTER JOIN": true,
		"RIGHT OUTER JOIN": true, "LEFT JOIN": true, "RIGHT JOIN": true,
		"ON": true, "INTO": true, "VALUES": true, "UPDATE": true,
		"SET": true, "TABLE": true,
	}

	// tableNameKeywords are the clauses in which a name is a table.
	tableNameKeywords = map[string]bool{
		"FROM": true, "JOIN": true, "INNER JOIN": true, "FULL JOIN": true,
		"FULL OUTER JOIN": true, "LEFT OUTER JOIN": true, "RIGHT OUTER JOIN": true,
		"LEFT JOIN": true, "RIGHT JOIN": true, "INTO": true, "UPDATE": true,
		"TABLE": true,
	}

	tableResetKeywords = map[string]bool{
		"FORCE": true, "ORDER": true, "ORDER BY": true, "GROUP BY": true,
	}
)

// Columns returns the distinct column references in a query in order of
// first appearance. Qualified references keep their qualifier ("t.b") and a
// bare SELECT wildcard is reported as "*". Placeholders are not columns.
func Columns(query string) []string {
	tokens := Tokenize(query)

	var columns []string
	lastKeyword := ""
	var last *Token

	for i := range tokens {
		tok := tokens[i]
		upper := tok.Upper()

		switch tok.Kind {
		case TokenKeyword:
			if !ignoredKeywords[upper] {
				lastKeyword = upper
			}

		case TokenName:
			switch {
			case columnContextKeywords[lastKeyword] && (last == nil || last.Upper() != "AS"):
				if ignoredFunctions[upper] {
					break
				}
				if last != nil && last.Value == "." && len(columns) > 0 {
					columns[len(columns)-1] += "." + tok.Value
				} else {
					columns = append(columns, tok.Value)
				}
			case lastKeyword == "INTO" && last != nil && last.Kind == TokenPunctuation:
				columns = append(columns, strings.Trim(tok.Value, "`"))
			}

		case TokenWildcard:
			if lastKeyword == "SELECT" && last != nil && last.Value != "(" {
				if last.Value == "." && len(columns) > 0 {
					columns[len(columns)-1] += ".*"
				} else {
					columns = append(columns, "*")
				}
			}
		}
		last = &tokens[i]
	}
	return unique(columns)
}

// Tables returns the distinct table references in a query in order of first
// appearance, with backticks removed and schema qualifiers preserved.
func Tables(query string) []string {
	tokens := Tokenize(strings.ReplaceAll(query, `"`, ""))

	var tables []string
	lastKeyword := ""

	for i, tok := range tokens {
		upper := tok.Upper()
		isKeyword := tok.Kind == TokenKeyword

		switch {
		case isKeyword && tableContextKeywords[upper]:
			lastKeyword = upper
		case tok.Value == "(":
			lastKeyword = ""
		case isKeyword && tableResetKeywords[upper]:
			lastKeyword = ""
		case isKeyword && upper == "SELECT" && (lastKeyword == "INTO" || lastKeyword == "TABLE"):
			lastKeyword = ""
		case tok.Kind == TokenName || isKeyword:
			tables = updateTables(tables, tokens, i, lastKeyword)
		}
	}
	return unique(tables)
}

func updateTables(tables []string, tokens []Token, i int, lastKeyword string) []string {
	tok := tokens[i]
	upper := tok.Upper()

	prev, next := "", ""
	if i > 0 {
		prev = tokens[i-1].Upper()
	}
	if i+1 < len(tokens) {
		next = tokens[i+1].Upper()
	}

	if !tableNameKeywords[lastKeyword] || prev == "AS" || upper == "AS" || upper == "SELECT" {
		return tables
	}

	if prev == "." && next != "." && i >= 2 {
		tables = replaceLast(tables, tokens[i-2].Value+"."+tok.Value)
	}

	switch {
	case i >= 4 &&
		tokens[i-4].Kind == TokenName &&
		tokens[i-3].Value == "." &&
		tokens[i-2].Kind == TokenName &&
		tokens[i-1].Value == "." &&
		tok.Kind == TokenName:
		tables = replaceLast(tables, tokens[i-4].Value+"."+tokens[i-2].Value+"."+tok.Value)
	case prev != "," && prev != lastKeyword:
		// alias or trailing keyword
	default:
		tables = append(tables, strings.ReplaceAll(tok.Value, "`", ""))
	}
	return tables
}

func replaceLast(list []string, value string) []string {
	if len(list) == 0 {
		return append(list, value)
	}
	list[len(list)-1] = value
	return list
}

func unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
