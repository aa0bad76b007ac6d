package surql

import (
	"slices"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// introducers are the keywords whose next identifier names a table.
var introducers = map[string]bool{
	"FROM":   true,
	"INTO":   true,
	"UPDATE": true,
	"CREATE": true,
	"DELETE": true,
	"UPSERT": true,
	"RELATE": true,
	"TABLE":  true,
}

// notTables are the grammar words that can sit where a target is expected,
// as in "DELETE FROM user" or "UPDATE ONLY user:1". Every other identifier
// in target position is collected, even one spelled like a keyword.
var notTables = map[string]bool{
	"FROM": true,
	"ONLY": true,
}

// TableFromTarget returns the table part of a target such as "user" or
// "user:tobie": everything before the first colon, with identifier quoting
// removed.
func TableFromTarget(target string) string {
	table, _, _ := strings.Cut(target, ":")
	return unquote(strings.TrimSpace(table))
}

func unquote(ident string) string {
	switch {
	case len(ident) >= 2 && strings.HasPrefix(ident, "`") && strings.HasSuffix(ident, "`"):
		return ident[1 : len(ident)-1]
	case strings.HasPrefix(ident, "⟨") && strings.HasSuffix(ident, "⟩") && len(ident) >= len("⟨⟩"):
		return ident[len("⟨") : len(ident)-len("⟩")]
	}
	return ident
}

// ExtractTables returns the sorted set of tables referenced after FROM,
// INTO, UPDATE, CREATE, DELETE, UPSERT, RELATE or TABLE anywhere in query,
// plus the edge and node tables of graph traversals such as ->likes->post.
// An optional ONLY after the keyword is skipped, and comma separated
// targets such as "FROM user, post:1" are all collected. Parameters,
// function calls and subqueries in table position are not tables.
func ExtractTables(query string) []string {
	toks := tokens(query)

	var tables []string
	for i := 0; i < len(toks); i++ {
		next, ok := targetStart(toks, i)
		if !ok {
			continue
		}
		for {
			table, end, ok := tableAt(toks, next)
			if !ok {
				break
			}
			tables = append(tables, table)
			i = end - 1
			if end+1 >= len(toks) || toks[end].Value != "," {
				break
			}
			next = end + 1
		}
	}

	slices.Sort(tables)
	return slices.Compact(tables)
}

// targetStart reports whether toks[i] is followed by a table target and
// returns the index the target starts at.
func targetStart(toks []lexer.Token, i int) (int, bool) {
	switch {
	case toks[i].Type == identType && introducers[strings.ToUpper(toks[i].Value)]:
		next := i + 1
		if next < len(toks) && toks[next].Type == identType && strings.EqualFold(toks[next].Value, "ONLY") {
			next++
		}
		return next, true
	case isArrow(toks, i):
		next := i + 1
		if next < len(toks) && toks[next].Value == "(" {
			next++
		}
		return next, true
	}
	return 0, false
}

// isArrow reports whether toks[i] completes a graph arrow, -> or <-.
func isArrow(toks []lexer.Token, i int) bool {
	if i == 0 {
		return false
	}
	prev, cur := toks[i-1].Value, toks[i].Value
	return (prev == "-" && cur == ">") || (prev == "<" && cur == "-")
}

// tableAt reads a table or record id target starting at toks[i]. It returns
// the table and the index of the first token after the target.
func tableAt(toks []lexer.Token, i int) (string, int, bool) {
	if i >= len(toks) || toks[i].Type != identType || notTables[strings.ToUpper(toks[i].Value)] {
		return "", i, false
	}
	table := unquote(toks[i].Value)
	if table == "" {
		return "", i, false
	}

	end := i + 1
	if end < len(toks) && toks[end].Value == ":" {
		if end+1 < len(toks) && toks[end+1].Value == ":" {
			// type::table($tb) and friends
			return "", i, false
		}
		// Skip a simple record id; complex ids end the target list at their
		// opening bracket.
		end += 2
		end = min(end, len(toks))
	}
	return table, end, true
}
