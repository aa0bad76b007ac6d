package surql

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Hint carries per-query cache directives read from comments:
//
//	-- @cache ttl=30s tables=user,post
//	-- @nocache
type Hint struct {
	// Cache is set by an @cache directive. It opts a query into caching
	// even when no dependency tables can be found.
	Cache bool
	// NoCache disables caching for the query.
	NoCache bool
	// TTL overrides the policy default when non-nil.
	TTL *time.Duration
	// Tables are dependencies added to those found by ExtractTables.
	Tables []string
}

var (
	// hintRegex matches a directive at the start of a comment.
	hintRegex = regexp.MustCompile(`(?m)(?:--|//|#)\s*@(cache|nocache)\b([^\n]*)$`)

	// ttlRegex matches ttl values
	ttlRegex = regexp.MustCompile(`\bttl=(\d+)(ms|s|m|h|d)\b`)

	// tablesRegex matches extra dependency tables
	tablesRegex = regexp.MustCompile(`\btables=([^\s]+)`)
)

// ParseHint reads the first cache directive in query. Queries without one
// return the zero Hint.
func ParseHint(query string) Hint {
	matches := hintRegex.FindStringSubmatch(query)
	if matches == nil {
		return Hint{}
	}
	if matches[1] == "nocache" {
		return Hint{NoCache: true}
	}

	content := matches[2]
	hint := Hint{Cache: true}

	// Parse TTL
	if m := ttlRegex.FindStringSubmatch(content); len(m) == 3 {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			d := time.Duration(n) * ttlUnit(m[2])
			hint.TTL = &d
		}
	}

	// Parse extra tables
	if m := tablesRegex.FindStringSubmatch(content); len(m) == 2 {
		for _, t := range strings.Split(m[1], ",") {
			if t = TableFromTarget(t); t != "" {
				hint.Tables = append(hint.Tables, t)
			}
		}
	}

	return hint
}

func ttlUnit(unit string) time.Duration {
	switch unit {
	case "ms":
		return time.Millisecond
	case "s":
		return time.Second
	case "m":
		return time.Minute
	case "h":
		return time.Hour
	default:
		return 24 * time.Hour
	}
}
