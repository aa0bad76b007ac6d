package surql

import "strings"

// Kind classifies what running a query does to the data it touches.
type Kind int

const (
	// KindRead only reads; its result may be cached.
	KindRead Kind = iota
	// KindLive starts or stops live queries. Its result is never cached.
	KindLive
	// KindWrite changes records or schema.
	KindWrite
	// KindSession switches namespace or database.
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindLive:
		return "live"
	case KindWrite:
		return "write"
	case KindSession:
		return "session"
	}
	return "unknown"
}

var statementKinds = map[string]Kind{
	"CREATE":  KindWrite,
	"UPDATE":  KindWrite,
	"UPSERT":  KindWrite,
	"DELETE":  KindWrite,
	"INSERT":  KindWrite,
	"RELATE":  KindWrite,
	"DEFINE":  KindWrite,
	"REMOVE":  KindWrite,
	"ALTER":   KindWrite,
	"REBUILD": KindWrite,
	"LIVE":    KindLive,
	"KILL":    KindLive,
	"USE":     KindSession,
}

// Classify returns the strongest kind of statement in query: a transaction
// that selects and then updates is a write. Statement keywords count
// anywhere in the text, subqueries included, because
// "SELECT * FROM (UPDATE user SET n += 1)" writes as well. Field paths,
// object keys and record ids spelled like keywords are skipped.
func Classify(query string) Kind {
	toks := tokens(query)

	kind := KindRead
	for i, tok := range toks {
		if tok.Type != identType {
			continue
		}
		k, ok := statementKinds[strings.ToUpper(tok.Value)]
		if !ok || k <= kind {
			continue
		}
		if i > 0 && (toks[i-1].Value == "." || toks[i-1].Value == ":") {
			continue
		}
		if i+1 < len(toks) && toks[i+1].Value == ":" {
			continue
		}
		kind = k
	}
	return kind
}
