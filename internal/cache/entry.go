package cache

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Entry is one cached result together with its bookkeeping.
type Entry struct {
	// Value is the serialized result of the cached operation.
	Value json.RawMessage `json:"value"`
	// Tables lists the tables whose mutation invalidates this entry.
	Tables         []string       `json:"tables"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	AccessCount    int            `json:"access_count"`
	TTL            *time.Duration `json:"ttl,omitempty"`
}

// KeyedEntry pairs an entry with the key it is stored under.
type KeyedEntry struct {
	Key   Key
	Entry *Entry
}

// NewEntry returns a fresh entry created at now. Tables are de-duplicated
// and sorted. A nil ttl means the entry never expires.
func NewEntry(value json.RawMessage, tables []string, ttl *time.Duration, now time.Time) *Entry {
	e := &Entry{
		Value:          slices.Clone(value),
		Tables:         normalizeTables(tables),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if ttl != nil {
		d := *ttl
		e.TTL = &d
	}
	return e
}

// IsExpired reports whether the entry's TTL has elapsed at now.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.TTL == nil {
		return false
	}
	return now.Sub(e.CreatedAt) >= *e.TTL
}

// DependsOn reports whether table is in the entry's dependency set.
func (e *Entry) DependsOn(table string) bool {
	_, found := slices.BinarySearch(e.Tables, table)
	return found
}

// touch records a successful read. LastAccessedAt never moves backwards.
func (e *Entry) touch(now time.Time) {
	if now.After(e.LastAccessedAt) {
		e.LastAccessedAt = now
	}
	e.AccessCount++
}

// clone returns a deep copy so callers cannot mutate stored state.
func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Value = slices.Clone(e.Value)
	c.Tables = slices.Clone(e.Tables)
	if e.TTL != nil {
		d := *e.TTL
		c.TTL = &d
	}
	return &c
}

func normalizeTables(tables []string) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// sortByAccess orders entries oldest access first. Ties fall back to the key
// identifier so the order is deterministic.
func sortByAccess(entries []KeyedEntry) {
	slices.SortFunc(entries, func(a, b KeyedEntry) int {
		if c := a.Entry.LastAccessedAt.Compare(b.Entry.LastAccessedAt); c != 0 {
			return c
		}
		return compareKeys(a.Key, b.Key)
	})
}

func compareKeys(a, b Key) int {
	if c := strings.Compare(a.Method, b.Method); c != 0 {
		return c
	}
	if c := strings.Compare(a.Target, b.Target); c != 0 {
		return c
	}
	return strings.Compare(a.ParamsHash, b.ParamsHash)
}
