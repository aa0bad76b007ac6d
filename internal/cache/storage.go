package cache

import "context"

// Storage persists cache entries. Implementations must be safe for
// concurrent use and serialize their own internal state.
//
// Get removes and hides entries that have expired, and records the access
// (LastAccessedAt, AccessCount) on a hit. Expired entries are otherwise left
// in place: backends never sweep in the background.
type Storage interface {
	// Get returns the entry stored under key, or false when it is missing
	// or expired.
	Get(ctx context.Context, key Key) (*Entry, bool)
	// Set inserts or replaces the entry stored under key.
	Set(ctx context.Context, key Key, entry *Entry)
	// Remove deletes the entry stored under key, if any.
	Remove(ctx context.Context, key Key)
	// RemoveAll deletes every entry.
	RemoveAll(ctx context.Context)
	// RemoveEntries deletes every entry that depends on table.
	RemoveEntries(ctx context.Context, table string)
	// AllEntries returns every entry ordered by LastAccessedAt, oldest first.
	// It does not touch or remove anything.
	AllEntries(ctx context.Context) []KeyedEntry
	// Count returns the number of stored entries, expired ones included.
	Count(ctx context.Context) int
}

// IsEmpty reports whether s holds no entries.
func IsEmpty(ctx context.Context, s Storage) bool {
	return s.Count(ctx) == 0
}
