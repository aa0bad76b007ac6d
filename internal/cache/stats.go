package cache

import (
	"slices"
	"time"
)

// Stats is a read-only snapshot of the cache contents.
type Stats struct {
	TotalEntries   int
	ExpiredEntries int
	// Tables is the sorted union of every entry's dependency set.
	Tables []string
	// OldestEntry and NewestEntry are the min and max LastAccessedAt, nil
	// when the cache is empty.
	OldestEntry *time.Time
	NewestEntry *time.Time
}

// computeStats summarizes entries as observed at now. Expired entries are
// counted, never removed.
func computeStats(entries []KeyedEntry, now time.Time) Stats {
	stats := Stats{
		TotalEntries: len(entries),
		Tables:       []string{},
	}
	for _, ke := range entries {
		e := ke.Entry
		if e.IsExpired(now) {
			stats.ExpiredEntries++
		}
		stats.Tables = append(stats.Tables, e.Tables...)

		accessed := e.LastAccessedAt
		if stats.OldestEntry == nil || accessed.Before(*stats.OldestEntry) {
			stats.OldestEntry = &accessed
		}
		if stats.NewestEntry == nil || accessed.After(*stats.NewestEntry) {
			stats.NewestEntry = &accessed
		}
	}
	slices.Sort(stats.Tables)
	stats.Tables = slices.Compact(stats.Tables)
	return stats
}
