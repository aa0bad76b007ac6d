package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type storageFactory func(t *testing.T, clock Clock) Storage

func storageBackends() map[string]storageFactory {
	return map[string]storageFactory{
		"memory": func(_ *testing.T, clock Clock) Storage {
			return NewMemoryStorage(WithStorageClock(clock))
		},
		"file": func(t *testing.T, clock Clock) Storage {
			t.Helper()
			fs, err := NewFileStorage(filepath.Join(t.TempDir(), "cache"), WithStorageClock(clock))
			if err != nil {
				t.Fatalf("NewFileStorage failed: %v", err)
			}
			return fs
		},
		"sqlite": func(t *testing.T, clock Clock) Storage {
			t.Helper()
			s, err := OpenSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"), WithStorageClock(clock))
			if err != nil {
				t.Fatalf("OpenSQLiteStorage failed: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// forEachStorage runs fn against every backend with a fresh store.
func forEachStorage(t *testing.T, fn func(t *testing.T, s Storage, clock *fakeClock)) {
	t.Helper()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			fn(t, factory(t, clock), clock)
		})
	}
}

func ttl(d time.Duration) *time.Duration { return &d }

func TestStorage_GetSet(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		key := mustKey("select", "users", nil)
		s.Set(ctx, key, NewEntry(json.RawMessage(`"v1"`), []string{"users"}, nil, clock.Now()))

		t.Run("hit", func(t *testing.T) {
			got, ok := s.Get(ctx, key)
			if !ok {
				t.Fatal("expected key to exist")
			}
			if string(got.Value) != `"v1"` {
				t.Errorf("Get() value = %s, want %q", got.Value, `"v1"`)
			}
			if diff := cmp.Diff([]string{"users"}, got.Tables); diff != "" {
				t.Errorf("tables mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("missing key", func(t *testing.T) {
			if _, ok := s.Get(ctx, mustKey("select", "missing", nil)); ok {
				t.Error("expected key to not exist")
			}
		})
	})
}

func TestStorage_AccessBookkeeping(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		key := mustKey("select", "users", nil)
		created := clock.Now()
		s.Set(ctx, key, NewEntry(json.RawMessage(`1`), nil, nil, created))

		clock.Advance(time.Second)
		first, ok := s.Get(ctx, key)
		if !ok {
			t.Fatal("expected first hit")
		}
		clock.Advance(time.Second)
		second, ok := s.Get(ctx, key)
		if !ok {
			t.Fatal("expected second hit")
		}

		if first.AccessCount != 1 || second.AccessCount != 2 {
			t.Errorf("access counts = %d, %d; want 1, 2", first.AccessCount, second.AccessCount)
		}
		if second.LastAccessedAt.Before(first.LastAccessedAt) {
			t.Errorf("LastAccessedAt went backwards: %v then %v", first.LastAccessedAt, second.LastAccessedAt)
		}
		if !first.LastAccessedAt.Equal(created.Add(time.Second)) {
			t.Errorf("LastAccessedAt = %v, want %v", first.LastAccessedAt, created.Add(time.Second))
		}
		if !second.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt changed to %v, want %v", second.CreatedAt, created)
		}
	})
}

func TestStorage_ExpiredEntryRemovedOnGet(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		key := mustKey("select", "users", nil)
		s.Set(ctx, key, NewEntry(json.RawMessage(`1`), nil, ttl(time.Minute), clock.Now()))

		clock.Advance(59 * time.Second)
		if _, ok := s.Get(ctx, key); !ok {
			t.Fatal("expected entry before TTL elapsed")
		}

		clock.Advance(time.Second)
		if got := s.Count(ctx); got != 1 {
			t.Fatalf("Count() before lazy removal = %d, want 1", got)
		}
		if _, ok := s.Get(ctx, key); ok {
			t.Fatal("expected expired entry to be a miss")
		}
		if got := s.Count(ctx); got != 0 {
			t.Errorf("Count() after lazy removal = %d, want 0", got)
		}
	})
}

func TestStorage_OverwriteKeepsCount(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		key := mustKey("query", "SELECT * FROM users", map[string]any{"id": 1})
		s.Set(ctx, key, NewEntry(json.RawMessage(`"first"`), nil, nil, clock.Now()))
		s.Set(ctx, key, NewEntry(json.RawMessage(`"second"`), nil, nil, clock.Now()))

		if got := s.Count(ctx); got != 1 {
			t.Errorf("Count() = %d, want 1", got)
		}
		got, ok := s.Get(ctx, key)
		if !ok {
			t.Fatal("expected overwritten key to exist")
		}
		if string(got.Value) != `"second"` {
			t.Errorf("Get() = %s, want %q", got.Value, `"second"`)
		}
	})
}

func TestStorage_Remove(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		keep := mustKey("select", "posts", nil)
		drop := mustKey("select", "users", nil)
		s.Set(ctx, keep, NewEntry(json.RawMessage(`1`), nil, nil, clock.Now()))
		s.Set(ctx, drop, NewEntry(json.RawMessage(`2`), nil, nil, clock.Now()))

		s.Remove(ctx, drop)
		s.Remove(ctx, mustKey("select", "never-set", nil))

		if _, ok := s.Get(ctx, drop); ok {
			t.Error("expected removed key to be gone")
		}
		if _, ok := s.Get(ctx, keep); !ok {
			t.Error("expected other key to survive")
		}
	})
}

func TestStorage_RemoveAll(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		s.Set(ctx, mustKey("select", "a", nil), NewEntry(json.RawMessage(`1`), nil, nil, clock.Now()))
		s.Set(ctx, mustKey("select", "b", nil), NewEntry(json.RawMessage(`2`), nil, nil, clock.Now()))

		s.RemoveAll(ctx)

		if !IsEmpty(ctx, s) {
			t.Errorf("Count() = %d, want 0", s.Count(ctx))
		}
	})
}

func TestStorage_RemoveEntriesForTable(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		a := mustKey("select", "users", nil)
		b := mustKey("select", "posts", nil)
		c := mustKey("query", "SELECT * FROM users, posts", nil)
		s.Set(ctx, a, NewEntry(json.RawMessage(`"a"`), []string{"users"}, nil, clock.Now()))
		s.Set(ctx, b, NewEntry(json.RawMessage(`"b"`), []string{"posts"}, nil, clock.Now()))
		s.Set(ctx, c, NewEntry(json.RawMessage(`"c"`), []string{"users", "posts"}, nil, clock.Now()))

		s.RemoveEntries(ctx, "comments")
		if got := s.Count(ctx); got != 3 {
			t.Fatalf("Count() after unrelated invalidation = %d, want 3", got)
		}

		s.RemoveEntries(ctx, "users")

		if _, ok := s.Get(ctx, a); ok {
			t.Error("expected a to be removed")
		}
		if _, ok := s.Get(ctx, c); ok {
			t.Error("expected c to be removed")
		}
		got, ok := s.Get(ctx, b)
		if !ok {
			t.Fatal("expected b to survive")
		}
		if string(got.Value) != `"b"` {
			t.Errorf("Get(b) = %s, want %q", got.Value, `"b"`)
		}
	})
}

func TestStorage_AllEntriesOrderedByAccess(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		keys := []Key{
			mustKey("select", "a", nil),
			mustKey("select", "b", nil),
			mustKey("select", "c", nil),
		}
		for _, k := range keys {
			s.Set(ctx, k, NewEntry(json.RawMessage(`null`), nil, ttl(time.Hour), clock.Now()))
			clock.Advance(time.Second)
		}
		// Touch the oldest so it moves to the back.
		if _, ok := s.Get(ctx, keys[0]); !ok {
			t.Fatal("expected hit on a")
		}

		entries := s.AllEntries(ctx)
		got := make([]string, 0, len(entries))
		for _, ke := range entries {
			got = append(got, ke.Key.Target)
		}
		if diff := cmp.Diff([]string{"b", "c", "a"}, got); diff != "" {
			t.Errorf("AllEntries order mismatch (-want +got):\n%s", diff)
		}

		// AllEntries must not count as an access.
		for _, ke := range s.AllEntries(ctx) {
			if ke.Key.Target == "b" && ke.Entry.AccessCount != 0 {
				t.Errorf("AccessCount of b = %d, want 0", ke.Entry.AccessCount)
			}
		}
	})
}

func TestStorage_AllEntriesKeepsExpired(t *testing.T) {
	ctx := context.Background()

	forEachStorage(t, func(t *testing.T, s Storage, clock *fakeClock) {
		s.Set(ctx, mustKey("select", "a", nil), NewEntry(json.RawMessage(`1`), nil, ttl(time.Second), clock.Now()))
		clock.Advance(time.Minute)

		if got := len(s.AllEntries(ctx)); got != 1 {
			t.Errorf("len(AllEntries()) = %d, want 1", got)
		}
		if got := s.Count(ctx); got != 1 {
			t.Errorf("Count() = %d, want 1", got)
		}
	})
}
