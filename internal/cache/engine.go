package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/electwix/surrealcache/internal/logging"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to timestamp new entries and evaluate
// expiry in Stats. Storage backends carry their own clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger for eviction and invalidation events.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records engine activity into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine is the cache orchestrator. It owns one Storage and one Policy for
// its lifetime. Every public method runs under a single engine lock.
type Engine struct {
	mu      sync.Mutex
	storage Storage
	policy  Policy
	clock   Clock
	logger  logging.Logger
	metrics *Metrics
}

// New creates an engine over storage governed by policy.
func New(storage Storage, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		storage: storage,
		policy:  policy,
		clock:   SystemClock,
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Get returns the cached payload for key. Missing and expired entries are
// both reported as a miss; the caller performs the real operation.
func (e *Engine) Get(ctx context.Context, key Key) (json.RawMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.storage.Get(ctx, key)
	if !ok {
		e.metrics.miss()
		return nil, false
	}
	e.metrics.hit()
	return entry.Value, true
}

// Set stores value under key with the given dependency tables. A nil ttl
// falls back to the policy default; when both are nil the entry never
// expires. value must be valid JSON.
func (e *Engine) Set(ctx context.Context, key Key, value json.RawMessage, tables []string, ttl *time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := NewEntry(value, tables, e.policy.effectiveTTL(ttl), e.clock.Now())
	e.storage.Set(ctx, key, entry)
	e.metrics.set()

	if e.policy.MaxEntries == nil && e.metrics == nil {
		return
	}
	count := e.storage.Count(ctx)
	if e.policy.MaxEntries != nil && count > *e.policy.MaxEntries {
		count -= e.evict(ctx)
	}
	e.metrics.entries(count)
}

// SetValue encodes value as JSON and stores it like Set.
func (e *Engine) SetValue(ctx context.Context, key Key, value any, tables []string, ttl *time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value for %s: %w", key, err)
	}
	e.Set(ctx, key, raw, tables, ttl)
	return nil
}

// evict removes a batch of the least recently accessed entries and returns
// how many were removed. The batch is a tenth of capacity, at least one.
func (e *Engine) evict(ctx context.Context) int {
	entries := e.storage.AllEntries(ctx)
	batch := max(1, *e.policy.MaxEntries/10)
	batch = min(batch, len(entries))

	for _, ke := range entries[:batch] {
		e.storage.Remove(ctx, ke.Key)
	}
	e.metrics.evicted(batch)
	e.logger.Debug("evicted cache entries", "count", batch, "max_entries", *e.policy.MaxEntries)
	return batch
}

// Invalidate removes every entry depending on table. Tables nothing
// depends on are a no-op.
func (e *Engine) Invalidate(ctx context.Context, table string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.storage.RemoveEntries(ctx, table)
	e.metrics.invalidated(scopeTable)
	if e.metrics != nil {
		e.metrics.entries(e.storage.Count(ctx))
	}
	e.logger.Debug("invalidated cache table", "table", table)
}

// InvalidateAll removes every entry. Callers use it when the namespace or
// database changes.
func (e *Engine) InvalidateAll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.storage.RemoveAll(ctx)
	e.metrics.invalidated(scopeAll)
	e.metrics.entries(0)
	e.logger.Debug("invalidated all cache entries")
}

// Stats summarizes the stored entries without touching or removing any.
func (e *Engine) Stats(ctx context.Context) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return computeStats(e.storage.AllEntries(ctx), e.clock.Now())
}
