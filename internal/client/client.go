// Package client puts the cache engine in front of a SurrealDB transport.
//
// Reads (select, query) are served from the cache when possible. Writes go
// to the server and, once they succeed, invalidate the tables they touched.
// Live query notifications invalidate their table as well. The engine never
// performs network I/O; all remote calls happen here, outside its lock.
//
// Every invalidation raises a per-table generation. A read records the
// generations of its tables before fetching and only stores its result if
// none of them moved, so a fetch that overlapped a write never caches the
// pre-write snapshot.
package client

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/electwix/surrealcache/internal/cache"
	"github.com/electwix/surrealcache/internal/logging"
	"github.com/electwix/surrealcache/internal/surql"
)

// Option configures a Client.
type Option func(*Client)

// WithCache enables result caching with the given policy and storage.
// Without it every call goes to the transport.
func WithCache(policy cache.Policy, storage cache.Storage) Option {
	return func(c *Client) {
		c.policy = policy
		c.storage = storage
	}
}

// WithLogger sets the logger used by the client and its engine.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records engine activity into m.
func WithMetrics(m *cache.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock overrides the engine clock.
func WithClock(clock cache.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithNotificationHandler receives every live query notification after the
// cache has reacted to it.
func WithNotificationHandler(fn func(Notification)) Option {
	return func(c *Client) {
		c.handler = fn
	}
}

// Client is a caching SurrealDB client.
type Client struct {
	transport Transport
	logger    logging.Logger
	handler   func(Notification)

	policy  cache.Policy
	storage cache.Storage
	metrics *cache.Metrics
	clock   cache.Clock
	engine  *cache.Engine
	reads   singleflight.Group

	// genMu orders invalidations against storing fetched results.
	genMu sync.Mutex
	epoch uint64            // raised by InvalidateAll
	gens  map[string]uint64 // table -> invalidation count

	mu          sync.Mutex
	live        map[string]string         // live query id -> table
	registering int                       // Live calls awaiting their id
	held        map[string][]Notification // notifications for ids not yet registered
}

// New creates a client over transport.
func New(transport Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, ErrNoTransport
	}

	c := &Client{
		transport: transport,
		logger:    logging.NewNopLogger(),
		gens:      make(map[string]uint64),
		live:      make(map[string]string),
		held:      make(map[string][]Notification),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.storage != nil {
		if err := c.policy.Validate(); err != nil {
			return nil, err
		}
		engineOpts := []cache.Option{cache.WithLogger(c.logger), cache.WithMetrics(c.metrics)}
		if c.clock != nil {
			engineOpts = append(engineOpts, cache.WithClock(c.clock))
		}
		c.engine = cache.New(c.storage, c.policy, engineOpts...)
	}
	return c, nil
}

// Caching reports whether results are cached.
func (c *Client) Caching() bool {
	return c.engine != nil
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	raw, err := c.transport.Call(ctx, method, params...)
	if err != nil {
		return nil, &RPCError{Method: method, Err: err}
	}
	return raw, nil
}

// Use switches namespace and database. Cached results belong to the
// previous database, so the whole cache is cleared on success.
func (c *Client) Use(ctx context.Context, namespace, database string) error {
	if _, err := c.call(ctx, "use", namespace, database); err != nil {
		return err
	}
	if c.engine != nil {
		c.InvalidateAll(ctx)
		c.logger.Info("switched database, cache cleared", "namespace", namespace, "database", database)
	}
	return nil
}

// Select reads a table or record, for example "user" or "user:tobie".
func (c *Client) Select(ctx context.Context, target string) (json.RawMessage, error) {
	key, err := cache.NewKey("select", target, nil)
	if err != nil {
		return nil, err
	}
	return c.read(ctx, key, []string{surql.TableFromTarget(target)}, nil, func() (json.RawMessage, error) {
		return c.call(ctx, "select", target)
	})
}

// Query runs a SurrealQL query. A read is cached against the tables the
// query text names, plus any listed in an @cache comment. A read with no
// recognizable tables is only cached when it carries @cache, and @nocache
// bypasses the cache entirely.
//
// Queries that write are never cached. Once one succeeds it invalidates
// every table it names; a write whose tables cannot be told from the text,
// such as "UPDATE $rec SET n = 1", clears the whole cache, as does USE.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]any) (json.RawMessage, error) {
	remote := func() (json.RawMessage, error) {
		if len(vars) == 0 {
			return c.call(ctx, "query", sql)
		}
		return c.call(ctx, "query", sql, vars)
	}

	hint := surql.ParseHint(sql)
	tables := append(surql.ExtractTables(sql), hint.Tables...)

	switch kind := surql.Classify(sql); kind {
	case surql.KindWrite, surql.KindSession:
		raw, err := remote()
		if err != nil {
			return nil, err
		}
		if c.engine == nil {
			return raw, nil
		}
		if kind == surql.KindSession || len(tables) == 0 {
			c.InvalidateAll(ctx)
		} else {
			c.invalidate(ctx, tables...)
		}
		c.logger.Debug("query invalidated cache", "kind", kind, "tables", tables)
		return raw, nil
	case surql.KindLive:
		return remote()
	}

	if c.engine == nil || hint.NoCache || (len(tables) == 0 && !hint.Cache) {
		return remote()
	}

	key, err := cache.NewKey("query", sql, vars)
	if err != nil {
		return nil, err
	}
	return c.read(ctx, key, tables, hint.TTL, remote)
}

// read serves key from the cache or runs fetch, storing its result.
// Concurrent misses for the same key share one fetch as long as no
// invalidation of tables happened in between.
func (c *Client) read(ctx context.Context, key cache.Key, tables []string, ttl *time.Duration, fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if c.engine == nil {
		return fetch()
	}
	if raw, ok := c.engine.Get(ctx, key); ok {
		c.logger.Debug("cache hit", "key", key.String())
		return raw, nil
	}

	gen := c.generation(tables)
	v, err, shared := c.reads.Do(key.ID()+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		raw, err := fetch()
		if err != nil {
			return nil, err
		}
		if !c.store(ctx, key, raw, tables, ttl, gen) {
			c.logger.Debug("dropped result fetched across an invalidation", "key", key.String())
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("cache miss", "key", key.String(), "shared", shared)
	return slices.Clone(v.(json.RawMessage)), nil
}

// generation sums the invalidation counts that can affect tables. Any
// invalidation of one of them, or of everything, raises it.
func (c *Client) generation(tables []string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.generationLocked(tables)
}

func (c *Client) generationLocked(tables []string) uint64 {
	gen := c.epoch
	for _, table := range tables {
		gen += c.gens[table]
	}
	return gen
}

// store caches raw unless tables were invalidated since gen was taken.
func (c *Client) store(ctx context.Context, key cache.Key, raw json.RawMessage, tables []string, ttl *time.Duration, gen uint64) bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	if c.generationLocked(tables) != gen {
		return false
	}
	c.engine.Set(ctx, key, raw, tables, ttl)
	return true
}

// Create creates a record or a record in a table.
func (c *Client) Create(ctx context.Context, target string, data any) (json.RawMessage, error) {
	return c.write(ctx, "create", target, withData(target, data)...)
}

// Update replaces the content of the target's records.
func (c *Client) Update(ctx context.Context, target string, data any) (json.RawMessage, error) {
	return c.write(ctx, "update", target, withData(target, data)...)
}

// Merge merges data into the target's records.
func (c *Client) Merge(ctx context.Context, target string, data any) (json.RawMessage, error) {
	return c.write(ctx, "merge", target, withData(target, data)...)
}

// Upsert creates or replaces the target's records.
func (c *Client) Upsert(ctx context.Context, target string, data any) (json.RawMessage, error) {
	return c.write(ctx, "upsert", target, withData(target, data)...)
}

// Patch applies JSON Patch operations to the target's records.
func (c *Client) Patch(ctx context.Context, target string, patches []PatchOp, diff bool) (json.RawMessage, error) {
	return c.write(ctx, "patch", target, target, patches, diff)
}

// Delete deletes the target's records.
func (c *Client) Delete(ctx context.Context, target string) (json.RawMessage, error) {
	return c.write(ctx, "delete", target, target)
}

// Insert inserts one or more records into table.
func (c *Client) Insert(ctx context.Context, table string, data any) (json.RawMessage, error) {
	return c.write(ctx, "insert", table, table, data)
}

// PatchOp is a single JSON Patch operation.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

func withData(target string, data any) []any {
	if data == nil {
		return []any{target}
	}
	return []any{target, data}
}

// write performs a mutation and invalidates target's table once the server
// has accepted it. Failed writes leave the cache alone.
func (c *Client) write(ctx context.Context, method, target string, params ...any) (json.RawMessage, error) {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	if table := surql.TableFromTarget(target); table != "" {
		c.invalidate(ctx, table)
	}
	return raw, nil
}

// Invalidate drops every cached result that depends on table. Use it for
// writes the client cannot see, such as queries that name tables through
// parameters.
func (c *Client) Invalidate(ctx context.Context, table string) {
	c.invalidate(ctx, table)
}

func (c *Client) invalidate(ctx context.Context, tables ...string) {
	if c.engine == nil {
		return
	}

	c.genMu.Lock()
	defer c.genMu.Unlock()
	for _, table := range tables {
		c.gens[table]++
		c.engine.Invalidate(ctx, table)
	}
}

// InvalidateAll drops every cached result.
func (c *Client) InvalidateAll(ctx context.Context) {
	if c.engine == nil {
		return
	}

	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.epoch++
	c.engine.InvalidateAll(ctx)
}

// CacheStats reports on the cache. It returns the zero Stats when caching
// is disabled.
func (c *Client) CacheStats(ctx context.Context) cache.Stats {
	if c.engine == nil {
		return cache.Stats{}
	}
	return c.engine.Stats(ctx)
}
