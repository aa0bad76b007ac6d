// Package cache provides the client-side result cache for surrealcache.
//
// An Engine composes a Storage backend with an immutable Policy. Reads look
// up a Key and get back the raw JSON payload stored by a previous Set; writes
// and live notifications invalidate every entry that depends on a table.
// Expiry and eviction happen synchronously inside Get and Set. There are no
// background goroutines or timers.
//
// Usage:
//
//	engine := cache.New(cache.NewMemoryStorage(), cache.DefaultPolicy())
//	key, _ := cache.NewKey("select", "users", nil)
//	if raw, ok := engine.Get(ctx, key); ok {
//	    // use cached payload
//	}
//	engine.Set(ctx, key, payload, []string{"users"}, nil)
//	engine.Invalidate(ctx, "users")
package cache
