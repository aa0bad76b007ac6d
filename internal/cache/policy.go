package cache

import (
	"errors"
	"fmt"
	"time"
)

// EvictionStrategy selects how entries are chosen for eviction.
type EvictionStrategy string

const (
	// EvictionLRU evicts the least recently accessed entries first.
	EvictionLRU EvictionStrategy = "lru"
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("invalid cache policy")

// Preset names accepted by PresetByName.
const (
	PresetDefault    = "default"
	PresetAggressive = "aggressive"
	PresetShortLived = "short-lived"
)

// Policy is the immutable configuration consumed by an Engine.
type Policy struct {
	// DefaultTTL applies to entries set without their own TTL. Nil means
	// such entries never expire.
	DefaultTTL *time.Duration
	// MaxEntries bounds the number of stored entries. Nil means unbounded.
	MaxEntries *int
	// Eviction selects the eviction algorithm.
	Eviction EvictionStrategy
	// InvalidateOnLiveQuery makes live notifications invalidate the watched
	// table.
	InvalidateOnLiveQuery bool
}

// DefaultPolicy is the balanced preset: 5 minute TTL, 1000 entries.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL:            Seconds(300),
		MaxEntries:            Entries(1000),
		Eviction:              EvictionLRU,
		InvalidateOnLiveQuery: true,
	}
}

// AggressivePolicy keeps entries for 30 minutes, up to 5000 of them.
func AggressivePolicy() Policy {
	return Policy{
		DefaultTTL:            Seconds(1800),
		MaxEntries:            Entries(5000),
		Eviction:              EvictionLRU,
		InvalidateOnLiveQuery: true,
	}
}

// ShortLivedPolicy keeps entries for 30 seconds, up to 100 of them.
func ShortLivedPolicy() Policy {
	return Policy{
		DefaultTTL:            Seconds(30),
		MaxEntries:            Entries(100),
		Eviction:              EvictionLRU,
		InvalidateOnLiveQuery: true,
	}
}

// PresetByName returns the named preset.
func PresetByName(name string) (Policy, error) {
	switch name {
	case PresetDefault:
		return DefaultPolicy(), nil
	case PresetAggressive:
		return AggressivePolicy(), nil
	case PresetShortLived:
		return ShortLivedPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidPolicy, name)
	}
}

// Validate reports configuration the engine cannot honor.
func (p Policy) Validate() error {
	if p.DefaultTTL != nil && *p.DefaultTTL < 0 {
		return fmt.Errorf("%w: default TTL must not be negative", ErrInvalidPolicy)
	}
	if p.MaxEntries != nil && *p.MaxEntries <= 0 {
		return fmt.Errorf("%w: max entries must be positive", ErrInvalidPolicy)
	}
	switch p.Eviction {
	case "", EvictionLRU:
	default:
		return fmt.Errorf("%w: unsupported eviction strategy %q", ErrInvalidPolicy, p.Eviction)
	}
	return nil
}

// effectiveTTL picks the explicit TTL, then the policy default.
func (p Policy) effectiveTTL(ttl *time.Duration) *time.Duration {
	if ttl != nil {
		return ttl
	}
	return p.DefaultTTL
}

// Seconds returns a TTL pointer for s seconds.
func Seconds(s float64) *time.Duration {
	d := time.Duration(s * float64(time.Second))
	return &d
}

// Entries returns a MaxEntries pointer.
func Entries(n int) *int {
	return &n
}
