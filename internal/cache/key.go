package cache

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Key identifies one cacheable operation. Keys are comparable and are used
// directly as map keys by in-memory storage.
type Key struct {
	Method     string `json:"method"`
	Target     string `json:"target"`
	ParamsHash string `json:"params_hash"`
}

// NewKey builds a Key for method on target with the given bound parameters.
// A nil map and an empty map produce the same key.
func NewKey(method, target string, params map[string]any) (Key, error) {
	hash, err := CanonicalParams(params)
	if err != nil {
		return Key{}, err
	}
	return Key{Method: method, Target: target, ParamsHash: hash}, nil
}

// CanonicalParams renders params as name=<json-value> pairs sorted by name
// and joined with '&'. It returns "" when params is empty.
func CanonicalParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		value, err := json.Marshal(params[name])
		if err != nil {
			return "", fmt.Errorf("encode param %q: %w", name, err)
		}
		parts = append(parts, name+"="+string(value))
	}
	return strings.Join(parts, "&"), nil
}

// String returns a human readable form of the key.
func (k Key) String() string {
	if k.ParamsHash == "" {
		return k.Method + " " + k.Target
	}
	return k.Method + " " + k.Target + " ?" + k.ParamsHash
}

// ID returns a stable, collision resistant identifier for durable backends.
func (k Key) ID() string {
	// A JSON array keeps the three fields unambiguous regardless of content.
	data, _ := json.Marshal([3]string{k.Method, k.Target, k.ParamsHash})
	return ComputeKey(data)
}
