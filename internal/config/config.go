// Package config loads the surrealcache configuration from TOML or YAML and
// the SURREALCACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/electwix/surrealcache/internal/cache"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SURREALCACHE_"

// ttlNone disables expiry when used as default_ttl.
const ttlNone = "none"

// StorageKind selects a cache backend.
type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StorageFile   StorageKind = "file"
	StorageSQLite StorageKind = "sqlite"
)

var defaultStoragePaths = map[StorageKind]string{
	StorageFile:   ".surrealcache",
	StorageSQLite: ".surrealcache.db",
}

// StorageConfig describes the backend to open.
type StorageConfig struct {
	Kind StorageKind
	// Path is the directory (file) or database file (sqlite). Unused for
	// memory storage.
	Path string
}

// Config mirrors the configuration file schema.
type Config struct {
	Preset                string        `toml:"preset" yaml:"preset"`
	DefaultTTL            *string       `toml:"default_ttl" yaml:"default_ttl"`
	MaxEntries            *int          `toml:"max_entries" yaml:"max_entries"`
	Eviction              string        `toml:"eviction" yaml:"eviction"`
	InvalidateOnLiveQuery *bool         `toml:"invalidate_on_live_query" yaml:"invalidate_on_live_query"`
	Storage               StorageDetail `toml:"storage" yaml:"storage"`
}

// StorageDetail is the [storage] table.
type StorageDetail struct {
	Kind string `toml:"kind" yaml:"kind"`
	Path string `toml:"path" yaml:"path"`
}

// envConfig holds the environment overrides. Unset variables leave their
// field at the zero value.
type envConfig struct {
	Preset                string  `env:"PRESET"`
	DefaultTTL            *string `env:"DEFAULT_TTL"`
	MaxEntries            *int    `env:"MAX_ENTRIES"`
	InvalidateOnLiveQuery *bool   `env:"INVALIDATE_ON_LIVE_QUERY"`
	StorageKind           string  `env:"STORAGE_KIND"`
	StoragePath           string  `env:"STORAGE_PATH"`
}

// Plan is the resolved configuration.
type Plan struct {
	Preset  string
	Policy  cache.Policy
	Storage StorageConfig
}

// LoadOptions tunes config loading behavior.
type LoadOptions struct {
	Strict bool
	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// Result wraps a loaded plan alongside any non-fatal warnings.
type Result struct {
	Plan     Plan
	Warnings []string
}

var knownKeys = map[string][]string{
	"":        {"preset", "default_ttl", "max_entries", "eviction", "invalidate_on_live_query", "storage"},
	"storage": {"kind", "path"},
}

// Load reads the configuration at path, applies environment overrides and
// validates the result. An empty path loads defaults plus environment.
func Load(path string, opts LoadOptions) (Result, error) {
	var res Result

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return res, fmt.Errorf("read %s: %w", path, err)
		}

		raw, err := decode(path, data, &cfg)
		if err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}

		for _, section := range slices.Sorted(maps.Keys(knownKeys)) {
			unknown := collectUnknownKeys(raw, section)
			if len(unknown) == 0 {
				continue
			}
			message := fmt.Sprintf("%s: unknown configuration keys: %s", path, strings.Join(unknown, ", "))
			if opts.Strict {
				return res, errors.New(message)
			}
			res.Warnings = append(res.Warnings, message)
		}
	}

	var ec envConfig
	envOpts := env.Options{Prefix: EnvPrefix, Environment: opts.Environment}
	if err := env.ParseWithOptions(&ec, envOpts); err != nil {
		return res, fmt.Errorf("parse env: %w", err)
	}

	plan, err := resolve(cfg, ec)
	if err != nil {
		if path != "" {
			return res, fmt.Errorf("%s: %w", path, err)
		}
		return res, err
	}
	if path != "" && plan.Storage.Path != "" && !filepath.IsAbs(plan.Storage.Path) {
		plan.Storage.Path = filepath.Join(filepath.Dir(path), plan.Storage.Path)
	}

	res.Plan = plan
	return res, nil
}

// decode unmarshals data into cfg by file extension and also returns the
// generic document for unknown key detection.
func decode(path string, data []byte, cfg *Config) (map[string]any, error) {
	var raw map[string]any

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return raw, nil
}

func collectUnknownKeys(raw map[string]any, section string) []string {
	record := raw
	if section != "" {
		nested, ok := raw[section].(map[string]any)
		if !ok {
			return nil
		}
		record = nested
	}

	known := knownKeys[section]
	unknown := make([]string, 0)
	for key := range record {
		if !slices.Contains(known, key) {
			if section != "" {
				key = section + "." + key
			}
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	return unknown
}

// resolve layers the preset, the file and the environment, in that order.
// The preset itself may come from either source; the environment wins.
func resolve(cfg Config, ec envConfig) (Plan, error) {
	plan := Plan{Preset: cache.PresetDefault}
	if cfg.Preset != "" {
		plan.Preset = cfg.Preset
	}
	if ec.Preset != "" {
		plan.Preset = ec.Preset
	}

	policy, err := cache.PresetByName(plan.Preset)
	if err != nil {
		return plan, err
	}

	if err := applyTTL(&policy, cfg.DefaultTTL, "default_ttl"); err != nil {
		return plan, err
	}
	applyMaxEntries(&policy, cfg.MaxEntries)
	if cfg.Eviction != "" {
		policy.Eviction = cache.EvictionStrategy(cfg.Eviction)
	}
	if cfg.InvalidateOnLiveQuery != nil {
		policy.InvalidateOnLiveQuery = *cfg.InvalidateOnLiveQuery
	}

	if err := applyTTL(&policy, ec.DefaultTTL, EnvPrefix+"DEFAULT_TTL"); err != nil {
		return plan, err
	}
	applyMaxEntries(&policy, ec.MaxEntries)
	if ec.InvalidateOnLiveQuery != nil {
		policy.InvalidateOnLiveQuery = *ec.InvalidateOnLiveQuery
	}

	if err := policy.Validate(); err != nil {
		return plan, err
	}
	plan.Policy = policy

	storage, err := resolveStorage(cfg.Storage, ec)
	if err != nil {
		return plan, err
	}
	plan.Storage = storage
	return plan, nil
}

func applyTTL(policy *cache.Policy, value *string, field string) error {
	if value == nil {
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(*value), ttlNone) {
		policy.DefaultTTL = nil
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*value))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	policy.DefaultTTL = &d
	return nil
}

// applyMaxEntries treats zero as unbounded.
func applyMaxEntries(policy *cache.Policy, value *int) {
	switch {
	case value == nil:
	case *value == 0:
		policy.MaxEntries = nil
	default:
		policy.MaxEntries = cache.Entries(*value)
	}
}

func resolveStorage(detail StorageDetail, ec envConfig) (StorageConfig, error) {
	sc := StorageConfig{Kind: StorageKind(detail.Kind), Path: detail.Path}
	if ec.StorageKind != "" {
		sc.Kind = StorageKind(ec.StorageKind)
	}
	if ec.StoragePath != "" {
		sc.Path = ec.StoragePath
	}
	return NormalizeStorage(sc)
}

// NormalizeStorage validates sc and fills in defaults: memory storage when
// no kind is set, and a default path for durable kinds.
func NormalizeStorage(sc StorageConfig) (StorageConfig, error) {
	sc.Kind = StorageKind(strings.ToLower(strings.TrimSpace(string(sc.Kind))))
	switch sc.Kind {
	case "":
		sc.Kind = StorageMemory
		sc.Path = ""
	case StorageMemory:
		sc.Path = ""
	case StorageFile, StorageSQLite:
		if strings.TrimSpace(sc.Path) == "" {
			sc.Path = defaultStoragePaths[sc.Kind]
		}
	default:
		return sc, fmt.Errorf("unsupported storage kind %q", sc.Kind)
	}
	return sc, nil
}
