package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/surrealcache/internal/cache"
)

// noEnv isolates tests from the process environment.
var noEnv = map[string]string{}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := writeConfig(t, tempDir, "surrealcache.toml", `
preset = "aggressive"
default_ttl = "2m"
max_entries = 50
eviction = "lru"
invalidate_on_live_query = false

[storage]
kind = "sqlite"
path = "cache.db"
`)

	result, err := Load(configPath, LoadOptions{Environment: noEnv})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}

	want := Plan{
		Preset: cache.PresetAggressive,
		Policy: cache.Policy{
			DefaultTTL:            cache.Seconds(120),
			MaxEntries:            cache.Entries(50),
			Eviction:              cache.EvictionLRU,
			InvalidateOnLiveQuery: false,
		},
		Storage: StorageConfig{Kind: StorageSQLite, Path: filepath.Join(tempDir, "cache.db")},
	}
	if diff := cmp.Diff(want, result.Plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := writeConfig(t, tempDir, "surrealcache.yaml", `
preset: short-lived
default_ttl: none
max_entries: 0
storage:
  kind: file
`)

	result, err := Load(configPath, LoadOptions{Environment: noEnv})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	plan := result.Plan
	if plan.Preset != cache.PresetShortLived {
		t.Errorf("Preset = %q", plan.Preset)
	}
	if plan.Policy.DefaultTTL != nil {
		t.Errorf("DefaultTTL = %v, want nil for none", *plan.Policy.DefaultTTL)
	}
	if plan.Policy.MaxEntries != nil {
		t.Errorf("MaxEntries = %v, want nil for 0", *plan.Policy.MaxEntries)
	}
	if !plan.Policy.InvalidateOnLiveQuery {
		t.Error("InvalidateOnLiveQuery should keep the preset value")
	}
	wantStorage := StorageConfig{Kind: StorageFile, Path: filepath.Join(tempDir, ".surrealcache")}
	if plan.Storage != wantStorage {
		t.Errorf("Storage = %+v, want %+v", plan.Storage, wantStorage)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	result, err := Load("", LoadOptions{Environment: noEnv})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := Plan{
		Preset:  cache.PresetDefault,
		Policy:  cache.DefaultPolicy(),
		Storage: StorageConfig{Kind: StorageMemory},
	}
	if diff := cmp.Diff(want, result.Plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := writeConfig(t, tempDir, "surrealcache.toml", `
preset = "aggressive"
default_ttl = "2m"
max_entries = 50

[storage]
kind = "file"
path = "from-file"
`)

	environment := map[string]string{
		"SURREALCACHE_PRESET":                   "short-lived",
		"SURREALCACHE_DEFAULT_TTL":              "45s",
		"SURREALCACHE_INVALIDATE_ON_LIVE_QUERY": "false",
		"SURREALCACHE_STORAGE_KIND":             "sqlite",
		"SURREALCACHE_STORAGE_PATH":             "/var/cache/surreal.db",
		"UNRELATED":                             "x",
	}
	result, err := Load(configPath, LoadOptions{Environment: environment})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	want := Plan{
		Preset: cache.PresetShortLived,
		Policy: cache.Policy{
			DefaultTTL: cache.Seconds(45),
			// File value applied on top of the environment's preset.
			MaxEntries:            cache.Entries(50),
			Eviction:              cache.EvictionLRU,
			InvalidateOnLiveQuery: false,
		},
		Storage: StorageConfig{Kind: StorageSQLite, Path: "/var/cache/surreal.db"},
	}
	if diff := cmp.Diff(want, result.Plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironmentMaxEntries(t *testing.T) {
	t.Parallel()

	result, err := Load("", LoadOptions{Environment: map[string]string{"SURREALCACHE_MAX_ENTRIES": "7"}})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := result.Plan.Policy.MaxEntries; got == nil || *got != 7 {
		t.Fatalf("MaxEntries = %v, want 7", got)
	}
	if got := *result.Plan.Policy.DefaultTTL; got != 300*time.Second {
		t.Errorf("DefaultTTL = %v, want preset default", got)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown preset",
			file:    "c.toml",
			content: `preset = "turbo"`,
			wantErr: "unknown preset",
		},
		{
			name:    "bad ttl",
			file:    "c.toml",
			content: `default_ttl = "soon"`,
			wantErr: "default_ttl",
		},
		{
			name:    "negative ttl",
			file:    "c.toml",
			content: `default_ttl = "-1s"`,
			wantErr: "invalid cache policy",
		},
		{
			name:    "negative capacity",
			file:    "c.toml",
			content: `max_entries = -3`,
			wantErr: "invalid cache policy",
		},
		{
			name:    "unknown eviction",
			file:    "c.toml",
			content: `eviction = "lfu"`,
			wantErr: "invalid cache policy",
		},
		{
			name:    "unknown storage",
			file:    "c.yaml",
			content: "storage:\n  kind: redis\n",
			wantErr: "unsupported storage kind",
		},
		{
			name:    "unsupported format",
			file:    "c.json",
			content: `{}`,
			wantErr: "unsupported config format",
		},
		{
			name:    "malformed toml",
			file:    "c.toml",
			content: `preset = `,
			wantErr: "c.toml",
		},
		{
			name:    "bad env ttl",
			file:    "c.toml",
			content: ``,
			env:     map[string]string{"SURREALCACHE_DEFAULT_TTL": "later"},
			wantErr: "SURREALCACHE_DEFAULT_TTL",
		},
		{
			name:    "bad env number",
			file:    "c.toml",
			content: ``,
			env:     map[string]string{"SURREALCACHE_MAX_ENTRIES": "many"},
			wantErr: "parse env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			configPath := writeConfig(t, t.TempDir(), tt.file, tt.content)
			environment := tt.env
			if environment == nil {
				environment = noEnv
			}
			_, err := Load(configPath, LoadOptions{Environment: environment})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), LoadOptions{Environment: noEnv})
	if err == nil || !strings.Contains(err.Error(), "read") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoadStrictUnknownKeys(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := writeConfig(t, tempDir, "surrealcache.toml", `
preset = "default"
extra = "value"
`)

	_, err := Load(configPath, LoadOptions{Strict: true, Environment: noEnv})
	if err == nil {
		t.Fatal("expected strict mode to reject unknown keys")
	}
	if !strings.Contains(err.Error(), "unknown configuration keys") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "extra") {
		t.Fatalf("error should mention offending key, got: %v", err)
	}
}

func TestLoadNonStrictUnknownKeysWarning(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := writeConfig(t, tempDir, "surrealcache.yml", `
preset: default
extra: value
storage:
  kind: memory
  shards: 4
`)

	result, err := Load(configPath, LoadOptions{Environment: noEnv})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(result.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "extra") {
		t.Errorf("first warning should mention extra, got %q", result.Warnings[0])
	}
	if !strings.Contains(result.Warnings[1], "storage.shards") {
		t.Errorf("second warning should mention storage.shards, got %q", result.Warnings[1])
	}
}

func TestOpenStorage(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	tests := []struct {
		name string
		cfg  StorageConfig
		want string
	}{
		{name: "default", cfg: StorageConfig{}, want: "*cache.MemoryStorage"},
		{name: "memory", cfg: StorageConfig{Kind: StorageMemory}, want: "*cache.MemoryStorage"},
		{name: "file", cfg: StorageConfig{Kind: StorageFile, Path: filepath.Join(tempDir, "files")}, want: "*cache.FileStorage"},
		{name: "sqlite", cfg: StorageConfig{Kind: "SQLite", Path: filepath.Join(tempDir, "cache.db")}, want: "*cache.SQLiteStorage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, closer, err := OpenStorage(tt.cfg)
			if err != nil {
				t.Fatalf("OpenStorage() error = %v", err)
			}
			t.Cleanup(func() { _ = closer.Close() })

			if got := typeName(storage); got != tt.want {
				t.Errorf("storage type = %s, want %s", got, tt.want)
			}
		})
	}

	if _, _, err := OpenStorage(StorageConfig{Kind: "redis"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *cache.MemoryStorage:
		return "*cache.MemoryStorage"
	case *cache.FileStorage:
		return "*cache.FileStorage"
	case *cache.SQLiteStorage:
		return "*cache.SQLiteStorage"
	default:
		return "unknown"
	}
}

func writeConfig(tb testing.TB, dir, name, contents string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o600); err != nil {
		tb.Fatalf("write config: %v", err)
	}
	return path
}
