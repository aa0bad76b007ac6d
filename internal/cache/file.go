package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/electwix/surrealcache/internal/logging"
)

// File permission constants for cache operations.
const (
	cacheDirPerm  = 0o750 // Directory permissions: rwxr-x---
	cacheFilePerm = 0o600 // File permissions: rw-------
)

const (
	entryFileExt = ".json"
	tempFileExt  = ".tmp"
)

// FileStorage implements Storage using file system storage.
// It stores one JSON document per key in a sharded directory structure, so
// entries survive process restarts.
type FileStorage struct {
	mu      sync.Mutex
	baseDir string
	clock   Clock
	logger  logging.Logger
}

// fileRecord is the on-disk format for cached entries.
type fileRecord struct {
	Key   Key    `json:"key"`
	Entry *Entry `json:"entry"`
}

// NewFileStorage creates a new file-based storage rooted at baseDir.
func NewFileStorage(baseDir string, opts ...StorageOption) (*FileStorage, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("cache directory is required")
	}
	// Create cache directory if it doesn't exist
	if err := os.MkdirAll(baseDir, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	o := buildStorageOptions(opts)
	return &FileStorage{
		baseDir: baseDir,
		clock:   o.clock,
		logger:  o.logger.With("storage", "file", "dir", baseDir),
	}, nil
}

// Dir returns the directory entries are stored in.
func (f *FileStorage) Dir() string {
	return f.baseDir
}

// Get retrieves an entry, dropping it if it has expired.
func (f *FileStorage) Get(_ context.Context, key Key) (*Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.keyToPath(key)
	rec, err := readRecord(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("discarding unreadable cache entry", "path", path, "error", err)
			_ = os.Remove(path)
		}
		return nil, false
	}
	if rec.Key != key {
		// Identifier collision; treat as a miss rather than serve another key.
		return nil, false
	}

	now := f.clock.Now()
	if rec.Entry.IsExpired(now) {
		// Clean up expired entry
		_ = os.Remove(path)
		return nil, false
	}

	rec.Entry.touch(now)
	if err := f.writeRecord(path, rec); err != nil {
		f.logger.Warn("persist access metadata", "key", key.String(), "error", err)
	}
	return rec.Entry.clone(), true
}

// Set stores an entry under key.
func (f *FileStorage) Set(_ context.Context, key Key, entry *Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.keyToPath(key)
	if err := f.writeRecord(path, fileRecord{Key: key, Entry: entry}); err != nil {
		f.logger.Warn("write cache entry", "key", key.String(), "error", err)
	}
}

// Remove deletes the entry stored under key.
func (f *FileStorage) Remove(_ context.Context, key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_ = os.Remove(f.keyToPath(key))
}

// RemoveAll removes every entry, along with temp files from interrupted
// writes, then prunes shard directories left empty. Anything else in the
// directory is left alone.
func (f *FileStorage) RemoveAll(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	shards := make(map[string]bool)
	_ = filepath.WalkDir(f.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if _, ok := f.entryFile(path); !ok {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("remove cache entry", "path", path, "error", err)
		}
		shards[filepath.Dir(path)] = true
		return nil
	})

	// Inner shard directories first, then their parents; non-empty ones stay.
	for dir := range shards {
		_ = os.Remove(dir)
	}
	for dir := range shards {
		_ = os.Remove(filepath.Dir(dir))
	}
}

// RemoveEntries removes every entry depending on table.
func (f *FileStorage) RemoveEntries(_ context.Context, table string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.walk(func(path string, rec fileRecord) {
		if rec.Entry.DependsOn(table) {
			_ = os.Remove(path)
		}
	})
}

// AllEntries returns every readable entry, oldest access first.
func (f *FileStorage) AllEntries(_ context.Context) []KeyedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []KeyedEntry
	f.walk(func(_ string, rec fileRecord) {
		out = append(out, KeyedEntry{Key: rec.Key, Entry: rec.Entry})
	})
	sortByAccess(out)
	return out
}

// Count returns the number of readable entries (including expired).
func (f *FileStorage) Count(_ context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	f.walk(func(string, fileRecord) { n++ })
	return n
}

// walk calls fn for every decodable entry file. Unreadable files are skipped.
func (f *FileStorage) walk(fn func(path string, rec fileRecord)) {
	_ = filepath.WalkDir(f.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		if temp, ok := f.entryFile(path); !ok || temp {
			return nil
		}

		rec, err := readRecord(path)
		if err != nil {
			return nil
		}
		fn(path, rec)
		return nil
	})
}

// entryFile reports whether path has the layout of a file this storage
// writes, ab/cd/abcd....json below the base directory, and whether it is a
// temp file left beside one.
func (f *FileStorage) entryFile(path string) (temp, ok bool) {
	rel, err := filepath.Rel(f.baseDir, path)
	if err != nil {
		return false, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || !isShard(parts[0]) || !isShard(parts[1]) {
		return false, false
	}

	name := parts[2]
	if !strings.HasPrefix(name, parts[0]+parts[1]) {
		return false, false
	}
	switch {
	case strings.HasSuffix(name, entryFileExt):
		return false, true
	case strings.HasSuffix(name, tempFileExt):
		return true, true
	}
	return false, false
}

func isShard(name string) bool {
	return len(name) == 2 && strings.Trim(name, "0123456789abcdef") == ""
}

func readRecord(path string) (fileRecord, error) {
	var rec fileRecord

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", path, err)
	}
	if rec.Entry == nil {
		return rec, fmt.Errorf("decode %s: missing entry", path)
	}
	return rec, nil
}

func (f *FileStorage) writeRecord(path string, rec fileRecord) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), cacheDirPerm); err != nil {
		return fmt.Errorf("create entry directory: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	// Write atomically using a uniquely named temp file
	tempFile := path + "." + uuid.NewString() + tempFileExt
	if err := os.WriteFile(tempFile, data, cacheFilePerm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// keyToPath converts a cache key to a file path.
// It creates a 2-level directory structure from the key identifier to avoid
// too many files in one directory.
func (f *FileStorage) keyToPath(key Key) string {
	id := key.ID()
	return filepath.Join(f.baseDir, id[:2], id[2:4], id+entryFileExt)
}

// Ensure FileStorage implements Storage interface.
var _ Storage = (*FileStorage)(nil)
