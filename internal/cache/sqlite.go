package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/electwix/surrealcache/internal/logging"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    id               TEXT PRIMARY KEY,
    method           TEXT NOT NULL,
    target           TEXT NOT NULL,
    params_hash      TEXT NOT NULL,
    value            BLOB NOT NULL,
    created_at       INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL,
    access_count     INTEGER NOT NULL,
    ttl_ns           INTEGER
);
CREATE INDEX IF NOT EXISTS cache_entries_last_accessed ON cache_entries (last_accessed_at);
CREATE TABLE IF NOT EXISTS cache_entry_tables (
    entry_id   TEXT NOT NULL,
    table_name TEXT NOT NULL,
    PRIMARY KEY (entry_id, table_name)
);
CREATE INDEX IF NOT EXISTS cache_entry_tables_name ON cache_entry_tables (table_name);
`

// SQLiteStorage implements Storage on an embedded SQLite database file.
// Entries survive process restarts. I/O failures are logged and surface as
// misses, never as errors.
type SQLiteStorage struct {
	mu     sync.Mutex
	db     *sql.DB
	clock  Clock
	logger logging.Logger
}

// OpenSQLiteStorage opens (or creates) the SQLite database at path.
func OpenSQLiteStorage(path string, opts ...StorageOption) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// All access is serialized by the storage mutex.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure cache schema: %w", err)
	}

	o := buildStorageOptions(opts)
	return &SQLiteStorage{
		db:     db,
		clock:  o.clock,
		logger: o.logger.With("storage", "sqlite", "path", cleanPath),
	}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get retrieves an entry, dropping it if it has expired.
func (s *SQLiteStorage) Get(ctx context.Context, key Key) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := key.ID()
	row := s.db.QueryRowContext(ctx, `
SELECT method, target, params_hash, value, created_at, last_accessed_at, access_count, ttl_ns
FROM cache_entries WHERE id = ?`, id)
	stored, entry, err := scanEntry(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("read cache entry", "key", key.String(), "error", err)
		}
		return nil, false
	}
	if stored != key {
		return nil, false
	}

	now := s.clock.Now()
	if entry.IsExpired(now) {
		if err := s.deleteEntry(ctx, id); err != nil {
			s.logger.Warn("remove expired cache entry", "key", key.String(), "error", err)
		}
		return nil, false
	}

	tables, err := s.tablesFor(ctx, id)
	if err != nil {
		s.logger.Warn("read cache entry tables", "key", key.String(), "error", err)
		return nil, false
	}
	entry.Tables = tables

	entry.touch(now)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET last_accessed_at = ?, access_count = ? WHERE id = ?`,
		toNanos(entry.LastAccessedAt), entry.AccessCount, id,
	); err != nil {
		s.logger.Warn("persist access metadata", "key", key.String(), "error", err)
	}
	return entry, true
}

// Set stores an entry under key.
func (s *SQLiteStorage) Set(ctx context.Context, key Key, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.set(ctx, key, entry); err != nil {
		s.logger.Warn("write cache entry", "key", key.String(), "error", err)
	}
}

func (s *SQLiteStorage) set(ctx context.Context, key Key, entry *Entry) error {
	id := key.ID()
	value := []byte(entry.Value)
	if value == nil {
		value = []byte("null")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO cache_entries (id, method, target, params_hash, value, created_at, last_accessed_at, access_count, ttl_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    method = excluded.method,
    target = excluded.target,
    params_hash = excluded.params_hash,
    value = excluded.value,
    created_at = excluded.created_at,
    last_accessed_at = excluded.last_accessed_at,
    access_count = excluded.access_count,
    ttl_ns = excluded.ttl_ns`,
		id, key.Method, key.Target, key.ParamsHash, value,
		toNanos(entry.CreatedAt), toNanos(entry.LastAccessedAt), entry.AccessCount, ttlNanos(entry.TTL),
	); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entry_tables WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("clear entry tables: %w", err)
	}
	for _, table := range normalizeTables(entry.Tables) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cache_entry_tables (entry_id, table_name) VALUES (?, ?)`, id, table,
		); err != nil {
			return fmt.Errorf("insert entry table: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Remove deletes the entry stored under key.
func (s *SQLiteStorage) Remove(ctx context.Context, key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteEntry(ctx, key.ID()); err != nil {
		s.logger.Warn("remove cache entry", "key", key.String(), "error", err)
	}
}

// RemoveAll removes every entry.
func (s *SQLiteStorage) RemoveAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exec(ctx,
		`DELETE FROM cache_entry_tables`,
		`DELETE FROM cache_entries`,
	); err != nil {
		s.logger.Warn("clear cache", "error", err)
	}
}

// RemoveEntries removes every entry depending on table.
func (s *SQLiteStorage) RemoveEntries(ctx context.Context, table string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Warn("invalidate table", "table", table, "error", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM cache_entries
WHERE id IN (SELECT entry_id FROM cache_entry_tables WHERE table_name = ?)`, table); err != nil {
		s.logger.Warn("invalidate table", "table", table, "error", err)
		return
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM cache_entry_tables
WHERE entry_id NOT IN (SELECT id FROM cache_entries)`); err != nil {
		s.logger.Warn("invalidate table", "table", table, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.Warn("invalidate table", "table", table, "error", err)
	}
}

// AllEntries returns every entry, oldest access first.
func (s *SQLiteStorage) AllEntries(ctx context.Context) []KeyedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.allEntries(ctx)
	if err != nil {
		s.logger.Warn("list cache entries", "error", err)
		return nil
	}
	return out
}

func (s *SQLiteStorage) allEntries(ctx context.Context) ([]KeyedEntry, error) {
	tables := make(map[string][]string)
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, table_name FROM cache_entry_tables ORDER BY entry_id, table_name`)
	if err != nil {
		return nil, fmt.Errorf("query entry tables: %w", err)
	}
	for rows.Next() {
		var id, table string
		if err := rows.Scan(&id, &table); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan entry table: %w", err)
		}
		tables[id] = append(tables[id], table)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
SELECT id, method, target, params_hash, value, created_at, last_accessed_at, access_count, ttl_ns
FROM cache_entries ORDER BY last_accessed_at`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []KeyedEntry
	for rows.Next() {
		var id string
		key, entry, err := scanEntry(rows, &id)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Tables = tables[id]
		if entry.Tables == nil {
			entry.Tables = []string{}
		}
		out = append(out, KeyedEntry{Key: key, Entry: entry})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByAccess(out)
	return out, nil
}

// Count returns the number of stored entries (including expired).
func (s *SQLiteStorage) Count(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		s.logger.Warn("count cache entries", "error", err)
		return 0
	}
	return n
}

func (s *SQLiteStorage) tablesFor(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name FROM cache_entry_tables WHERE entry_id = ? ORDER BY table_name`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tables := []string{}
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

func (s *SQLiteStorage) deleteEntry(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entry_tables WHERE entry_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) exec(ctx context.Context, stmts ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry reads one cache_entries row. When the query selects the id
// column first, pass a destination for it in prefix.
func scanEntry(row rowScanner, prefix ...any) (Key, *Entry, error) {
	var (
		key                     Key
		value                   []byte
		createdAt, lastAccessed int64
		accessCount             int
		ttl                     sql.NullInt64
	)
	dest := append(prefix, &key.Method, &key.Target, &key.ParamsHash, &value,
		&createdAt, &lastAccessed, &accessCount, &ttl)
	if err := row.Scan(dest...); err != nil {
		return Key{}, nil, err
	}

	entry := &Entry{
		Value:          value,
		CreatedAt:      fromNanos(createdAt),
		LastAccessedAt: fromNanos(lastAccessed),
		AccessCount:    accessCount,
	}
	if ttl.Valid {
		d := time.Duration(ttl.Int64)
		entry.TTL = &d
	}
	return key, entry, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func ttlNanos(ttl *time.Duration) sql.NullInt64 {
	if ttl == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*ttl), Valid: true}
}

// Ensure SQLiteStorage implements Storage interface.
var _ Storage = (*SQLiteStorage)(nil)
