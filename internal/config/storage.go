package config

import (
	"fmt"
	"io"

	"github.com/electwix/surrealcache/internal/cache"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStorage constructs the backend sc describes. The returned closer
// releases it and is always non-nil.
func OpenStorage(sc StorageConfig, opts ...cache.StorageOption) (cache.Storage, io.Closer, error) {
	sc, err := NormalizeStorage(sc)
	if err != nil {
		return nil, nil, err
	}

	switch sc.Kind {
	case StorageFile:
		fs, err := cache.NewFileStorage(sc.Path, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open file storage: %w", err)
		}
		return fs, nopCloser{}, nil
	case StorageSQLite:
		db, err := cache.OpenSQLiteStorage(sc.Path, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return db, db, nil
	default:
		return cache.NewMemoryStorage(opts...), nopCloser{}, nil
	}
}
