package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/electwix/surrealcache/internal/logging"
)

// Clock supplies the current time to engines and storage backends.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// StorageOption configures a storage backend.
type StorageOption func(*storageOptions)

type storageOptions struct {
	clock  Clock
	logger logging.Logger
}

// WithStorageClock sets the clock a backend uses for expiry and access times.
func WithStorageClock(c Clock) StorageOption {
	return func(o *storageOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithStorageLogger sets the logger durable backends report I/O failures to.
func WithStorageLogger(l logging.Logger) StorageOption {
	return func(o *storageOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildStorageOptions(opts []StorageOption) storageOptions {
	o := storageOptions{
		clock:  SystemClock,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ComputeKey generates a storage identifier from content using SHA-256.
func ComputeKey(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:16]) // use first 128 bits
}
