package backend

import (
	"context"
	"time"

	"dompet/internal/blobstore"
	"dompet/internal/cache"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is everything the ledger store needs from the outside world.
type BackendResult struct {
	// Blobs is the blob store wrapped in a read-through cache.
	Blobs blobstore.Store
	// Notifier and Subscriber carry change events between instances. When
	// AMQP is not configured they are the same in-process bus.
	Notifier   blobstore.Notifier
	Subscriber blobstore.Subscriber
	// Cache is the cache behind Blobs, exposed for periodic cleanup.
	Cache *cache.LRUCache[[]byte]
	// Ready reports whether storage and transport are reachable.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Key prefix for every stored collection
	Namespace string

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific: optional directory of seed JSON files
	DataDirectory string

	// Read-through cache
	CacheSize int
	CacheTTL  time.Duration

	// Change notifications; in-process when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
