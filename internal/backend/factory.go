package backend

import (
	"context"
	"errors"
	"fmt"

	"dompet/internal/amqp"
	"dompet/internal/blobstore"
	"dompet/internal/blobstore/memory"
	"dompet/internal/blobstore/sqlite"
	"dompet/internal/cache"
	"dompet/internal/log"
)

const defaultCacheSize = 64

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		raw     blobstore.Store
		ready   []func(context.Context) error
		closers []CleanupFunc
	)

	switch config.Type {
	case SQLiteBackend:
		db, err := sqlite.Open(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		raw = db
		ready = append(ready, db.Ping)
		closers = append(closers, db.Close)
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		if config.DataDirectory != "" {
			raw = memory.NewFromDir(config.DataDirectory, config.Namespace)
		} else {
			raw = memory.New()
		}
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", config.DataDirectory)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	size := config.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	lru := cache.NewLRUCache[[]byte](size, config.CacheTTL)

	result := &BackendResult{
		Blobs: blobstore.NewCached(raw, lru),
		Cache: lru,
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, log.Default(log.ComponentAMQP))
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing with in-process notifications",
				log.FieldErrorType, log.ErrorTypeNetwork,
				log.FieldError, err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client", "exchange", config.AMQPExchange)
			result.Notifier = client
			result.Subscriber = client
			ready = append(ready, func(context.Context) error { return client.Ping() })
			closers = append(closers, client.Close)
		}
	}
	if result.Notifier == nil {
		bus := memory.NewBus()
		result.Notifier = bus
		result.Subscriber = bus
	}

	result.Ready = func(ctx context.Context) error {
		var errs []error
		for _, check := range ready {
			if err := check(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	result.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return result, nil
}
