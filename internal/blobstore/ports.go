// Package blobstore defines the key-value persistence used for ledger
// snapshots and the change notifications exchanged between instances that
// share the same storage.
package blobstore

import (
	"context"
	"time"
)

// Ports for outbound adapters.
type (
	// Store persists opaque JSON blobs by key.
	Store interface {
		// Load reports ok=false when nothing is stored under key.
		Load(ctx context.Context, key string) (value []byte, ok bool, err error)
		Save(ctx context.Context, key string, value []byte) error
	}

	// Notifier announces that a key was rewritten.
	Notifier interface {
		Publish(ctx context.Context, ev ChangeEvent) error
	}

	// Subscriber delivers change events to handler until ctx is done.
	Subscriber interface {
		Subscribe(ctx context.Context, handler Handler) error
	}

	// Invalidator drops any cached copy of key.
	Invalidator interface {
		Invalidate(key string)
	}

	// Revisioner reports how many times key has been saved, zero if never.
	// Backends that do not count saves return errors.ErrUnsupported.
	Revisioner interface {
		Revision(ctx context.Context, key string) (int64, error)
	}
)

// Handler processes one change event. A returned error asks the transport to
// redeliver when it can.
type Handler func(ctx context.Context, ev ChangeEvent) error

// ChangeEvent tells other instances that the blob under Key changed.
type ChangeEvent struct {
	Key    string    `json:"key"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, ChangeEvent) error { return nil }
