package memory

import (
	"context"
	"log/slog"
	"sync"

	"dompet/internal/blobstore"
)

const busBuffer = 64

// Bus fans change events out to every subscriber in the same process.
// Publish never blocks: a subscriber that falls behind loses events.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan blobstore.ChangeEvent
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan blobstore.ChangeEvent)}
}

func (b *Bus) Publish(ctx context.Context, ev blobstore.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.WarnContext(ctx, "Dropping change event for slow subscriber",
				"subscriber", id, "key", ev.Key)
		}
	}
	return nil
}

// Subscribe blocks, calling handler for each event, until ctx is done.
// Handler errors are logged; there is no redelivery in process.
func (b *Bus) Subscribe(ctx context.Context, handler blobstore.Handler) error {
	ch := make(chan blobstore.ChangeEvent, busBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			if err := handler(ctx, ev); err != nil {
				slog.ErrorContext(ctx, "Failed to handle change event",
					"error", err, "key", ev.Key, "origin", ev.Origin)
			}
		}
	}
}

// Subscribers reports how many subscriptions are active.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
