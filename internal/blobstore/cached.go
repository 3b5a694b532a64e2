package blobstore

import (
	"context"
	"errors"
	"slices"

	"dompet/internal/cache"
)

// Cached is a read-through, write-through cache in front of another Store.
type Cached struct {
	next  Store
	cache cache.Cache[[]byte]
}

func NewCached(next Store, c cache.Cache[[]byte]) *Cached {
	return &Cached{next: next, cache: c}
}

func (c *Cached) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v), true, nil
	}
	v, ok, err := c.next.Load(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	c.cache.Set(key, slices.Clone(v))
	return v, true, nil
}

func (c *Cached) Save(ctx context.Context, key string, value []byte) error {
	if err := c.next.Save(ctx, key, value); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.cache.Set(key, slices.Clone(value))
	return nil
}

// Invalidate forgets the cached copy so the next Load reads through.
func (c *Cached) Invalidate(key string) {
	c.cache.Delete(key)
}

// Revision asks the wrapped store directly; revisions are never cached.
func (c *Cached) Revision(ctx context.Context, key string) (int64, error) {
	if r, ok := c.next.(Revisioner); ok {
		return r.Revision(ctx, key)
	}
	return 0, errors.ErrUnsupported
}
