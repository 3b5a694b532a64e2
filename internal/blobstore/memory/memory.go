// Package memory keeps blobs in process memory. It can be seeded from JSON
// files so a fresh instance starts with sample data.
package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

type Store struct {
	mu        sync.RWMutex
	blobs     map[string][]byte
	revs      map[string]int64
	failSaves error
}

func New() *Store {
	return &Store{blobs: make(map[string][]byte), revs: make(map[string]int64)}
}

// NewFromDir seeds the store from <dir>/<collection>.json files, stored under
// "<namespace>:<collection>". Unreadable files and files that are not JSON
// are skipped.
func NewFromDir(dir, namespace string) *Store {
	s := New()
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return s
	}
	for _, path := range matches {
		b, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable seed file", "path", path, "error", err)
			continue
		}
		if !json.Valid(b) {
			slog.Warn("Skipping seed file with invalid JSON", "path", path)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		s.put(namespace+":"+name, b)
	}
	return s
}

func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (s *Store) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves != nil {
		return s.failSaves
	}
	s.put(key, value)
	return nil
}

// Put writes a blob without going through Save, the way another process
// sharing the storage would.
func (s *Store) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value)
}

func (s *Store) put(key string, value []byte) {
	s.blobs[key] = slices.Clone(value)
	s.revs[key]++
}

// Revision counts writes to key, zero if never written.
func (s *Store) Revision(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revs[key], nil
}

// FailSaves makes every subsequent Save return err; nil restores normal
// behavior.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSaves = err
}

// Keys lists stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
