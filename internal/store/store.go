// Package store holds the live ledger state in memory and mirrors every
// committed change to a blob store.
//
// The in-memory state is authoritative. Persistence happens after each
// commit; a failed write is reported to the caller but never rolls back the
// state that was already committed.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"dompet/internal/blobstore"
	"dompet/internal/ledger"
	"dompet/internal/log"
)

// DefaultNamespace prefixes every collection key unless configured otherwise.
const DefaultNamespace = "dompet"

// ErrFlush is matched by every *FlushError.
var ErrFlush = errors.New("flush to storage failed")

// FlushError reports keys that could not be written after a commit.
type FlushError struct {
	Keys []string
	Err  error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush %s: %v", strings.Join(e.Keys, ", "), e.Err)
}

func (e *FlushError) Unwrap() []error {
	return []error{ErrFlush, e.Err}
}

type Options struct {
	// Namespace prefixes collection keys; empty means DefaultNamespace.
	Namespace string
	// Origin identifies this instance in change events; empty picks a random one.
	Origin   string
	Notifier blobstore.Notifier
	Logger   *log.Logger
}

type Store struct {
	mu    sync.RWMutex
	state ledger.State
	// gens counts local commits per collection so a reload that read
	// storage before a commit can tell it is stale.
	gens map[string]uint64
	// seen is the newest storage revision applied from a change event.
	seen map[string]int64

	blobs     blobstore.Store
	notifier  blobstore.Notifier
	namespace string
	origin    string
	logger    *log.Logger
	reloads   singleflight.Group
}

func New(blobs blobstore.Store, opts Options) *Store {
	s := &Store{
		blobs:     blobs,
		notifier:  opts.Notifier,
		namespace: opts.Namespace,
		origin:    opts.Origin,
		logger:    opts.Logger,
		gens:      make(map[string]uint64),
		seen:      make(map[string]int64),
	}
	if s.namespace == "" {
		s.namespace = DefaultNamespace
	}
	if s.origin == "" {
		s.origin = uuid.NewString()
	}
	if s.notifier == nil {
		s.notifier = blobstore.NopNotifier{}
	}
	if s.logger == nil {
		s.logger = log.Default(log.ComponentStore)
	}
	return s
}

// Key is the blob key for col.
func (s *Store) Key(col ledger.Collection) string {
	return s.namespace + ":" + col.Name
}

func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) collectionForKey(key string) (ledger.Collection, bool) {
	for _, col := range ledger.Collections {
		if s.Key(col) == key {
			return col, true
		}
	}
	return ledger.Collection{}, false
}

// Load replaces the in-memory state with what is in storage. Collections
// that are absent or unreadable start out empty.
func (s *Store) Load(ctx context.Context) error {
	parts := make([]ledger.State, len(ledger.Collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, col := range ledger.Collections {
		g.Go(func() error {
			st, err := s.read(gctx, col)
			if err != nil {
				return err
			}
			parts[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	var next ledger.State
	for i, col := range ledger.Collections {
		assign(&next, parts[i], col.Change)
	}

	s.mu.Lock()
	s.state = next
	s.touch(ledger.ChangeAll)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Ledger loaded",
		log.FieldOperation, log.OpLoad,
		"wallets", len(next.Wallets),
		"transactions", len(next.Transactions),
		"categories", len(next.Categories),
		"goals", len(next.Goals))
	return nil
}

// read loads and decodes one collection. Only storage errors are returned;
// malformed content degrades to an empty collection.
func (s *Store) read(ctx context.Context, col ledger.Collection) (ledger.State, error) {
	key := s.Key(col)
	b, ok, err := s.blobs.Load(ctx, key)
	if err != nil {
		return ledger.State{}, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return ledger.State{}, nil
	}

	d, err := decodeCollection(col, b)
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding malformed collection",
			log.FieldKey, key,
			log.FieldCollection, col.Name,
			log.FieldErrorType, log.ErrorTypeMalformed,
			log.FieldError, err)
		return ledger.State{}, nil
	}
	for _, w := range d.warnings {
		s.logger.WarnContext(ctx, "Normalized stored record",
			log.FieldKey, key,
			log.FieldCollection, col.Name,
			"detail", w)
	}
	return d.state, nil
}

// Snapshot returns a copy of the current state that callers may keep.
func (s *Store) Snapshot() ledger.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Apply commits ops atomically and then writes every touched collection.
//
// A rejected operation leaves the state untouched and returns its error. A
// failed write returns a *FlushError together with the committed state.
func (s *Store) Apply(ctx context.Context, ops ...ledger.Operation) (ledger.State, error) {
	s.mu.Lock()
	next, change, err := ledger.ApplyAll(s.state, ops...)
	if err != nil {
		current := s.state.Clone()
		s.mu.Unlock()
		return current, err
	}
	s.state = next
	s.touch(change)

	// Writes stay under the lock so storage sees commits in order.
	flushed, flushErr := s.flush(ctx, next, change)
	snapshot := next.Clone()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Ledger operation applied",
		log.FieldOperation, opNames(ops),
		log.FieldChange, change.String())

	for _, key := range flushed {
		s.publish(ctx, key)
	}
	if flushErr != nil {
		s.logger.ErrorContext(ctx, "Failed to persist committed state",
			log.FieldOperation, log.OpFlush,
			log.FieldErrorType, log.ErrorTypeStorage,
			log.FieldError, flushErr)
		return snapshot, flushErr
	}
	return snapshot, nil
}

// touch marks the collections in change as locally modified. Callers hold
// s.mu.
func (s *Store) touch(change ledger.Change) {
	for _, col := range ledger.Collections {
		if change.Has(col.Change) {
			s.gens[col.Name]++
		}
	}
}

func opNames(ops []ledger.Operation) string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name()
	}
	return strings.Join(names, ", ")
}

// Flush writes every collection, e.g. after seeding or to retry a failed
// write.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	flushed, err := s.flush(ctx, s.state, ledger.ChangeAll)
	s.mu.Unlock()
	for _, key := range flushed {
		s.publish(ctx, key)
	}
	return err
}

func (s *Store) flush(ctx context.Context, st ledger.State, change ledger.Change) ([]string, error) {
	var (
		saved  []string
		failed []string
		errs   []error
	)
	for _, col := range ledger.Collections {
		if !change.Has(col.Change) {
			continue
		}
		key := s.Key(col)
		b, err := encodeCollection(col, st)
		if err == nil {
			err = s.blobs.Save(ctx, key, b)
		}
		if err != nil {
			failed = append(failed, key)
			errs = append(errs, err)
			continue
		}
		saved = append(saved, key)
	}
	if len(errs) > 0 {
		return saved, &FlushError{Keys: failed, Err: errors.Join(errs...)}
	}
	return saved, nil
}

func (s *Store) publish(ctx context.Context, key string) {
	ev := blobstore.ChangeEvent{Key: key, Origin: s.origin, At: time.Now().UTC()}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish change event",
			log.FieldOperation, log.OpPublish,
			log.FieldKey, key,
			log.FieldError, err)
	}
}

// HandleChange reloads the collection named by a change event from another
// instance. Events from this instance, for unknown keys, or for a revision
// already loaded are ignored.
func (s *Store) HandleChange(ctx context.Context, ev blobstore.ChangeEvent) error {
	if ev.Origin == s.origin {
		return nil
	}
	col, ok := s.collectionForKey(ev.Key)
	if !ok {
		s.logger.DebugContext(ctx, "Ignoring change event for foreign key", log.FieldKey, ev.Key)
		return nil
	}
	rev, tracked := s.revision(ctx, ev.Key)
	if tracked {
		s.mu.RLock()
		seen := s.seen[ev.Key]
		s.mu.RUnlock()
		if rev <= seen {
			s.logger.DebugContext(ctx, "Change already loaded",
				log.FieldKey, ev.Key,
				"revision", rev)
			return nil
		}
	}
	if inv, ok := s.blobs.(blobstore.Invalidator); ok {
		inv.Invalidate(ev.Key)
	}
	_, err, _ := s.reloads.Do(ev.Key, func() (any, error) {
		return nil, s.reload(ctx, col, rev, tracked)
	})
	return err
}

// Reload replaces one collection with its stored contents unless a local
// commit touched it while storage was being read.
func (s *Store) Reload(ctx context.Context, col ledger.Collection) error {
	return s.reload(ctx, col, 0, false)
}

func (s *Store) reload(ctx context.Context, col ledger.Collection, rev int64, tracked bool) error {
	s.mu.RLock()
	gen := s.gens[col.Name]
	s.mu.RUnlock()

	st, err := s.read(ctx, col)
	if err != nil {
		return fmt.Errorf("reload %s: %w", col.Name, err)
	}

	s.mu.Lock()
	if s.gens[col.Name] != gen {
		s.mu.Unlock()
		// The local commit already wrote this collection over what was read.
		s.logger.WarnContext(ctx, "Discarding reload overtaken by a local commit",
			log.FieldOperation, log.OpReload,
			log.FieldCollection, col.Name)
		return nil
	}
	assign(&s.state, st, col.Change)
	if key := s.Key(col); tracked && rev > s.seen[key] {
		s.seen[key] = rev
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Collection reloaded from storage",
		log.FieldOperation, log.OpReload,
		log.FieldCollection, col.Name)
	return nil
}

// revision returns the stored revision of key when the backend counts saves.
func (s *Store) revision(ctx context.Context, key string) (int64, bool) {
	r, ok := s.blobs.(blobstore.Revisioner)
	if !ok {
		return 0, false
	}
	rev, err := r.Revision(ctx, key)
	if err != nil {
		if !errors.Is(err, errors.ErrUnsupported) {
			s.logger.WarnContext(ctx, "Failed to read blob revision",
				log.FieldKey, key,
				log.FieldError, err)
		}
		return 0, false
	}
	return rev, true
}

// Watch applies change events from sub until ctx is done.
func (s *Store) Watch(ctx context.Context, sub blobstore.Subscriber) error {
	return sub.Subscribe(ctx, s.HandleChange)
}
