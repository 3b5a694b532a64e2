package store

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/blobstore"
	"dompet/internal/blobstore/memory"
	"dompet/internal/cache"
	"dompet/internal/core"
	"dompet/internal/ledger"
	"dompet/internal/log"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: &bytes.Buffer{}, Component: log.ComponentStore})
}

func newStore(blobs blobstore.Store, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(blobs, opts)
}

func sampleOps() []ledger.Operation {
	return []ledger.Operation{
		ledger.CreateWallet{Wallet: core.Wallet{ID: "w1", Name: "Cash", Balance: decimal.NewFromInt(100000), Image: "cash.png"}},
		ledger.CreateWallet{Wallet: core.Wallet{ID: "w2", Name: "Bank", Balance: decimal.NewFromInt(0)}},
		ledger.CreateCategory{Category: core.Category{ID: "food", Name: "Food", Icon: "utensils"}},
		ledger.CreateCategory{Category: core.Category{ID: "snacks", Name: "Snacks", ParentID: "food"}},
		ledger.CreateTransaction{Tx: core.Transaction{
			ID: "t1", Description: "salary", Amount: decimal.NewFromInt(50000),
			Type: core.Income, WalletID: "w1", Date: core.NewDate(2024, 1, 2),
		}},
		ledger.CreateTransaction{Tx: core.Transaction{
			ID: "t2", Amount: decimal.RequireFromString("12500.50"),
			Type: core.Expense, WalletID: "w2", Date: core.NewDate(2024, 1, 3), CategoryID: "snacks",
		}},
		ledger.CreateGoal{Goal: core.Goal{
			ID: "g1", Name: "Laptop", TargetAmount: decimal.NewFromInt(1200000),
			StartDate: core.NewDate(2024, 1, 1), EndDate: core.NewDate(2024, 1, 29),
		}},
	}
}

func encodeAll(t *testing.T, st ledger.State) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, col := range ledger.Collections {
		b, err := encodeCollection(col, st)
		require.NoError(t, err)
		out[col.Name] = string(b)
	}
	return out
}

func TestLoadEmptyStorage(t *testing.T) {
	s := newStore(memory.New(), Options{})
	require.NoError(t, s.Load(context.Background()))
	snap := s.Snapshot()
	assert.Empty(t, snap.Wallets)
	assert.Empty(t, snap.Transactions)
	assert.Empty(t, snap.Categories)
	assert.Empty(t, snap.Goals)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	s := newStore(blobs, Options{})
	require.NoError(t, s.Load(ctx))

	committed, err := s.Apply(ctx, sampleOps()...)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"dompet:categories", "dompet:goals", "dompet:transactions", "dompet:wallets"},
		blobs.Keys())

	reloaded := newStore(blobs, Options{})
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, encodeAll(t, committed), encodeAll(t, reloaded.Snapshot()))

	w, ok := reloaded.Snapshot().Wallet("w2")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("-12500.50").Equal(w.Balance))
}

func TestNamespaceKeys(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	s := newStore(blobs, Options{Namespace: "tab"})
	_, err := s.Apply(ctx, ledger.CreateWallet{Wallet: core.Wallet{Name: "Cash"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"tab:wallets"}, blobs.Keys())
}

func TestLoadMalformedCollectionIsEmpty(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	blobs.Put("dompet:wallets", []byte(`{not json`))
	blobs.Put("dompet:goals", []byte(`[{"id":"g1","name":"No dates","targetAmount":10}]`))
	blobs.Put("dompet:transactions", []byte(`[{"id":"t1","amount":5,"type":"income","walletId":"w1","date":"2024-01-01"}]`))

	s := newStore(blobs, Options{})
	require.NoError(t, s.Load(ctx))
	snap := s.Snapshot()
	assert.Empty(t, snap.Wallets)
	assert.Empty(t, snap.Goals)
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, core.NotAvailable, ledger.WalletName(snap.Wallets, snap.Transactions[0].WalletID))
}

func TestLoadLegacyVariants(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	blobs.Put("dompet:wallets", []byte(`[{"id":1700000000000,"name":"Cash","balance":150000,"image":null}]`))
	blobs.Put("dompet:transactions", []byte(`[
		{"id":1,"description":"coffee","amount":-20000,"walletId":1700000000000,"walletName":"Cash","date":"2024-01-05T08:30:00.000Z"},
		{"id":"2","amount":"30000","type":"income","walletId":"1700000000000","date":"2024-01-06","categoryId":null}
	]`))
	blobs.Put("dompet:categories", []byte(`[{"id":"c1","name":"Food","icon":"rocket"},{"id":"c2","name":"Fuel","parentId":null}]`))

	s := newStore(blobs, Options{})
	require.NoError(t, s.Load(ctx))
	snap := s.Snapshot()

	require.Len(t, snap.Wallets, 1)
	assert.Equal(t, "1700000000000", snap.Wallets[0].ID)
	assert.Empty(t, snap.Wallets[0].Image)

	require.Len(t, snap.Transactions, 2)
	first := snap.Transactions[0]
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, core.Expense, first.Type)
	assert.True(t, decimal.NewFromInt(20000).Equal(first.Amount))
	assert.Equal(t, core.NewDate(2024, 1, 5), first.Date)
	assert.Equal(t, "1700000000000", first.WalletID)
	assert.Empty(t, snap.Transactions[1].CategoryID)

	require.Len(t, snap.Categories, 2)
	assert.Empty(t, snap.Categories[0].Icon)
	assert.Empty(t, snap.Categories[1].ParentID)

	// the normalized ledger still satisfies the balance rules
	next, err := s.Apply(ctx, ledger.DeleteTransaction{ID: "1"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(170000).Equal(next.Wallets[0].Balance))
}

func TestLoadInvalidTypeDiscardsCollection(t *testing.T) {
	blobs := memory.New()
	blobs.Put("dompet:transactions", []byte(`[{"id":"t1","amount":5,"type":"transfer","walletId":"w1","date":"2024-01-01"}]`))
	s := newStore(blobs, Options{})
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Snapshot().Transactions)
}

type brokenStore struct{ err error }

func (b brokenStore) Load(context.Context, string) ([]byte, bool, error) { return nil, false, b.err }
func (b brokenStore) Save(context.Context, string, []byte) error         { return b.err }

func TestLoadStorageErrorPropagates(t *testing.T) {
	down := errors.New("connection refused")
	s := newStore(brokenStore{err: down}, Options{})
	err := s.Load(context.Background())
	require.ErrorIs(t, err, down)
}

func TestApplyRejectedOperationDoesNotFlush(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	s := newStore(blobs, Options{})

	_, err := s.Apply(ctx, ledger.CreateTransaction{Tx: core.Transaction{
		Amount: decimal.NewFromInt(1), Type: core.Income, WalletID: "missing", Date: core.NewDate(2024, 1, 1),
	}})
	require.ErrorIs(t, err, ledger.ErrUnknownWallet)
	assert.True(t, core.IsValidation(err))
	assert.Empty(t, blobs.Keys())
}

func TestFlushFailureKeepsCommittedState(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	s := newStore(blobs, Options{})
	_, err := s.Apply(ctx, ledger.CreateWallet{Wallet: core.Wallet{ID: "w1", Name: "Cash", Balance: decimal.NewFromInt(10)}})
	require.NoError(t, err)

	quota := errors.New("quota exceeded")
	blobs.FailSaves(quota)
	st, err := s.Apply(ctx, ledger.CreateTransaction{Tx: core.Transaction{
		ID: "t1", Amount: decimal.NewFromInt(5), Type: core.Income, WalletID: "w1", Date: core.NewDate(2024, 1, 1),
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFlush)
	assert.ErrorIs(t, err, quota)

	var fe *FlushError
	require.ErrorAs(t, err, &fe)
	assert.ElementsMatch(t, []string{"dompet:wallets", "dompet:transactions"}, fe.Keys)

	require.Len(t, st.Transactions, 1)
	assert.Len(t, s.Snapshot().Transactions, 1)
	w, _ := s.Snapshot().Wallet("w1")
	assert.True(t, decimal.NewFromInt(15).Equal(w.Balance))

	// once storage recovers a full flush mirrors memory again
	blobs.FailSaves(nil)
	require.NoError(t, s.Flush(ctx))
	again := newStore(blobs, Options{})
	require.NoError(t, again.Load(ctx))
	assert.Len(t, again.Snapshot().Transactions, 1)
}

func TestSnapshotIsIsolated(t *testing.T) {
	ctx := context.Background()
	s := newStore(memory.New(), Options{})
	_, err := s.Apply(ctx, ledger.CreateWallet{Wallet: core.Wallet{ID: "w1", Name: "Cash"}})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Wallets[0].Name = "changed"
	w, _ := s.Snapshot().Wallet("w1")
	assert.Equal(t, "Cash", w.Name)
}

type recordingNotifier struct {
	events []blobstore.ChangeEvent
	err    error
}

func (r *recordingNotifier) Publish(_ context.Context, ev blobstore.ChangeEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestApplyPublishesFlushedKeys(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{err: errors.New("broker down")}
	s := newStore(memory.New(), Options{Notifier: n, Origin: "tab-a"})

	_, err := s.Apply(ctx, ledger.CreateWallet{Wallet: core.Wallet{ID: "w1", Name: "Cash"}})
	require.NoError(t, err, "publish failures must not fail the mutation")
	require.Len(t, n.events, 1)
	assert.Equal(t, "dompet:wallets", n.events[0].Key)
	assert.Equal(t, "tab-a", n.events[0].Origin)
}

func TestHandleChangeReloadsCollection(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	backing.Put("dompet:wallets", []byte(`[]`))
	newCached := func() *blobstore.Cached {
		return blobstore.NewCached(backing, cache.NewLRUCache[[]byte](16, time.Hour))
	}

	a := newStore(newCached(), Options{Origin: "a"})
	b := newStore(newCached(), Options{Origin: "b"})
	require.NoError(t, a.Load(ctx))
	require.NoError(t, b.Load(ctx))

	_, err := a.Apply(ctx, ledger.CreateWallet{Wallet: core.Wallet{ID: "w1", Name: "Cash"}})
	require.NoError(t, err)
	// b populated its cache before a wrote, so a plain reload would be stale
	require.NoError(t, b.Reload(ctx, ledger.Collections[0]))
	assert.Empty(t, b.Snapshot().Wallets)

	ev := blobstore.ChangeEvent{Key: "dompet:wallets", Origin: "a"}
	require.NoError(t, b.HandleChange(ctx, ev))
	require.Len(t, b.Snapshot().Wallets, 1)

	// own events and unrelated keys are ignored
	require.NoError(t, a.HandleChange(ctx, ev))
	require.NoError(t, b.HandleChange(ctx, blobstore.ChangeEvent{Key: "other:wallets", Origin: "a"}))
}

func TestWatchOverBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backing := memory.New()
	bus := memory.NewBus()
	a := newStore(backing, Options{Origin: "a", Notifier: bus})
	b := newStore(backing, Options{Origin: "b", Notifier: bus})
	require.NoError(t, b.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- b.Watch(ctx, bus) }()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, time.Millisecond)

	_, err := a.Apply(ctx,
		ledger.CreateWallet{Wallet: core.Wallet{ID: "w1", Name: "Cash", Balance: decimal.NewFromInt(10)}},
		ledger.CreateTransaction{Tx: core.Transaction{
			ID: "t1", Amount: decimal.NewFromInt(5), Type: core.Expense, WalletID: "w1", Date: core.NewDate(2024, 1, 1),
		}},
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := b.Snapshot()
		return len(snap.Wallets) == 1 && len(snap.Transactions) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

// pausingStore holds the next Load of key after reading it until release is
// closed.
type pausingStore struct {
	*memory.Store
	key     string
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newPausingStore(key string) *pausingStore {
	return &pausingStore{
		Store:   memory.New(),
		key:     key,
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *pausingStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := p.Store.Load(ctx, key)
	if key == p.key && p.armed.CompareAndSwap(true, false) {
		close(p.read)
		<-p.release
	}
	return v, ok, err
}

func TestReloadOvertakenByLocalCommitIsDiscarded(t *testing.T) {
	ctx := context.Background()
	blobs := newPausingStore("dompet:transactions")
	s := newStore(blobs, Options{Origin: "a"})
	_, err := s.Apply(ctx,
		ledger.CreateWallet{Wallet: core.Wallet{ID: "w1", Name: "Cash", Balance: decimal.NewFromInt(100)}},
		ledger.CreateTransaction{Tx: core.Transaction{
			ID: "t1", Amount: decimal.NewFromInt(10), Type: core.Income, WalletID: "w1", Date: core.NewDate(2024, 1, 1),
		}},
	)
	require.NoError(t, err)

	blobs.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		done <- s.HandleChange(ctx, blobstore.ChangeEvent{Key: "dompet:transactions", Origin: "b"})
	}()
	<-blobs.read

	_, err = s.Apply(ctx, ledger.CreateTransaction{Tx: core.Transaction{
		ID: "t2", Amount: decimal.NewFromInt(5), Type: core.Income, WalletID: "w1", Date: core.NewDate(2024, 1, 2),
	}})
	require.NoError(t, err)
	close(blobs.release)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	require.Len(t, snap.Transactions, 2)
	w, _ := snap.Wallet("w1")
	assert.True(t, decimal.NewFromInt(115).Equal(w.Balance), "balance %s", w.Balance)
	assert.Empty(t, ledger.Reconcile(map[string]decimal.Decimal{"w1": decimal.NewFromInt(100)}, snap))

	// storage still holds both transactions
	again := newStore(blobs.Store, Options{})
	require.NoError(t, again.Load(ctx))
	assert.Len(t, again.Snapshot().Transactions, 2)
}

// countingLoads counts reads that reach the backing store.
type countingLoads struct {
	*memory.Store
	loads atomic.Int32
}

func (c *countingLoads) Load(ctx context.Context, key string) ([]byte, bool, error) {
	c.loads.Add(1)
	return c.Store.Load(ctx, key)
}

func TestHandleChangeSkipsLoadedRevision(t *testing.T) {
	ctx := context.Background()
	blobs := &countingLoads{Store: memory.New()}
	s := newStore(blobs, Options{Origin: "b"})
	ev := blobstore.ChangeEvent{Key: "dompet:wallets", Origin: "a"}

	blobs.Put("dompet:wallets", []byte(`[{"id":"w1","name":"Cash","balance":"10"}]`))
	require.NoError(t, s.HandleChange(ctx, ev))
	require.Len(t, s.Snapshot().Wallets, 1)
	assert.EqualValues(t, 1, blobs.loads.Load())

	// a redelivered event for the same revision does not read again
	require.NoError(t, s.HandleChange(ctx, ev))
	assert.EqualValues(t, 1, blobs.loads.Load())

	blobs.Put("dompet:wallets", []byte(`[]`))
	require.NoError(t, s.HandleChange(ctx, ev))
	assert.Empty(t, s.Snapshot().Wallets)
	assert.EqualValues(t, 2, blobs.loads.Load())
}
