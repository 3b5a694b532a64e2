package ledger

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/core"
)

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func tx(id, wallet string, v int64, typ core.TxType) core.Transaction {
	return core.Transaction{
		ID:          id,
		Description: "test " + id,
		Amount:      amount(v),
		Type:        typ,
		WalletID:    wallet,
		Date:        core.NewDate(2024, 1, 15),
	}
}

func seed() State {
	return State{
		Wallets: []core.Wallet{
			{ID: "w1", Name: "Cash", Balance: amount(100000)},
			{ID: "w2", Name: "Bank", Balance: amount(500000)},
		},
	}
}

func mustApply(t *testing.T, s State, ops ...Operation) State {
	t.Helper()
	next, _, err := ApplyAll(s, ops...)
	require.NoError(t, err)
	return next
}

func balance(t *testing.T, s State, id string) decimal.Decimal {
	t.Helper()
	w, ok := s.Wallet(id)
	require.True(t, ok, "wallet %s missing", id)
	return w.Balance
}

func TestCreateThenEditScenario(t *testing.T) {
	s := mustApply(t, seed(), CreateTransaction{Tx: tx("t1", "w1", 50000, core.Income)})
	assert.True(t, amount(150000).Equal(balance(t, s, "w1")))

	edited := tx("t1", "w1", 20000, core.Expense)
	s = mustApply(t, s, UpdateTransaction{Tx: edited})
	assert.True(t, amount(80000).Equal(balance(t, s, "w1")), "got %s", balance(t, s, "w1"))
	assert.Len(t, s.Transactions, 1)
}

func TestCreateTransaction(t *testing.T) {
	t.Run("prepends and assigns id", func(t *testing.T) {
		s := mustApply(t, seed(), CreateTransaction{Tx: tx("t1", "w1", 1000, core.Expense)})
		fresh := tx("", "w1", 2000, core.Expense)
		s, changed, err := Apply(s, CreateTransaction{Tx: fresh})
		require.NoError(t, err)
		assert.Equal(t, ChangeWallets|ChangeTransactions, changed)
		require.Len(t, s.Transactions, 2)
		assert.NotEmpty(t, s.Transactions[0].ID)
		assert.Equal(t, "t1", s.Transactions[1].ID)
		assert.True(t, amount(97000).Equal(balance(t, s, "w1")))
	})

	t.Run("unknown wallet is a validation error", func(t *testing.T) {
		orig := seed()
		s, changed, err := Apply(orig, CreateTransaction{Tx: tx("t1", "nope", 1000, core.Expense)})
		require.ErrorIs(t, err, ErrUnknownWallet)
		assert.True(t, core.IsValidation(err))
		assert.Zero(t, changed)
		assert.Equal(t, orig, s)
	})

	t.Run("invalid input rejected without mutation", func(t *testing.T) {
		bad := tx("t1", "w1", 0, core.Expense)
		s, _, err := Apply(seed(), CreateTransaction{Tx: bad})
		require.ErrorIs(t, err, core.ErrInvalidAmount)
		assert.Empty(t, s.Transactions)
		assert.True(t, amount(100000).Equal(balance(t, s, "w1")))
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := mustApply(t, seed(), CreateTransaction{Tx: tx("t1", "w1", 1000, core.Expense)})
		_, _, err := Apply(s, CreateTransaction{Tx: tx("t1", "w1", 1000, core.Expense)})
		require.ErrorIs(t, err, ErrDuplicateID)
	})
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	orig := mustApply(t, seed(), CreateTransaction{Tx: tx("t1", "w1", 1000, core.Expense)})
	snapshot := orig.Clone()

	_ = mustApply(t, orig,
		UpdateTransaction{Tx: tx("t1", "w2", 4000, core.Income)},
		DeleteWallet{ID: "w1"},
	)
	assert.Equal(t, snapshot, orig)
}

func TestUpdateTransaction(t *testing.T) {
	base := mustApply(t, seed(),
		CreateTransaction{Tx: tx("t1", "w1", 30000, core.Expense)},
		CreateTransaction{Tx: tx("t2", "w1", 1000, core.Income)},
	)
	require.True(t, amount(71000).Equal(balance(t, base, "w1")))

	t.Run("amount change same wallet counts once", func(t *testing.T) {
		s := mustApply(t, base, UpdateTransaction{Tx: tx("t1", "w1", 45000, core.Expense)})
		assert.True(t, amount(56000).Equal(balance(t, s, "w1")), "got %s", balance(t, s, "w1"))
	})

	t.Run("repeated edits use the stored basis", func(t *testing.T) {
		s := mustApply(t, base,
			UpdateTransaction{Tx: tx("t1", "w1", 10000, core.Expense)},
			UpdateTransaction{Tx: tx("t1", "w1", 20000, core.Expense)},
			UpdateTransaction{Tx: tx("t1", "w1", 20000, core.Expense)},
		)
		assert.True(t, amount(81000).Equal(balance(t, s, "w1")), "got %s", balance(t, s, "w1"))
	})

	t.Run("wallet move keeps total", func(t *testing.T) {
		s := mustApply(t, base, UpdateTransaction{Tx: tx("t1", "w2", 30000, core.Expense)})
		assert.True(t, amount(101000).Equal(balance(t, s, "w1")))
		assert.True(t, amount(470000).Equal(balance(t, s, "w2")))
		assert.True(t, TotalBalance(base.Wallets).Equal(TotalBalance(s.Wallets)))
	})

	t.Run("position preserved", func(t *testing.T) {
		s := mustApply(t, base, UpdateTransaction{Tx: tx("t1", "w1", 5, core.Income)})
		assert.Equal(t, "t2", s.Transactions[0].ID)
		assert.Equal(t, "t1", s.Transactions[1].ID)
	})

	t.Run("missing transaction", func(t *testing.T) {
		_, _, err := Apply(base, UpdateTransaction{Tx: tx("zz", "w1", 5, core.Income)})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("move to unknown wallet", func(t *testing.T) {
		_, _, err := Apply(base, UpdateTransaction{Tx: tx("t1", "ghost", 5, core.Income)})
		require.ErrorIs(t, err, ErrUnknownWallet)
	})

	t.Run("old wallet gone is a no-op on that side", func(t *testing.T) {
		s := base.Clone()
		// Simulate a dangling reference left by an older data variant.
		s.Transactions[0].WalletID = "gone"
		s = mustApply(t, s, UpdateTransaction{Tx: tx("t2", "w2", 1000, core.Income)})
		assert.True(t, amount(501000).Equal(balance(t, s, "w2")))
	})
}

func TestDeleteTransaction(t *testing.T) {
	s := mustApply(t, seed(), CreateTransaction{Tx: tx("t1", "w1", 30000, core.Expense)})
	s, changed, err := Apply(s, DeleteTransaction{ID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, ChangeWallets|ChangeTransactions, changed)
	assert.Empty(t, s.Transactions)
	assert.True(t, amount(100000).Equal(balance(t, s, "w1")))

	_, _, err = Apply(s, DeleteTransaction{ID: "t1"})
	require.ErrorIs(t, err, ErrNotFound)

	t.Run("dangling wallet", func(t *testing.T) {
		s := State{Transactions: []core.Transaction{tx("t9", "gone", 10, core.Income)}}
		s, changed, err := Apply(s, DeleteTransaction{ID: "t9"})
		require.NoError(t, err)
		assert.Equal(t, ChangeTransactions, changed)
		assert.Empty(t, s.Transactions)
	})
}

func TestEditThenDeleteSameTick(t *testing.T) {
	base := mustApply(t, seed(), CreateTransaction{Tx: tx("t1", "w1", 30000, core.Expense)})
	batched := mustApply(t, base,
		UpdateTransaction{Tx: tx("t1", "w2", 5000, core.Income)},
		DeleteTransaction{ID: "t1"},
	)
	stepped := mustApply(t, base, UpdateTransaction{Tx: tx("t1", "w2", 5000, core.Income)})
	stepped = mustApply(t, stepped, DeleteTransaction{ID: "t1"})
	assert.Equal(t, stepped, batched)
	assert.True(t, amount(100000).Equal(balance(t, batched, "w1")))
	assert.True(t, amount(500000).Equal(balance(t, batched, "w2")))
}

func TestApplyAllIsAtomic(t *testing.T) {
	base := seed()
	s, changed, err := ApplyAll(base,
		CreateTransaction{Tx: tx("t1", "w1", 1000, core.Expense)},
		DeleteTransaction{ID: "missing"},
	)
	require.Error(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, base, s)
	assert.Contains(t, err.Error(), "delete transaction")
}

func TestWalletOperations(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		s, changed, err := Apply(State{}, CreateWallet{Wallet: core.Wallet{Name: "Cash", Balance: decimal.Zero}})
		require.NoError(t, err)
		assert.Equal(t, ChangeWallets, changed)
		require.Len(t, s.Wallets, 1)
		assert.NotEmpty(t, s.Wallets[0].ID)
	})

	t.Run("negative opening balance", func(t *testing.T) {
		_, _, err := Apply(State{}, CreateWallet{Wallet: core.Wallet{Name: "Cash", Balance: amount(-1)}})
		require.ErrorIs(t, err, core.ErrNegativeBalance)
	})

	t.Run("empty name", func(t *testing.T) {
		_, _, err := Apply(State{}, CreateWallet{Wallet: core.Wallet{Name: " "}})
		require.ErrorIs(t, err, core.ErrEmptyName)
	})

	t.Run("update ignores balance", func(t *testing.T) {
		s := mustApply(t, seed(), UpdateWallet{Wallet: core.Wallet{ID: "w1", Name: "Dompet", Balance: amount(1), Image: "cash.png"}})
		w, _ := s.Wallet("w1")
		assert.Equal(t, "Dompet", w.Name)
		assert.Equal(t, "cash.png", w.Image)
		assert.True(t, amount(100000).Equal(w.Balance))
	})

	t.Run("update missing", func(t *testing.T) {
		_, _, err := Apply(seed(), UpdateWallet{Wallet: core.Wallet{ID: "x", Name: "X"}})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteWalletCascades(t *testing.T) {
	s := mustApply(t, seed(),
		CreateTransaction{Tx: tx("t1", "w1", 1000, core.Expense)},
		CreateTransaction{Tx: tx("t2", "w2", 2000, core.Expense)},
		CreateTransaction{Tx: tx("t3", "w1", 3000, core.Income)},
	)
	before := len(s.Transactions)
	s, changed, err := Apply(s, DeleteWallet{ID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, ChangeWallets|ChangeTransactions, changed)
	assert.Len(t, s.Transactions, before-2)
	for _, tr := range s.Transactions {
		assert.NotEqual(t, "w1", tr.WalletID)
	}
	_, ok := s.Wallet("w1")
	assert.False(t, ok)

	_, _, err = Apply(s, DeleteWallet{ID: "w1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryOperations(t *testing.T) {
	s := mustApply(t, State{},
		CreateCategory{Category: core.Category{ID: "food", Name: "Food", Icon: "utensils"}},
		CreateCategory{Category: core.Category{ID: "snacks", Name: "Snacks", ParentID: "food"}},
	)
	require.Len(t, s.Categories, 2)

	_, _, err := Apply(s, CreateCategory{Category: core.Category{Name: "Orphan", ParentID: "nope"}})
	require.ErrorIs(t, err, ErrUnknownCategory)
	assert.True(t, core.IsValidation(err))

	_, _, err = Apply(s, UpdateCategory{Category: core.Category{ID: "food", Name: "Food", ParentID: "food"}})
	require.ErrorIs(t, err, ErrSelfParent)

	_, _, err = Apply(s, CreateCategory{Category: core.Category{Name: "Bad", Icon: "rocket"}})
	require.ErrorIs(t, err, core.ErrUnknownIcon)

	s = mustApply(t, s, UpdateCategory{Category: core.Category{ID: "snacks", Name: "Jajan", ParentID: "food"}})
	assert.Equal(t, "Jajan", CategoryName(s.Categories, "snacks"))

	s = mustApply(t, s, DeleteCategory{ID: "food"})
	assert.Equal(t, core.NotAvailable, CategoryName(s.Categories, "food"))
	c, ok := s.Category("snacks")
	require.True(t, ok)
	assert.Equal(t, "food", c.ParentID)
}

func TestGoalOperations(t *testing.T) {
	g := core.Goal{
		ID:           "g1",
		Name:         "Laptop",
		TargetAmount: amount(1200000),
		StartDate:    core.NewDate(2024, 1, 1),
		EndDate:      core.NewDate(2024, 1, 29),
	}
	s := mustApply(t, State{}, CreateGoal{Goal: g})
	require.Len(t, s.Goals, 1)

	bad := g
	bad.EndDate = core.NewDate(2023, 1, 1)
	_, _, err := Apply(s, UpdateGoal{Goal: bad})
	require.ErrorIs(t, err, core.ErrInvalidDateRange)

	g.Name = "Gaming laptop"
	s = mustApply(t, s, UpdateGoal{Goal: g})
	got, _ := s.Goal("g1")
	assert.Equal(t, "Gaming laptop", got.Name)

	s = mustApply(t, s, DeleteGoal{ID: "g1"})
	assert.Empty(t, s.Goals)
	_, _, err = Apply(s, DeleteGoal{ID: "g1"})
	require.ErrorIs(t, err, ErrNotFound)
}

// Random sequences of transaction operations must always leave every wallet
// at its opening balance plus the signed sum of its ledger.
func TestReconciliationHoldsForRandomSequences(t *testing.T) {
	wallets := []string{"w1", "w2", "w3"}
	for seedN := uint64(1); seedN <= 50; seedN++ {
		rng := rand.New(rand.NewPCG(seedN, 42))
		s := State{}
		opening := map[string]decimal.Decimal{}
		for _, id := range wallets {
			open := amount(rng.Int64N(1_000_000))
			opening[id] = open
			s = mustApply(t, s, CreateWallet{Wallet: core.Wallet{ID: id, Name: id, Balance: open}})
		}

		for step := 0; step < 100; step++ {
			typ := core.Income
			if rng.IntN(2) == 0 {
				typ = core.Expense
			}
			wallet := wallets[rng.IntN(len(wallets))]
			v := rng.Int64N(100_000) + 1

			var op Operation
			switch {
			case len(s.Transactions) == 0 || rng.IntN(3) == 0:
				op = CreateTransaction{Tx: tx("", wallet, v, typ)}
			case rng.IntN(2) == 0:
				existing := s.Transactions[rng.IntN(len(s.Transactions))]
				op = UpdateTransaction{Tx: tx(existing.ID, wallet, v, typ)}
			default:
				existing := s.Transactions[rng.IntN(len(s.Transactions))]
				op = DeleteTransaction{ID: existing.ID}
			}
			next, _, err := Apply(s, op)
			if err != nil && !errors.Is(err, ErrNotFound) {
				t.Fatalf("seed %d step %d: %v", seedN, step, err)
			}
			s = next
			require.Empty(t, Reconcile(opening, s), "seed %d step %d", seedN, step)
		}
	}
}
