package ledger

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"dompet/internal/core"
)

// Operation is one atomic mutation of State.
type Operation interface {
	// apply mutates a working copy; on error the copy is discarded.
	apply(s *State) (Change, error)
	// Name identifies the operation in logs.
	Name() string
}

// Apply runs op against state and returns the resulting state together with
// the collections it touched. state itself is never modified; on error the
// original state is returned unchanged.
func Apply(state State, op Operation) (State, Change, error) {
	return ApplyAll(state, op)
}

// ApplyAll applies ops in order as a single all-or-nothing batch.
func ApplyAll(state State, ops ...Operation) (State, Change, error) {
	next := state.Clone()
	var changed Change
	for _, op := range ops {
		c, err := op.apply(&next)
		if err != nil {
			return state, 0, fmt.Errorf("%s: %w", op.Name(), err)
		}
		changed |= c
	}
	return next, changed, nil
}

// adjust adds delta to the balance of walletID. A wallet that no longer
// exists is skipped.
func (s *State) adjust(walletID string, delta decimal.Decimal) bool {
	i := s.walletIndex(walletID)
	if i < 0 {
		return false
	}
	s.Wallets[i].Balance = s.Wallets[i].Balance.Add(delta)
	return true
}

type CreateTransaction struct {
	Tx core.Transaction
}

func (CreateTransaction) Name() string { return "create transaction" }

func (op CreateTransaction) apply(s *State) (Change, error) {
	tx := op.Tx
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	if s.walletIndex(tx.WalletID) < 0 {
		return 0, core.Invalid("walletId", ErrUnknownWallet)
	}
	if tx.ID == "" {
		tx.ID = core.NewID()
	} else if s.transactionIndex(tx.ID) >= 0 {
		return 0, fmt.Errorf("transaction %s: %w", tx.ID, ErrDuplicateID)
	}
	tx.Amount = tx.Amount.Abs()
	s.adjust(tx.WalletID, tx.SignedAmount())
	s.Transactions = slices.Insert(s.Transactions, 0, tx)
	return ChangeWallets | ChangeTransactions, nil
}

// UpdateTransaction replaces the stored transaction with the same ID. The
// stored version, not the caller's view of it, is the basis for reversing the
// old balance effect.
type UpdateTransaction struct {
	Tx core.Transaction
}

func (UpdateTransaction) Name() string { return "update transaction" }

func (op UpdateTransaction) apply(s *State) (Change, error) {
	tx := op.Tx
	i := s.transactionIndex(tx.ID)
	if i < 0 {
		return 0, fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	old := s.Transactions[i]
	if tx.WalletID != old.WalletID && s.walletIndex(tx.WalletID) < 0 {
		return 0, core.Invalid("walletId", ErrUnknownWallet)
	}
	tx.Amount = tx.Amount.Abs()

	if tx.WalletID == old.WalletID {
		s.adjust(tx.WalletID, tx.SignedAmount().Sub(old.SignedAmount()))
	} else {
		s.adjust(old.WalletID, old.SignedAmount().Neg())
		s.adjust(tx.WalletID, tx.SignedAmount())
	}
	s.Transactions[i] = tx
	return ChangeWallets | ChangeTransactions, nil
}

type DeleteTransaction struct {
	ID string
}

func (DeleteTransaction) Name() string { return "delete transaction" }

func (op DeleteTransaction) apply(s *State) (Change, error) {
	i := s.transactionIndex(op.ID)
	if i < 0 {
		return 0, fmt.Errorf("transaction %s: %w", op.ID, ErrNotFound)
	}
	old := s.Transactions[i]
	changed := ChangeTransactions
	if s.adjust(old.WalletID, old.SignedAmount().Neg()) {
		changed |= ChangeWallets
	}
	s.Transactions = slices.Delete(s.Transactions, i, i+1)
	return changed, nil
}

// CreateWallet adds a wallet with its opening balance.
type CreateWallet struct {
	Wallet core.Wallet
}

func (CreateWallet) Name() string { return "create wallet" }

func (op CreateWallet) apply(s *State) (Change, error) {
	w := op.Wallet
	if err := w.Validate(); err != nil {
		return 0, err
	}
	if w.Balance.IsNegative() {
		return 0, core.Invalid("balance", core.ErrNegativeBalance)
	}
	if w.ID == "" {
		w.ID = core.NewID()
	} else if s.walletIndex(w.ID) >= 0 {
		return 0, fmt.Errorf("wallet %s: %w", w.ID, ErrDuplicateID)
	}
	s.Wallets = append(s.Wallets, w)
	return ChangeWallets, nil
}

// UpdateWallet renames a wallet or changes its image. The balance in the
// operation is ignored; only transactions move it.
type UpdateWallet struct {
	Wallet core.Wallet
}

func (UpdateWallet) Name() string { return "update wallet" }

func (op UpdateWallet) apply(s *State) (Change, error) {
	i := s.walletIndex(op.Wallet.ID)
	if i < 0 {
		return 0, fmt.Errorf("wallet %s: %w", op.Wallet.ID, ErrNotFound)
	}
	if err := op.Wallet.Validate(); err != nil {
		return 0, err
	}
	s.Wallets[i].Name = op.Wallet.Name
	s.Wallets[i].Image = op.Wallet.Image
	return ChangeWallets, nil
}

// DeleteWallet removes a wallet and every transaction recorded against it.
type DeleteWallet struct {
	ID string
}

func (DeleteWallet) Name() string { return "delete wallet" }

func (op DeleteWallet) apply(s *State) (Change, error) {
	i := s.walletIndex(op.ID)
	if i < 0 {
		return 0, fmt.Errorf("wallet %s: %w", op.ID, ErrNotFound)
	}
	s.Wallets = slices.Delete(s.Wallets, i, i+1)
	before := len(s.Transactions)
	s.Transactions = slices.DeleteFunc(s.Transactions, func(t core.Transaction) bool {
		return t.WalletID == op.ID
	})
	if len(s.Transactions) != before {
		return ChangeWallets | ChangeTransactions, nil
	}
	return ChangeWallets, nil
}

type CreateCategory struct {
	Category core.Category
}

func (CreateCategory) Name() string { return "create category" }

func (op CreateCategory) apply(s *State) (Change, error) {
	c := op.Category
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if c.ID == "" {
		c.ID = core.NewID()
	} else if s.categoryIndex(c.ID) >= 0 {
		return 0, fmt.Errorf("category %s: %w", c.ID, ErrDuplicateID)
	}
	if err := s.checkParent(c); err != nil {
		return 0, err
	}
	s.Categories = append(s.Categories, c)
	return ChangeCategories, nil
}

type UpdateCategory struct {
	Category core.Category
}

func (UpdateCategory) Name() string { return "update category" }

func (op UpdateCategory) apply(s *State) (Change, error) {
	c := op.Category
	i := s.categoryIndex(c.ID)
	if i < 0 {
		return 0, fmt.Errorf("category %s: %w", c.ID, ErrNotFound)
	}
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if err := s.checkParent(c); err != nil {
		return 0, err
	}
	s.Categories[i] = c
	return ChangeCategories, nil
}

func (s *State) checkParent(c core.Category) error {
	if c.ParentID == "" {
		return nil
	}
	if c.ParentID == c.ID {
		return core.Invalid("parentId", ErrSelfParent)
	}
	if s.categoryIndex(c.ParentID) < 0 {
		return core.Invalid("parentId", ErrUnknownCategory)
	}
	return nil
}

// DeleteCategory removes a category. Subcategories and transactions that
// point at it keep the dangling reference.
type DeleteCategory struct {
	ID string
}

func (DeleteCategory) Name() string { return "delete category" }

func (op DeleteCategory) apply(s *State) (Change, error) {
	i := s.categoryIndex(op.ID)
	if i < 0 {
		return 0, fmt.Errorf("category %s: %w", op.ID, ErrNotFound)
	}
	s.Categories = slices.Delete(s.Categories, i, i+1)
	return ChangeCategories, nil
}

type CreateGoal struct {
	Goal core.Goal
}

func (CreateGoal) Name() string { return "create goal" }

func (op CreateGoal) apply(s *State) (Change, error) {
	g := op.Goal
	if err := g.Validate(); err != nil {
		return 0, err
	}
	if g.ID == "" {
		g.ID = core.NewID()
	} else if s.goalIndex(g.ID) >= 0 {
		return 0, fmt.Errorf("goal %s: %w", g.ID, ErrDuplicateID)
	}
	s.Goals = append(s.Goals, g)
	return ChangeGoals, nil
}

type UpdateGoal struct {
	Goal core.Goal
}

func (UpdateGoal) Name() string { return "update goal" }

func (op UpdateGoal) apply(s *State) (Change, error) {
	i := s.goalIndex(op.Goal.ID)
	if i < 0 {
		return 0, fmt.Errorf("goal %s: %w", op.Goal.ID, ErrNotFound)
	}
	if err := op.Goal.Validate(); err != nil {
		return 0, err
	}
	s.Goals[i] = op.Goal
	return ChangeGoals, nil
}

type DeleteGoal struct {
	ID string
}

func (DeleteGoal) Name() string { return "delete goal" }

func (op DeleteGoal) apply(s *State) (Change, error) {
	i := s.goalIndex(op.ID)
	if i < 0 {
		return 0, fmt.Errorf("goal %s: %w", op.ID, ErrNotFound)
	}
	s.Goals = slices.Delete(s.Goals, i, i+1)
	return ChangeGoals, nil
}
