// Package ledger keeps wallet balances consistent with the transaction ledger.
//
// Every mutation of application data is expressed as an Operation and applied
// with Apply or ApplyAll, which return a new State and never modify their
// input. Callers that want persistence hand the resulting Change to a store.
package ledger

import (
	"errors"
	"slices"
	"strings"

	"dompet/internal/core"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateID     = errors.New("duplicate id")
	ErrUnknownWallet   = errors.New("unknown wallet")
	ErrUnknownCategory = errors.New("unknown parent category")
	ErrSelfParent      = errors.New("category cannot be its own parent")
)

// State is the whole application data set.
type State struct {
	Wallets      []core.Wallet      `json:"wallets"`
	Transactions []core.Transaction `json:"transactions"`
	Categories   []core.Category    `json:"categories"`
	Goals        []core.Goal        `json:"goals"`
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	return State{
		Wallets:      slices.Clone(s.Wallets),
		Transactions: slices.Clone(s.Transactions),
		Categories:   slices.Clone(s.Categories),
		Goals:        slices.Clone(s.Goals),
	}
}

func (s State) Wallet(id string) (core.Wallet, bool) {
	i := s.walletIndex(id)
	if i < 0 {
		return core.Wallet{}, false
	}
	return s.Wallets[i], true
}

func (s State) Transaction(id string) (core.Transaction, bool) {
	i := s.transactionIndex(id)
	if i < 0 {
		return core.Transaction{}, false
	}
	return s.Transactions[i], true
}

func (s State) Category(id string) (core.Category, bool) {
	i := s.categoryIndex(id)
	if i < 0 {
		return core.Category{}, false
	}
	return s.Categories[i], true
}

func (s State) Goal(id string) (core.Goal, bool) {
	i := s.goalIndex(id)
	if i < 0 {
		return core.Goal{}, false
	}
	return s.Goals[i], true
}

func (s State) walletIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.Wallets, func(w core.Wallet) bool { return w.ID == id })
}

func (s State) transactionIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.Transactions, func(t core.Transaction) bool { return t.ID == id })
}

func (s State) categoryIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.Categories, func(c core.Category) bool { return c.ID == id })
}

func (s State) goalIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.Goals, func(g core.Goal) bool { return g.ID == id })
}

// Change is a set of collections touched by an operation.
type Change uint8

const (
	ChangeWallets Change = 1 << iota
	ChangeTransactions
	ChangeCategories
	ChangeGoals
)

// ChangeAll marks every collection, used after a full reload.
const ChangeAll = ChangeWallets | ChangeTransactions | ChangeCategories | ChangeGoals

func (c Change) Has(other Change) bool {
	return c&other != 0
}

func (c Change) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, col := range Collections {
		if c.Has(col.Change) {
			names = append(names, col.Name)
		}
	}
	return strings.Join(names, ",")
}

// Collection names one persisted entity collection.
type Collection struct {
	Name   string
	Change Change
}

// Collections lists the persisted collections in load order.
var Collections = []Collection{
	{Name: "wallets", Change: ChangeWallets},
	{Name: "transactions", Change: ChangeTransactions},
	{Name: "categories", Change: ChangeCategories},
	{Name: "goals", Change: ChangeGoals},
}
