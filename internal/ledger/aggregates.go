package ledger

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"dompet/internal/core"
)

// TotalBalance sums the balances of all wallets.
func TotalBalance(wallets []core.Wallet) decimal.Decimal {
	total := decimal.Zero
	for _, w := range wallets {
		total = total.Add(w.Balance)
	}
	return total
}

// Pacing is how much must be saved per period to reach a goal on time.
type Pacing struct {
	Weeks         int
	Months        int
	WeeklySaving  decimal.Decimal
	MonthlySaving decimal.Decimal
}

// GoalPacing spreads the goal target over the whole weeks and whole calendar
// months between its start and end dates. A span shorter than one period
// makes the whole target due in that single period.
func GoalPacing(g core.Goal) Pacing {
	p := Pacing{
		Weeks:  weeksBetween(g.StartDate, g.EndDate),
		Months: monthsBetween(g.StartDate, g.EndDate),
	}
	if p.Weeks > 0 {
		p.WeeklySaving = g.TargetAmount.Div(decimal.NewFromInt(int64(p.Weeks)))
	} else {
		p.WeeklySaving = g.TargetAmount
	}
	if p.Months > 0 {
		p.MonthlySaving = g.TargetAmount.Div(decimal.NewFromInt(int64(p.Months)))
	} else {
		p.MonthlySaving = g.TargetAmount
	}
	return p
}

func weeksBetween(start, end core.Date) int {
	days := int(end.Sub(start.Time) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days / 7
}

// monthsBetween counts full calendar months. A month completes once the end
// day of month reaches the start day of month, or when end is the last day of
// its month (Jan 31 to Feb 28 is one month).
func monthsBetween(start, end core.Date) int {
	sy, sm, _ := start.Date()
	ey, em, ed := end.Date()
	months := (ey-sy)*12 + int(em-sm)
	if months < 1 {
		return 0
	}
	if em == time.February && ed > 27 {
		ed = 30
	}
	back := time.Date(ey, em, ed, 0, 0, 0, 0, end.Location())
	back = time.Date(back.Year(), back.Month()-time.Month(months), back.Day(), 0, 0, 0, 0, end.Location())
	short := back.Before(start.Time)
	if months == 1 && isLastDayOfMonth(end) && end.After(start.Time) {
		short = false
	}
	if short {
		months--
	}
	return months
}

func isLastDayOfMonth(d core.Date) bool {
	return d.AddDate(0, 0, 1).Day() == 1
}

// WalletName resolves a wallet id for display.
func WalletName(wallets []core.Wallet, id string) string {
	for _, w := range wallets {
		if w.ID == id && id != "" {
			return w.Name
		}
	}
	return core.NotAvailable
}

// CategoryName resolves a category id for display.
func CategoryName(categories []core.Category, id string) string {
	for _, c := range categories {
		if c.ID == id && id != "" {
			return c.Name
		}
	}
	return core.NotAvailable
}

type CategoryNode struct {
	Category core.Category
	Children []CategoryNode
}

// CategoryTree arranges categories under their parents. Categories whose
// parent is missing are shown as roots, and so is anything only reachable
// through a parent cycle.
func CategoryTree(categories []core.Category) []CategoryNode {
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
	}
	children := make(map[string][]core.Category)
	var roots []core.Category
	for _, c := range categories {
		if c.ParentID == "" || c.ParentID == c.ID || !known[c.ParentID] {
			roots = append(roots, c)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	visited := make(map[string]bool, len(categories))
	var build func(c core.Category) CategoryNode
	build = func(c core.Category) CategoryNode {
		visited[c.ID] = true
		node := CategoryNode{Category: c}
		for _, child := range children[c.ID] {
			if visited[child.ID] {
				continue
			}
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	tree := make([]CategoryNode, 0, len(roots))
	for _, r := range roots {
		tree = append(tree, build(r))
	}
	for _, c := range categories {
		if !visited[c.ID] {
			tree = append(tree, build(c))
		}
	}
	return tree
}

// LedgerSums totals the signed amounts of the ledger per wallet id.
func LedgerSums(transactions []core.Transaction) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, t := range transactions {
		sums[t.WalletID] = sums[t.WalletID].Add(t.SignedAmount())
	}
	return sums
}

// Drift is a wallet whose balance disagrees with its opening balance plus
// its ledger.
type Drift struct {
	WalletID string
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

// Reconcile checks every wallet in state against opening balances keyed by
// wallet id. Wallets without an opening entry are assumed to have opened at
// zero. An empty result means the ledger and balances agree.
func Reconcile(opening map[string]decimal.Decimal, state State) []Drift {
	sums := LedgerSums(state.Transactions)
	var drift []Drift
	for _, w := range state.Wallets {
		expected := opening[w.ID].Add(sums[w.ID])
		if !w.Balance.Equal(expected) {
			drift = append(drift, Drift{WalletID: w.ID, Expected: expected, Actual: w.Balance})
		}
	}
	return drift
}

// RecentTransactions returns up to n transactions, newest date first. Ties
// keep ledger order.
func RecentTransactions(transactions []core.Transaction, n int) []core.Transaction {
	out := slices.Clone(transactions)
	slices.SortStableFunc(out, func(a, b core.Transaction) int {
		return b.Date.Compare(a.Date.Time)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
