package http

import (
	"dompet/internal/core"
	"dompet/internal/ledger"
)

// recentCount is how many transactions the dashboard lists.
const recentCount = 5

type walletView struct {
	ID       string
	Name     string
	Image    string
	Balance  string
	Negative bool
}

type transactionView struct {
	ID           string
	Description  string
	Date         string
	Type         core.TxType
	Income       bool
	WalletID     string
	WalletName   string
	CategoryID   string
	CategoryName string
	// Amount is the signed display amount; Magnitude prefills edit forms.
	Amount    string
	Magnitude string
}

type categoryView struct {
	ID         string
	Name       string
	ParentID   string
	ParentName string
	Icon       core.Icon
	Depth      int
}

type goalView struct {
	ID        string
	Name      string
	Image     string
	Target    string
	TargetRaw string
	StartDate string
	EndDate   string
	Weeks     int
	Months    int
	Weekly    string
	Monthly   string
}

// pageData is shared by every page and partial template.
type pageData struct {
	Title        string
	Active       string
	Today        string
	CanExport    bool
	Total        string
	Wallets      []walletView
	Transactions []transactionView
	Recent       []transactionView
	Categories   []categoryView
	Goals        []goalView
	Icons        []core.Icon
	TxTypes      []core.TxType
}

func newPageData(state ledger.State, title, active string, canExport bool) pageData {
	data := pageData{
		Title:     title,
		Active:    active,
		Today:     core.Today().String(),
		CanExport: canExport,
		Total:     formatAmount(ledger.TotalBalance(state.Wallets)),
		Icons:     core.Icons,
		TxTypes:   []core.TxType{core.Expense, core.Income},
	}
	for _, w := range state.Wallets {
		data.Wallets = append(data.Wallets, walletView{
			ID:       w.ID,
			Name:     w.Name,
			Image:    w.Image,
			Balance:  formatAmount(w.Balance),
			Negative: w.Balance.IsNegative(),
		})
	}
	for _, tx := range state.Transactions {
		data.Transactions = append(data.Transactions, newTransactionView(state, tx))
	}
	for _, tx := range ledger.RecentTransactions(state.Transactions, recentCount) {
		data.Recent = append(data.Recent, newTransactionView(state, tx))
	}
	data.Categories = flattenCategories(state.Categories, ledger.CategoryTree(state.Categories), 0, nil)
	for _, g := range state.Goals {
		p := ledger.GoalPacing(g)
		data.Goals = append(data.Goals, goalView{
			ID:        g.ID,
			Name:      g.Name,
			Image:     g.Image,
			Target:    formatAmount(g.TargetAmount),
			TargetRaw: g.TargetAmount.String(),
			StartDate: g.StartDate.String(),
			EndDate:   g.EndDate.String(),
			Weeks:     p.Weeks,
			Months:    p.Months,
			Weekly:    formatAmount(p.WeeklySaving),
			Monthly:   formatAmount(p.MonthlySaving),
		})
	}
	return data
}

func newTransactionView(state ledger.State, tx core.Transaction) transactionView {
	return transactionView{
		ID:           tx.ID,
		Description:  tx.Description,
		Date:         tx.Date.String(),
		Type:         tx.Type,
		Income:       tx.Type == core.Income,
		WalletID:     tx.WalletID,
		WalletName:   ledger.WalletName(state.Wallets, tx.WalletID),
		CategoryID:   tx.CategoryID,
		CategoryName: ledger.CategoryName(state.Categories, tx.CategoryID),
		Amount:       formatAmount(tx.SignedAmount()),
		Magnitude:    tx.Amount.String(),
	}
}

// flattenCategories walks the tree depth first so templates can indent by
// Depth.
func flattenCategories(all []core.Category, nodes []ledger.CategoryNode, depth int, out []categoryView) []categoryView {
	for _, n := range nodes {
		c := n.Category
		v := categoryView{
			ID:       c.ID,
			Name:     c.Name,
			ParentID: c.ParentID,
			Icon:     c.Icon,
			Depth:    depth,
		}
		if c.ParentID != "" {
			v.ParentName = ledger.CategoryName(all, c.ParentID)
		}
		out = append(out, v)
		out = flattenCategories(all, n.Children, depth+1, out)
	}
	return out
}
