// Package sheets flattens the ledger into spreadsheet rows and defines the
// port used to export them.
package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"dompet/internal/core"
	"dompet/internal/ledger"
)

// Ports for outbound adapters.
type (
	// LedgerExporter replaces the exported ledger with rows and returns a
	// reference to the written range.
	LedgerExporter interface {
		ExportLedger(ctx context.Context, rows []Row) (ref string, err error)
	}
)

// Header is the first row of every export.
var Header = []string{"Date", "Description", "Wallet", "Category", "Type", "Amount"}

// Row is one transaction as it appears in an export.
type Row struct {
	Date        core.Date
	Description string
	Wallet      string
	Category    string
	Type        core.TxType
	Amount      decimal.Decimal
}

// Values returns the row as spreadsheet cells in Header order.
func (r Row) Values() []any {
	return []any{
		r.Date.String(),
		r.Description,
		r.Wallet,
		r.Category,
		string(r.Type),
		r.Amount.InexactFloat64(),
	}
}

// Rows flattens the transactions of state in ledger order. Amounts are
// signed; references to deleted wallets or categories show as N/A.
func Rows(state ledger.State) []Row {
	rows := make([]Row, 0, len(state.Transactions))
	for _, tx := range state.Transactions {
		category := ""
		if tx.CategoryID != "" {
			category = ledger.CategoryName(state.Categories, tx.CategoryID)
		}
		rows = append(rows, Row{
			Date:        tx.Date,
			Description: tx.Description,
			Wallet:      ledger.WalletName(state.Wallets, tx.WalletID),
			Category:    category,
			Type:        tx.Type,
			Amount:      tx.SignedAmount(),
		})
	}
	return rows
}
