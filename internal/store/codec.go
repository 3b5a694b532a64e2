package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"dompet/internal/core"
	"dompet/internal/ledger"
)

// errMissingField marks a record that lacks a required field.
var errMissingField = errors.New("missing required field")

// flexID accepts ids written as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*f = flexID(n.String())
	}
	return nil
}

func (f *flexID) value() string {
	if f == nil {
		return ""
	}
	return string(*f)
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type walletRecord struct {
	ID      *flexID          `json:"id"`
	Name    *string          `json:"name"`
	Balance *decimal.Decimal `json:"balance"`
	Image   *string          `json:"image"`
}

type transactionRecord struct {
	ID          *flexID          `json:"id"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Type        *string          `json:"type"`
	WalletID    *flexID          `json:"walletId"`
	Date        *core.Date       `json:"date"`
	CategoryID  *flexID          `json:"categoryId"`
}

type categoryRecord struct {
	ID       *flexID `json:"id"`
	Name     *string `json:"name"`
	ParentID *flexID `json:"parentId"`
	Icon     *string `json:"icon"`
}

type goalRecord struct {
	ID           *flexID          `json:"id"`
	Name         *string          `json:"name"`
	TargetAmount *decimal.Decimal `json:"targetAmount"`
	StartDate    *core.Date       `json:"startDate"`
	EndDate      *core.Date       `json:"endDate"`
	Image        *string          `json:"image"`
}

// decoded is the result of reading one collection blob.
type decoded struct {
	state    ledger.State
	warnings []string
}

func (d *decoded) warnf(format string, args ...any) {
	d.warnings = append(d.warnings, fmt.Sprintf(format, args...))
}

func missing(index int, field string) error {
	return fmt.Errorf("record %d: %s: %w", index, field, errMissingField)
}

// decodeCollection parses a stored blob for col. An error means the whole
// blob is unusable; recoverable oddities come back as warnings.
func decodeCollection(col ledger.Collection, b []byte) (decoded, error) {
	var d decoded
	var err error
	switch col.Change {
	case ledger.ChangeWallets:
		d.state.Wallets, err = decodeWallets(b)
	case ledger.ChangeTransactions:
		d.state.Transactions, err = decodeTransactions(&d, b)
	case ledger.ChangeCategories:
		d.state.Categories, err = decodeCategories(&d, b)
	case ledger.ChangeGoals:
		d.state.Goals, err = decodeGoals(b)
	default:
		err = fmt.Errorf("unknown collection %q", col.Name)
	}
	return d, err
}

func decodeWallets(b []byte) ([]core.Wallet, error) {
	var recs []walletRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	out := make([]core.Wallet, 0, len(recs))
	for i, r := range recs {
		switch {
		case r.ID.value() == "":
			return nil, missing(i, "id")
		case r.Name == nil:
			return nil, missing(i, "name")
		case r.Balance == nil:
			return nil, missing(i, "balance")
		}
		out = append(out, core.Wallet{
			ID:      r.ID.value(),
			Name:    *r.Name,
			Balance: *r.Balance,
			Image:   str(r.Image),
		})
	}
	return out, nil
}

func decodeTransactions(d *decoded, b []byte) ([]core.Transaction, error) {
	var recs []transactionRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(recs))
	for i, r := range recs {
		switch {
		case r.ID.value() == "":
			return nil, missing(i, "id")
		case r.Amount == nil:
			return nil, missing(i, "amount")
		case r.WalletID.value() == "":
			return nil, missing(i, "walletId")
		case r.Date == nil || r.Date.IsZero():
			return nil, missing(i, "date")
		}

		amount := *r.Amount
		typ := core.TxType(str(r.Type))
		switch {
		case r.Type == nil && amount.IsNegative():
			typ = core.Expense
		case r.Type == nil:
			typ = core.Income
		case !typ.Valid():
			return nil, fmt.Errorf("record %d: %w: %q", i, core.ErrInvalidType, typ)
		}
		if amount.IsNegative() {
			d.warnf("transaction %s: signed amount %s stored as magnitude", r.ID.value(), amount)
			amount = amount.Abs()
		}

		out = append(out, core.Transaction{
			ID:          r.ID.value(),
			Description: str(r.Description),
			Amount:      amount,
			Type:        typ,
			WalletID:    r.WalletID.value(),
			Date:        *r.Date,
			CategoryID:  r.CategoryID.value(),
		})
	}
	return out, nil
}

func decodeCategories(d *decoded, b []byte) ([]core.Category, error) {
	var recs []categoryRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(recs))
	for i, r := range recs {
		switch {
		case r.ID.value() == "":
			return nil, missing(i, "id")
		case r.Name == nil:
			return nil, missing(i, "name")
		}
		icon := core.Icon(str(r.Icon))
		if icon != "" && !icon.Valid() {
			d.warnf("category %s: unknown icon %q dropped", r.ID.value(), icon)
			icon = ""
		}
		out = append(out, core.Category{
			ID:       r.ID.value(),
			Name:     *r.Name,
			ParentID: r.ParentID.value(),
			Icon:     icon,
		})
	}
	return out, nil
}

func decodeGoals(b []byte) ([]core.Goal, error) {
	var recs []goalRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	out := make([]core.Goal, 0, len(recs))
	for i, r := range recs {
		switch {
		case r.ID.value() == "":
			return nil, missing(i, "id")
		case r.Name == nil:
			return nil, missing(i, "name")
		case r.TargetAmount == nil:
			return nil, missing(i, "targetAmount")
		case r.StartDate == nil || r.StartDate.IsZero():
			return nil, missing(i, "startDate")
		case r.EndDate == nil || r.EndDate.IsZero():
			return nil, missing(i, "endDate")
		}
		out = append(out, core.Goal{
			ID:           r.ID.value(),
			Name:         *r.Name,
			TargetAmount: *r.TargetAmount,
			StartDate:    *r.StartDate,
			EndDate:      *r.EndDate,
			Image:        str(r.Image),
		})
	}
	return out, nil
}

// encodeCollection renders the current contents of col. Empty collections
// are written as [] rather than null.
func encodeCollection(col ledger.Collection, s ledger.State) ([]byte, error) {
	var v any
	switch col.Change {
	case ledger.ChangeWallets:
		v = nonNil(s.Wallets)
	case ledger.ChangeTransactions:
		v = nonNil(s.Transactions)
	case ledger.ChangeCategories:
		v = nonNil(s.Categories)
	case ledger.ChangeGoals:
		v = nonNil(s.Goals)
	default:
		return nil, fmt.Errorf("unknown collection %q", col.Name)
	}
	return json.Marshal(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// assign copies the collections named by c from src into dst.
func assign(dst *ledger.State, src ledger.State, c ledger.Change) {
	if c.Has(ledger.ChangeWallets) {
		dst.Wallets = src.Wallets
	}
	if c.Has(ledger.ChangeTransactions) {
		dst.Transactions = src.Transactions
	}
	if c.Has(ledger.ChangeCategories) {
		dst.Categories = src.Categories
	}
	if c.Has(ledger.ChangeGoals) {
		dst.Goals = src.Goals
	}
}
