package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// NotAvailable is rendered in place of a reference that no longer resolves.
const NotAvailable = "N/A"

type (
	TxType string

	Wallet struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Balance decimal.Decimal `json:"balance"`
		Image   string          `json:"image,omitempty"`
	}

	// Transaction keeps Amount as a positive magnitude; Type carries the direction.
	Transaction struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Type        TxType          `json:"type"`
		WalletID    string          `json:"walletId"`
		Date        Date            `json:"date"`
		CategoryID  string          `json:"categoryId,omitempty"`
	}

	Category struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ParentID string `json:"parentId,omitempty"`
		Icon     Icon   `json:"icon,omitempty"`
	}

	Goal struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		TargetAmount decimal.Decimal `json:"targetAmount"`
		StartDate    Date            `json:"startDate"`
		EndDate      Date            `json:"endDate"`
		Image        string          `json:"image,omitempty"`
	}
)

var (
	ErrEmptyName        = errors.New("empty name")
	ErrNameTooLong      = errors.New("name too long (max 100 characters)")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativeBalance  = errors.New("balance cannot be negative")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidDateRange = errors.New("end date must not be before start date")
	ErrUnknownIcon      = errors.New("unknown icon")
	ErrMissingWallet    = errors.New("missing wallet")
)

// ValidationError reports which field of an entity was rejected and why.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid wraps cause in a ValidationError for field.
func Invalid(field string, cause error) error {
	return &ValidationError{Field: field, Err: cause}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// SignedAmount is the amount used in all balance arithmetic:
// +|amount| for income and -|amount| for expense.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Abs().Neg()
	}
	return t.Amount.Abs()
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return Invalid("name", ErrEmptyName)
	}
	if len(name) > 100 {
		return Invalid("name", ErrNameTooLong)
	}
	return nil
}

func (w Wallet) Validate() error {
	return validateName(w.Name)
}

func (t Transaction) Validate() error {
	if len(t.Description) > 200 {
		return Invalid("description", ErrDescriptionLong)
	}
	if !t.Amount.IsPositive() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if !t.Type.Valid() {
		return Invalid("type", ErrInvalidType)
	}
	if strings.TrimSpace(t.WalletID) == "" {
		return Invalid("walletId", ErrMissingWallet)
	}
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	return nil
}

func (c Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if c.Icon != "" && !c.Icon.Valid() {
		return Invalid("icon", ErrUnknownIcon)
	}
	return nil
}

func (g Goal) Validate() error {
	if err := validateName(g.Name); err != nil {
		return err
	}
	if !g.TargetAmount.IsPositive() {
		return Invalid("targetAmount", ErrInvalidAmount)
	}
	if err := g.StartDate.Validate(); err != nil {
		return Invalid("startDate", err)
	}
	if err := g.EndDate.Validate(); err != nil {
		return Invalid("endDate", err)
	}
	if g.EndDate.Before(g.StartDate.Time) {
		return Invalid("endDate", ErrInvalidDateRange)
	}
	return nil
}

// Date is a calendar date stored at UTC midnight.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current local calendar date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// timestampZone is where UTC timestamps written by the browser app are read
// back. It stored local midnight as UTC, so Jakarta time recovers the day the
// user picked.
var timestampZone = time.FixedZone("WIB", 7*60*60)

// UnmarshalJSON accepts plain dates as well as full timestamps. A timestamp
// with an explicit offset keeps the date in that offset; a UTC timestamp is
// read in timestampZone.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = Date{}
		return nil
	}
	s = strings.Trim(s, `"`)
	if t, err := time.Parse(dateLayout, s); err == nil {
		*d = DateOf(t)
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return ErrInvalidDate
	}
	if _, offset := t.Zone(); offset == 0 {
		t = t.In(timestampZone)
	}
	*d = DateOf(t)
	return nil
}
