package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"dompet/internal/core"
)

// maxBodyBytes caps form and JSON bodies.
const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' || p.body[0] == '[' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// errBodyTooLarge is returned by Parse for oversized bodies.
var errBodyTooLarge = errors.New("request body too large")

// amount parses a required positive amount field.
func (p *RequestBodyParser) amount(field string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(p.Get(field))
	if err != nil {
		return decimal.Zero, core.Invalid(field, err)
	}
	return d, nil
}

// date parses a YYYY-MM-DD field, using def when the field is empty.
func (p *RequestBodyParser) date(field string, def core.Date) (core.Date, error) {
	v := p.Get(field)
	if v == "" {
		if def.IsZero() {
			return core.Date{}, core.Invalid(field, core.ErrInvalidDate)
		}
		return def, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.Invalid(field, err)
	}
	return d, nil
}

// parseWallet reads a wallet form. An empty or zero balance opens the wallet
// at zero.
func parseWallet(p *RequestBodyParser) (core.Wallet, error) {
	w := core.Wallet{
		Name:  p.Get("name"),
		Image: p.Get("image"),
	}
	raw := p.Get("balance")
	switch {
	case raw == "" || isZeroAmount(raw):
		w.Balance = decimal.Zero
	case strings.HasPrefix(raw, "-"):
		return w, core.Invalid("balance", core.ErrNegativeBalance)
	default:
		d, err := core.ParseAmount(raw)
		if err != nil {
			return w, core.Invalid("balance", err)
		}
		w.Balance = d
	}
	return w, w.Validate()
}

// parseTransaction reads a transaction form. The date defaults to today.
func parseTransaction(p *RequestBodyParser) (core.Transaction, error) {
	tx := core.Transaction{
		Description: p.Get("description"),
		Type:        core.TxType(strings.ToLower(p.Get("type"))),
		WalletID:    p.Get("walletId"),
		CategoryID:  p.Get("categoryId"),
	}
	var err error
	if tx.Amount, err = p.amount("amount"); err != nil {
		return tx, err
	}
	if tx.Date, err = p.date("date", core.Today()); err != nil {
		return tx, err
	}
	return tx, tx.Validate()
}

func isZeroAmount(s string) bool {
	return strings.Trim(s, "0.,") == ""
}

func parseCategory(p *RequestBodyParser) (core.Category, error) {
	c := core.Category{
		Name:     p.Get("name"),
		ParentID: p.Get("parentId"),
		Icon:     core.Icon(p.Get("icon")),
	}
	return c, c.Validate()
}

func parseGoal(p *RequestBodyParser) (core.Goal, error) {
	g := core.Goal{
		Name:  p.Get("name"),
		Image: p.Get("image"),
	}
	var err error
	if g.TargetAmount, err = p.amount("targetAmount"); err != nil {
		return g, err
	}
	if g.StartDate, err = p.date("startDate", core.Today()); err != nil {
		return g, err
	}
	if g.EndDate, err = p.date("endDate", core.Date{}); err != nil {
		return g, err
	}
	return g, g.Validate()
}
