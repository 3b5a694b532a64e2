package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"dompet/internal/core"
	"dompet/internal/ledger"
	"dompet/internal/log"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// formatAmount renders an amount in the ledger currency.
func formatAmount(d decimal.Decimal) string {
	return core.FormatIDR(d)
}

// validationMessage turns a rejected field into a sentence for the form.
func validationMessage(err error) string {
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		return "Invalid data"
	}
	return "Invalid " + ve.Field + ": " + ve.Err.Error()
}

// writeLedgerError maps an error from a rejected operation to a response.
// Nothing was committed when this is called.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())
	switch {
	case core.IsValidation(err):
		logger.WarnContext(r.Context(), "Rejected ledger operation",
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldError, err)
		UnprocessableEntityError(validationMessage(err)).Write(w)
	case errors.Is(err, ledger.ErrNotFound):
		logger.WarnContext(r.Context(), "Ledger operation on unknown record",
			log.FieldErrorType, log.ErrorTypeNotFound,
			log.FieldError, err)
		NotFoundError("Record not found").Write(w)
	case errors.Is(err, ledger.ErrDuplicateID):
		logger.WarnContext(r.Context(), "Ledger operation with duplicate id",
			log.FieldErrorType, log.ErrorTypeConflict,
			log.FieldError, err)
		ConflictError("A record with this id already exists").Write(w)
	default:
		logger.ErrorContext(r.Context(), "Ledger operation failed",
			log.FieldErrorType, log.ErrorTypeInternal,
			log.FieldError, err)
		InternalServerError("Error saving changes").Write(w)
	}
}
