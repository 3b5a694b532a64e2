package http

import (
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"time"

	"dompet/internal/ledger"
)

// HTMXResponseBuilder collects the status, headers, HX-Trigger events and
// HTML fragment of a single response and writes them in one go.
type HTMXResponseBuilder struct {
	status int
	header http.Header
	events map[string]any
	html   string
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status: http.StatusOK,
		header: make(http.Header),
		events: make(map[string]any),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.header.Set(name, value)
	return b
}

// Trigger queues a client event; detail becomes the event's JSON payload.
func (b *HTMXResponseBuilder) Trigger(event string, detail any) *HTMXResponseBuilder {
	b.events[event] = detail
	return b
}

// TriggerLedgerChanged names the collections a mutation touched so other
// lists on the page can refresh.
func (b *HTMXResponseBuilder) TriggerLedgerChanged(change ledger.Change) *HTMXResponseBuilder {
	return b.Trigger("ledger:changed", map[string]string{"collections": change.String()})
}

func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationType selects the toast style in app.js.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
)

// notificationDuration is how long each toast stays on screen.
var notificationDuration = map[NotificationType]time.Duration{
	NotificationSuccess: 3 * time.Second,
	NotificationError:   5 * time.Second,
	NotificationWarning: 8 * time.Second,
}

func (b *HTMXResponseBuilder) notify(kind NotificationType, message string) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     kind,
		"message":  message,
		"duration": notificationDuration[kind].Milliseconds(),
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.notify(NotificationSuccess, message)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.notify(NotificationError, message)
}

func (b *HTMXResponseBuilder) TriggerWarningNotification(message string) *HTMXResponseBuilder {
	return b.notify(NotificationWarning, message)
}

// BodyHTML sets an already rendered fragment as the body.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.html = html
	return b
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	if len(b.events) > 0 {
		if events, err := json.Marshal(b.events); err == nil {
			w.Header().Set("HX-Trigger", string(events))
		}
	}
	w.WriteHeader(b.status)
	if b.html != "" {
		_, _ = io.WriteString(w, b.html)
	}
}

// ErrorResponse answers with message escaped into an error fragment, which
// app.js moves into the form that was submitted.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ConflictError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}
