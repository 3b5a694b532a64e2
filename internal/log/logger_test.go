package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(level slog.Level, component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: component, Output: &buf}), &buf
}

func TestLoggerAddsComponentOnce(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo, ComponentStore)
	l.WithComponent(ComponentLedger).Info("hello", FieldKey, "dompet:wallets")

	out := buf.String()
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("expected one component attribute, got %q", out)
	}
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "key=dompet:wallets") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLoggerLevel(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelWarn, ComponentApp)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestContextLogger(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo, ComponentHTTP)
	ctx := NewContext(context.Background(), l.With(FieldRequestID, "req-1"))
	FromContext(ctx).InfoContext(ctx, "inside")

	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("expected request id in output, got %q", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger outside requests")
	}
}

func TestStructuredLogger(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo, ComponentApp)
	sl := NewStructuredLogger(l)

	req := httptest.NewRequest(http.MethodPost, "/wallets?x=1", nil)
	sl.LogHTTPEnd(context.Background(), req, 422, 12, "10.0.0.1")
	sl.LogMutation(context.Background(), "create wallet", "wallets")
	sl.LogError(context.Background(), "flush failed", errors.New("disk full"), ComponentStore, OpFlush, ErrorTypeStorage)

	out := buf.String()
	for _, want := range []string{
		"level=WARN", "status_code=422", "client_ip=10.0.0.1",
		`operation="create wallet"`, "change=wallets",
		"level=ERROR", `error="disk full"`, "error_type=storage_error", "component=store",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output %q", want, out)
		}
	}
}
