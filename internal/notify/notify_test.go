package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"soltrader-go/internal/util"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) (*Notifier, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	n := New(util.NewLogger("error"), "test-token", "42").WithBase(server.URL)
	return n, server
}

func TestSend(t *testing.T) {
	var calls atomic.Int64
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("chat_id") != "42" {
			t.Errorf("chat_id = %s", q.Get("chat_id"))
		}
		if q.Get("text") != "hello" {
			t.Errorf("text = %s", q.Get("text"))
		}
		if q.Get("parse_mode") != "HTML" {
			t.Errorf("parse_mode = %s", q.Get("parse_mode"))
		}
		w.Write([]byte(`{"ok":true}`))
	})

	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestSendStatusError(t *testing.T) {
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
	})
	err := n.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("err = %v", err)
	}
}

func TestSendErrorHidesToken(t *testing.T) {
	n := New(util.NewLogger("error"), "secret-token", "42").WithBase("http://127.0.0.1:1")
	err := n.Send(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("token leaked into error: %v", err)
	}
}

func TestDisabled(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	n := New(util.NewLogger("error"), "", "").WithBase(server.URL)
	if n.Enabled() {
		t.Fatal("notifier without credentials should be disabled")
	}
	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("disabled Send: %v", err)
	}
	n.Alert(context.Background(), "low", "balance low")
	n.TxUpdate(context.Background(), "transfer", "confirmed", "sig", 0.1)
	if calls.Load() != 0 {
		t.Fatalf("disabled notifier made %d calls", calls.Load())
	}

	var nilNotifier *Notifier
	if nilNotifier.Enabled() {
		t.Fatal("nil notifier should report disabled")
	}
	if err := nilNotifier.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("nil Send: %v", err)
	}
}

func TestAlertPrefixesLevel(t *testing.T) {
	var got atomic.Value
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query().Get("text"))
		w.Write([]byte(`{"ok":true}`))
	})

	n.Alert(context.Background(), "critical", "wallet So11...1112 balance 0.0500 SOL: critical")

	text, _ := got.Load().(string)
	if !strings.HasPrefix(text, "\U0001F534 ") {
		t.Fatalf("text = %q, want critical prefix", text)
	}
	if !strings.Contains(text, "0.0500 SOL") {
		t.Fatalf("text = %q", text)
	}
}

func TestTxUpdateMessage(t *testing.T) {
	var got atomic.Value
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query().Get("text"))
		w.Write([]byte(`{"ok":true}`))
	})

	n.TxUpdate(context.Background(), "transfer", "confirmed", "sig123", 0.01)

	text, _ := got.Load().(string)
	for _, want := range []string{"transfer confirmed", "0.0100 SOL", "https://solscan.io/tx/sig123"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text = %q, missing %q", text, want)
		}
	}
}

func TestTxUpdateOmitsEmptyFields(t *testing.T) {
	var got atomic.Value
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query().Get("text"))
		w.Write([]byte(`{"ok":true}`))
	})

	n.TxUpdate(context.Background(), "transfer", "failed", "", 0)

	text, _ := got.Load().(string)
	if strings.Contains(text, "solscan") {
		t.Fatalf("text = %q, should not link a missing signature", text)
	}
	if strings.Contains(text, "SOL") {
		t.Fatalf("text = %q, should omit zero amount", text)
	}
}
