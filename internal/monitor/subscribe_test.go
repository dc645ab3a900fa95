package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

func TestRunSubscribeRecordsPushedBalances(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe frame: %v", err)
			return
		}
		if sub.Method != "accountSubscribe" {
			t.Errorf("method = %q, want accountSubscribe", sub.Method)
		}
		if len(sub.Params) == 0 {
			t.Error("subscribe frame missing account param")
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","result":99,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"jsonrpc":"2.0","method":"accountNotification","params":{"result":{"context":{"slot":5},"value":{"lamports":750000000}},"subscription":99}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	src := &stubSource{owner: solana.NewWallet().PublicKey()}
	m := newTestMonitor(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	go func() { done <- m.RunSubscribe(ctx, wsURL) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(m.History()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	hist := m.History()
	if len(hist) == 0 {
		t.Fatal("no sample recorded from the stream")
	}
	if hist[0].Lamports != 750_000_000 {
		t.Fatalf("lamports = %d, want 750000000", hist[0].Lamports)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("RunSubscribe returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunSubscribe did not stop after cancel")
	}
}

func TestRunSubscribeRequiresEndpoint(t *testing.T) {
	src := &stubSource{owner: solana.NewWallet().PublicKey()}
	m := newTestMonitor(t, src)
	if err := m.RunSubscribe(context.Background(), ""); err == nil {
		t.Fatal("expected error for missing websocket endpoint")
	}
}
