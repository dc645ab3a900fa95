package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"soltrader-go/internal/journal"
	"soltrader-go/internal/jupiter"
	"soltrader-go/internal/risk"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
)

type stubBackend struct {
	mu         sync.Mutex
	owner      solana.PublicKey
	balance    uint64
	sendCalls  int
	sendFails  int
	confirmErr error
	signed     int
}

func (b *stubBackend) Owner() solana.PublicKey { return b.owner }

func (b *stubBackend) Balance(context.Context) (uint64, error) {
	return b.balance, nil
}

func (b *stubBackend) BuildTransfer(context.Context, solana.PublicKey, uint64, uint64) (*solana.Transaction, error) {
	return &solana.Transaction{}, nil
}

func (b *stubBackend) SignTransaction(*solana.Transaction) error {
	b.mu.Lock()
	b.signed++
	b.mu.Unlock()
	return nil
}

func (b *stubBackend) Send(context.Context, *solana.Transaction) (solana.Signature, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendCalls++
	if b.sendCalls <= b.sendFails {
		return solana.Signature{}, errors.New("blockhash not found")
	}
	return solana.Signature{1}, nil
}

func (b *stubBackend) WaitForConfirmation(context.Context, solana.Signature, time.Duration, time.Duration) error {
	return b.confirmErr
}

func (b *stubBackend) sends() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendCalls
}

type stubQuotes struct {
	mu     sync.Mutex
	builds int
}

func (q *stubQuotes) GetQuote(_ context.Context, in, out string, amount uint64, bps int) (*jupiter.Quote, error) {
	return &jupiter.Quote{InputMint: in, OutputMint: out, OutAmount: "100", SlippageBps: bps}, nil
}

func (q *stubQuotes) BuildSwapTransaction(context.Context, solana.PublicKey, *jupiter.Quote, uint64) (*solana.Transaction, error) {
	q.mu.Lock()
	q.builds++
	q.mu.Unlock()
	return &solana.Transaction{}, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *captureNotifier) TxUpdate(_ context.Context, kind, status, _ string, _ float64) {
	n.mu.Lock()
	n.events = append(n.events, kind+":"+status)
	n.mu.Unlock()
}

func (n *captureNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	copy(out, n.events)
	return out
}

func testConfig() Config {
	return Config{MaxInFlight: 2, ConfirmTimeout: time.Second, ConfirmPoll: 10 * time.Millisecond, SendRetries: 3}
}

func waitResults(t *testing.T, e *Engine, n int) []Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if res := e.Results(); len(res) >= n {
			return res
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d results", n)
	return nil
}

func transferReq(lamports uint64) Request {
	return Request{
		Kind:     KindTransfer,
		Priority: Medium,
		To:       solana.NewWallet().PublicKey(),
		Lamports: lamports,
	}
}

func TestPriorityOrdering(t *testing.T) {
	e := New(zerolog.Nop(), &stubBackend{}, testConfig())
	ctx := context.Background()

	lowID, err := e.Submit(ctx, Request{Kind: KindTransfer, Priority: Low, To: solana.NewWallet().PublicKey(), Lamports: 1})
	if err != nil {
		t.Fatalf("Submit low: %v", err)
	}
	medID, _ := e.Submit(ctx, Request{Kind: KindTransfer, Priority: Medium, To: solana.NewWallet().PublicKey(), Lamports: 1})
	critID, _ := e.Submit(ctx, Request{Kind: KindTransfer, Priority: Critical, To: solana.NewWallet().PublicKey(), Lamports: 1})

	want := []string{critID, medID, lowID}
	for i, id := range want {
		req, ok := e.next()
		if !ok {
			t.Fatalf("next %d: queue empty", i)
		}
		if req.ID != id {
			t.Fatalf("pop %d = %s, want %s", i, req.ID, id)
		}
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	e := New(zerolog.Nop(), &stubBackend{}, testConfig())
	ctx := context.Background()

	first, _ := e.Submit(ctx, transferReq(1))
	second, _ := e.Submit(ctx, transferReq(1))

	req, _ := e.next()
	if req.ID != first {
		t.Fatalf("first pop = %s, want %s", req.ID, first)
	}
	req, _ = e.next()
	if req.ID != second {
		t.Fatalf("second pop = %s, want %s", req.ID, second)
	}
}

func TestSubmitValidation(t *testing.T) {
	e := New(zerolog.Nop(), &stubBackend{}, testConfig())
	ctx := context.Background()

	if _, err := e.Submit(ctx, Request{Kind: KindTransfer, Lamports: 1}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
	if _, err := e.Submit(ctx, Request{Kind: KindTransfer, To: solana.NewWallet().PublicKey()}); err == nil {
		t.Fatal("expected error for zero lamports")
	}
	if _, err := e.Submit(ctx, Request{Kind: KindSwap, InputMint: "a", OutputMint: "b", AmountRaw: 1}); err == nil {
		t.Fatal("expected error for swap without quote support")
	}
	if _, err := e.Submit(ctx, Request{Kind: Kind("stake")}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRunConfirmsTransfer(t *testing.T) {
	backend := &stubBackend{balance: util.SOLToLamports(10)}
	notifier := &captureNotifier{}
	e := New(util.NewLogger("error"), backend, testConfig())
	e.Notifier = notifier

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if _, err := e.Submit(ctx, transferReq(10_000)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res := waitResults(t, e, 1)
	if res[0].Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed (err: %v)", res[0].Status, res[0].Err)
	}
	if res[0].Signature == (solana.Signature{}) {
		t.Fatal("expected a signature on the result")
	}

	events := notifier.seen()
	if len(events) != 2 || events[0] != "transfer:sent" || events[1] != "transfer:confirmed" {
		t.Fatalf("notifier events = %v", events)
	}
}

func TestRunRejectsOverLimit(t *testing.T) {
	backend := &stubBackend{balance: util.SOLToLamports(10)}
	e := New(util.NewLogger("error"), backend, testConfig())
	e.Guard = risk.NewGuard(risk.Limits{MaxSOLPerTrade: 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if _, err := e.Submit(ctx, transferReq(util.SOLToLamports(1))); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res := waitResults(t, e, 1)
	if res[0].Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res[0].Status)
	}
	if !errors.Is(res[0].Err, risk.ErrTradeTooLarge) {
		t.Fatalf("err = %v, want ErrTradeTooLarge", res[0].Err)
	}
	if backend.sends() != 0 {
		t.Fatal("rejected request must never be sent")
	}
}

func TestRunSwap(t *testing.T) {
	backend := &stubBackend{balance: util.SOLToLamports(10)}
	quotes := &stubQuotes{}
	e := New(util.NewLogger("error"), backend, testConfig())
	e.Quotes = quotes

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	req := Request{
		Kind:       KindSwap,
		Priority:   High,
		InputMint:  tokens.MintSOL,
		OutputMint: tokens.MintUSDC,
		AmountRaw:  10_000_000,
		TokenIn:    "SOL",
		TokenOut:   "USDC",
	}
	if _, err := e.Submit(ctx, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res := waitResults(t, e, 1)
	if res[0].Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed (err: %v)", res[0].Status, res[0].Err)
	}
	if quotes.builds != 1 {
		t.Fatalf("swap builds = %d, want 1", quotes.builds)
	}
	backend.mu.Lock()
	signed := backend.signed
	backend.mu.Unlock()
	if signed != 1 {
		t.Fatalf("signed = %d, want 1", signed)
	}
}

func TestSendRetries(t *testing.T) {
	backend := &stubBackend{balance: util.SOLToLamports(10), sendFails: 2}
	e := New(util.NewLogger("error"), backend, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if _, err := e.Submit(ctx, transferReq(10_000)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res := waitResults(t, e, 1)
	if res[0].Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed after retries (err: %v)", res[0].Status, res[0].Err)
	}
	if backend.sends() != 3 {
		t.Fatalf("send calls = %d, want 3", backend.sends())
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	backend := &stubBackend{balance: util.SOLToLamports(10), sendFails: 99}
	e := New(util.NewLogger("error"), backend, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if _, err := e.Submit(ctx, transferReq(10_000)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res := waitResults(t, e, 1)
	if res[0].Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res[0].Status)
	}
	if backend.sends() != 3 {
		t.Fatalf("send calls = %d, want 3", backend.sends())
	}
}

func TestCancelPendingOnly(t *testing.T) {
	e := New(zerolog.Nop(), &stubBackend{}, testConfig())
	ctx := context.Background()

	id, err := e.Submit(ctx, transferReq(1))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !e.Cancel(ctx, id) {
		t.Fatal("first cancel should succeed")
	}
	if e.Cancel(ctx, id) {
		t.Fatal("second cancel should fail")
	}
	if e.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", e.Pending())
	}
	if _, ok := e.next(); ok {
		t.Fatal("cancelled request must not be dequeued")
	}

	res := e.Results()
	if len(res) != 1 || res[0].Status != StatusCancelled {
		t.Fatalf("results = %+v, want one cancelled", res)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	e := New(util.NewLogger("error"), &stubBackend{balance: util.SOLToLamports(10)}, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	if _, err := e.Submit(context.Background(), transferReq(10_000)); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if e.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after stop", e.Pending())
	}
	if got := e.Results(); len(got) != 0 {
		t.Fatalf("results = %+v, want none for a refused submit", got)
	}
}

func TestStopCancelsQueued(t *testing.T) {
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), util.NewLogger("error"))
	if err != nil {
		t.Fatalf("journal open: %v", err)
	}
	defer store.Close()

	e := New(util.NewLogger("error"), &stubBackend{}, testConfig())
	e.Journal = store
	ctx := context.Background()

	id, err := e.Submit(ctx, transferReq(10_000))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	stopCtx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Run(stopCtx)

	res := e.Results()
	if len(res) != 1 || res[0].Status != StatusCancelled {
		t.Fatalf("results = %+v, want one cancelled", res)
	}
	if res[0].Request.ID != id {
		t.Fatalf("result id = %s, want %s", res[0].Request.ID, id)
	}
	if e.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after drain", e.Pending())
	}

	recent, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recent[0].Status != string(StatusCancelled) {
		t.Fatalf("journal status = %s, want cancelled", recent[0].Status)
	}
}

func TestResultsRing(t *testing.T) {
	e := New(zerolog.Nop(), &stubBackend{}, testConfig())
	for i := 0; i < resultsCap+5; i++ {
		e.record(Result{Request: Request{ID: string(rune('a' + i%26))}, Status: StatusConfirmed})
	}
	if got := len(e.Results()); got != resultsCap {
		t.Fatalf("results len = %d, want %d", got, resultsCap)
	}
}

func TestJournalLifecycle(t *testing.T) {
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), util.NewLogger("error"))
	if err != nil {
		t.Fatalf("journal open: %v", err)
	}
	defer store.Close()

	backend := &stubBackend{balance: util.SOLToLamports(10)}
	e := New(util.NewLogger("error"), backend, testConfig())
	e.Journal = store

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	id, err := e.Submit(ctx, transferReq(10_000))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitResults(t, e, 1)

	recent, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recent[0].ID != id {
		t.Fatalf("journal id = %s, want %s", recent[0].ID, id)
	}
	if recent[0].Status != string(StatusConfirmed) {
		t.Fatalf("journal status = %s, want confirmed", recent[0].Status)
	}
	if recent[0].Signature == "" {
		t.Fatal("journal should record the signature")
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"low":      Low,
		"HIGH":     High,
		"critical": Critical,
		"medium":   Medium,
		"":         Medium,
		"bogus":    Medium,
	}
	for in, want := range cases {
		if got := ParsePriority(in); got != want {
			t.Fatalf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
	if Critical.Fee() != FeeCritical || Low.Fee() != FeeLow {
		t.Fatal("fee table mismatch")
	}
}
