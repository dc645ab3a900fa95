package report

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"

	"soltrader-go/internal/journal"
	"soltrader-go/internal/monitor"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
	"soltrader-go/internal/wallet"
)

type stubReader struct {
	owner    solana.PublicKey
	lamports uint64
	balances map[string]wallet.TokenAmount
	err      error
	tokenErr error
}

func (s *stubReader) Owner() solana.PublicKey { return s.owner }

func (s *stubReader) Balance(context.Context) (uint64, error) {
	return s.lamports, s.err
}

func (s *stubReader) TokenBalances(context.Context, *tokens.Registry) (map[string]wallet.TokenAmount, error) {
	if s.tokenErr != nil {
		return nil, s.tokenErr
	}
	return s.balances, nil
}

type stubLevels struct {
	level  monitor.Level
	deltas map[time.Duration]float64
}

func (s *stubLevels) Level() monitor.Level { return s.level }

func (s *stubLevels) Delta(window time.Duration) (float64, bool) {
	d, ok := s.deltas[window]
	return d, ok
}

type stubQueue struct{ pending, inflight int }

func (s *stubQueue) Pending() int  { return s.pending }
func (s *stubQueue) InFlight() int { return s.inflight }

type stubPrices struct {
	prices map[string]float64
	err    error
}

func (s *stubPrices) GetAll(_ context.Context, ids ...string) (map[string]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := map[string]float64{}
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newTestCollector(t *testing.T) (*Collector, *stubReader) {
	t.Helper()
	reader := &stubReader{
		owner:    solana.NewWallet().PublicKey(),
		lamports: util.SOLToLamports(1.5),
		balances: map[string]wallet.TokenAmount{
			"SOL":  {Raw: util.SOLToLamports(1.5), Ui: 1.5, Decimals: 9},
			"USDC": {Raw: 100_000_000, Ui: 100, Decimals: 6},
		},
	}
	c := NewCollector(util.NewLogger("error"), reader)
	c.App = "soltrader"
	c.Env = "mainnet"
	c.Endpoint = "https://api.mainnet-beta.solana.com"
	return c, reader
}

func TestCollect(t *testing.T) {
	c, _ := newTestCollector(t)
	c.Registry = tokens.NewRegistry()
	c.Prices = &stubPrices{prices: map[string]float64{"SOL": 170, "USDC": 1}}
	c.Monitor = &stubLevels{
		level:  monitor.LevelNormal,
		deltas: map[time.Duration]float64{time.Hour: -0.25, 24 * time.Hour: 0.5},
	}
	c.Engine = &stubQueue{pending: 2, inflight: 1}

	st, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if st.BalanceSOL != 1.5 {
		t.Fatalf("balance = %f, want 1.5", st.BalanceSOL)
	}
	if st.Level != "normal" {
		t.Fatalf("level = %s", st.Level)
	}
	usdc := st.Balances["USDC"]
	if usdc.ValueUSD != 100 {
		t.Fatalf("USDC value = %f, want 100", usdc.ValueUSD)
	}
	if st.TotalUSD != 1.5*170+100 {
		t.Fatalf("total = %f", st.TotalUSD)
	}
	if st.DeltasSOL["1h"] != -0.25 || st.DeltasSOL["1d"] != 0.5 {
		t.Fatalf("deltas = %v", st.DeltasSOL)
	}
	if _, ok := st.DeltasSOL["30d"]; ok {
		t.Fatal("window without samples should be absent")
	}
	if st.Pending != 2 || st.InFlight != 1 {
		t.Fatalf("queue = %d/%d", st.Pending, st.InFlight)
	}
}

func TestCollectWalletErrorFails(t *testing.T) {
	c, reader := newTestCollector(t)
	reader.err = errors.New("rpc down")
	if _, err := c.Collect(context.Background()); err == nil {
		t.Fatal("expected error when the balance read fails")
	}
}

func TestCollectDegradesWithoutPrices(t *testing.T) {
	c, _ := newTestCollector(t)
	c.Registry = tokens.NewRegistry()
	c.Prices = &stubPrices{err: errors.New("price api down")}

	st, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect should degrade, got: %v", err)
	}
	if len(st.Balances) != 2 {
		t.Fatalf("balances = %d, want 2 without prices", len(st.Balances))
	}
	if st.TotalUSD != 0 {
		t.Fatalf("total = %f, want 0 without prices", st.TotalUSD)
	}
}

func TestCollectServesBookWhenReadFails(t *testing.T) {
	c, reader := newTestCollector(t)
	c.Registry = tokens.NewRegistry()
	c.Prices = &stubPrices{prices: map[string]float64{"SOL": 170, "USDC": 1}}

	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("first Collect: %v", err)
	}

	// A confirmed outflow lands in the shared book, then the token read
	// starts failing. The report should serve the adjusted holdings.
	c.Portfolio.ApplyFill("SOL", -0.5)
	reader.tokenErr = errors.New("rpc flaky")

	st, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	if got := st.Balances["SOL"].Amount; got != 1.0 {
		t.Fatalf("SOL = %f, want 1.0 from adjusted book", got)
	}
}

func TestCollectIncludesJournal(t *testing.T) {
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), util.NewLogger("error"))
	if err != nil {
		t.Fatalf("journal open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Insert(ctx, journal.Record{
		ID: "tx-1", Kind: "transfer", Status: "confirmed",
		Lamports: util.SOLToLamports(0.1), Signature: "sig123",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c, _ := newTestCollector(t)
	c.Journal = store

	st, err := c.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if st.StatusCounts["confirmed"] != 1 {
		t.Fatalf("counts = %v", st.StatusCounts)
	}
	if len(st.Recent) != 1 || st.Recent[0].AmountSOL != 0.1 {
		t.Fatalf("recent = %+v", st.Recent)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "status.json")
	st := Status{GeneratedAt: time.Now().UTC(), Wallet: "So11...1112", BalanceSOL: 2.25, Level: "normal"}
	if err := WriteJSON(path, st); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got Status
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.BalanceSOL != 2.25 || got.Wallet != "So11...1112" {
		t.Fatalf("got = %+v", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	st := Status{
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		App:         "soltrader",
		Env:         "mainnet",
		Wallet:      "So11...1112",
		BalanceSOL:  1.5,
		Level:       "low",
		Balances: map[string]Balance{
			"SOL":  {Amount: 1.5, PriceUSD: 170, ValueUSD: 255},
			"BONK": {Amount: 1000},
		},
		TotalUSD:  255,
		DeltasSOL: map[string]float64{"1h": -0.25},
		Recent: []Transaction{
			{Kind: "transfer", Status: "confirmed", AmountSOL: 0.01, Signature: strings.Repeat("x", 40), At: time.Now()},
		},
	}

	md := renderMarkdown(st)
	for _, want := range []string{
		"# Wallet Status",
		"1.5000 SOL (low)",
		"| SOL | 1.500000 | 170.00 | 255.00 |",
		"| BONK | 1000.000000 | - | - |",
		"| 1h | -0.2500 |",
		"Portfolio value: $255.00",
		"transfer | confirmed",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestRecorderAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "activity.jsonl")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	rec.Record(Activity{Kind: "transfer", Status: "sent", AmountSOL: 0.1})
	rec.TxUpdate(context.Background(), "transfer", "confirmed", "sig123", 0.1)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []Activity
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var a Activity
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, a)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].Status != "sent" || lines[1].Status != "confirmed" {
		t.Fatalf("statuses = %s, %s", lines[0].Status, lines[1].Status)
	}
	if lines[1].Signature != "sig123" {
		t.Fatalf("signature = %s", lines[1].Signature)
	}
	if lines[0].At.IsZero() {
		t.Fatal("entries should be stamped")
	}
}

func TestRunnerWriteOnce(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "data", "status.json")
	mdPath := filepath.Join(dir, "STATUS.md")

	c, _ := newTestCollector(t)
	runner := NewRunner(util.NewLogger("error"), c, jsonPath, mdPath, time.Minute)

	if err := runner.WriteOnce(context.Background()); err != nil {
		t.Fatalf("WriteOnce: %v", err)
	}
	if _, err := os.Stat(jsonPath); err != nil {
		t.Fatalf("json not written: %v", err)
	}
	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("markdown not written: %v", err)
	}
	if !strings.Contains(string(md), "# Wallet Status") {
		t.Fatal("markdown missing title")
	}
}
