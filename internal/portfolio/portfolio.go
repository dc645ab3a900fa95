// Package portfolio tracks observed on-chain holdings for one wallet.
// Amounts come from balance reads and confirmed fills only; valuations
// use live prices and are never extrapolated.
package portfolio

import (
	"sync"
	"time"
)

const epsilon = 1e-9

type holdingState struct {
	Amount    float64
	UpdatedAt time.Time
}

// Book is a thread-safe map of token symbol to held amount in UI units.
type Book struct {
	mu       sync.Mutex
	now      func() time.Time
	holdings map[string]holdingState
}

// HoldingSnapshot is a read-only view of one holding. Priced is false
// when no quote was available, in which case ValueUSD is zero.
type HoldingSnapshot struct {
	Amount    float64
	PriceUSD  float64
	ValueUSD  float64
	Priced    bool
	UpdatedAt time.Time
}

// Snapshot is a point-in-time view of the whole book. TotalUSD sums only
// the priced holdings.
type Snapshot struct {
	Holdings map[string]HoldingSnapshot
	TotalUSD float64
	At       time.Time
}

func NewBook() *Book {
	return &Book{
		now:      time.Now,
		holdings: make(map[string]holdingState),
	}
}

// SetBalance overwrites one holding with a freshly observed amount.
func (b *Book) SetBalance(symbol string, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount <= epsilon {
		delete(b.holdings, symbol)
		return
	}
	b.holdings[symbol] = holdingState{Amount: amount, UpdatedAt: b.now()}
}

// SetBalances replaces the whole book with one balance read.
func (b *Book) SetBalances(amounts map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.holdings = make(map[string]holdingState, len(amounts))
	for symbol, amount := range amounts {
		if amount > epsilon {
			b.holdings[symbol] = holdingState{Amount: amount, UpdatedAt: now}
		}
	}
}

// ApplyFill adjusts a holding after a confirmed trade. Negative deltas
// saturate at zero rather than going short; the next balance read
// reconciles any drift.
func (b *Book) ApplyFill(symbol string, delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.holdings[symbol]
	next := state.Amount + delta
	if next <= epsilon {
		delete(b.holdings, symbol)
		return
	}
	b.holdings[symbol] = holdingState{Amount: next, UpdatedAt: b.now()}
}

// Amount returns the held amount for one symbol.
func (b *Book) Amount(symbol string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holdings[symbol].Amount
}

// Symbols lists the currently held tokens.
func (b *Book) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.holdings))
	for symbol := range b.holdings {
		out = append(out, symbol)
	}
	return out
}

// Snapshot copies the book, marking holdings with the supplied USD
// prices. Holdings without a price are listed unpriced, not guessed.
func (b *Book) Snapshot(prices map[string]float64) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	holdings := make(map[string]HoldingSnapshot, len(b.holdings))
	total := 0.0
	for symbol, state := range b.holdings {
		price, ok := prices[symbol]
		snap := HoldingSnapshot{
			Amount:    state.Amount,
			UpdatedAt: state.UpdatedAt,
		}
		if ok && price > 0 {
			snap.PriceUSD = price
			snap.ValueUSD = state.Amount * price
			snap.Priced = true
			total += snap.ValueUSD
		}
		holdings[symbol] = snap
	}

	return Snapshot{
		Holdings: holdings,
		TotalUSD: total,
		At:       b.now(),
	}
}
