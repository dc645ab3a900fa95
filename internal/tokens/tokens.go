// Package tokens maintains the mint registry used to resolve symbols,
// mint addresses, and decimal scaling for every chain operation.
package tokens

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Token describes one SPL mint the tooling knows how to trade and value.
type Token struct {
	Symbol   string
	Name     string
	Mint     string
	Decimals uint8
}

// Well-known mints. SOL here is the wrapped-SOL mint the aggregator expects.
const (
	MintSOL  = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	MintBTC  = "9n4nbM75f5Ui33ZbPYXn59EwSgE8CGsHtAeTH5YFeJ9E"
	MintETH  = "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs"
)

func builtins() []Token {
	return []Token{
		{Symbol: "SOL", Name: "Solana", Mint: MintSOL, Decimals: 9},
		{Symbol: "USDC", Name: "USD Coin", Mint: MintUSDC, Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Mint: MintUSDT, Decimals: 6},
		{Symbol: "BTC", Name: "Wrapped Bitcoin (Sollet)", Mint: MintBTC, Decimals: 6},
		{Symbol: "ETH", Name: "Wrapped Ethereum (Sollet)", Mint: MintETH, Decimals: 8},
	}
}

// Registry is a concurrency-safe symbol/mint lookup table. Built-in entries
// are pinned: refreshes may add tokens but never overwrite the built-ins.
type Registry struct {
	mu       sync.RWMutex
	bySymbol map[string]Token
	byMint   map[string]Token
	pinned   map[string]struct{}
}

// NewRegistry seeds the registry with the built-in token set.
func NewRegistry() *Registry {
	r := &Registry{
		bySymbol: make(map[string]Token),
		byMint:   make(map[string]Token),
		pinned:   make(map[string]struct{}),
	}
	for _, t := range builtins() {
		r.put(t)
		r.pinned[t.Mint] = struct{}{}
	}
	return r
}

func (r *Registry) put(t Token) {
	r.bySymbol[strings.ToUpper(t.Symbol)] = t
	r.byMint[t.Mint] = t
}

// BySymbol looks a token up by symbol, case-insensitive.
func (r *Registry) BySymbol(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// ByMint looks a token up by its mint address.
func (r *Registry) ByMint(mint string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byMint[strings.TrimSpace(mint)]
	return t, ok
}

// Resolve accepts either a symbol or a raw mint address.
func (r *Registry) Resolve(s string) (Token, error) {
	if t, ok := r.BySymbol(s); ok {
		return t, nil
	}
	if t, ok := r.ByMint(s); ok {
		return t, nil
	}
	return Token{}, fmt.Errorf("unknown token %q", s)
}

// Add registers a token unless it would shadow a pinned built-in mint or
// a built-in symbol. Returns true when the registry changed.
func (r *Registry) Add(t Token) bool {
	if t.Symbol == "" || t.Mint == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, pinned := r.pinned[t.Mint]; pinned {
		return false
	}
	if existing, ok := r.bySymbol[strings.ToUpper(t.Symbol)]; ok {
		if _, pinned := r.pinned[existing.Mint]; pinned {
			return false
		}
	}
	r.put(t)
	return true
}

// Symbols returns the registered symbols, unsorted.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bySymbol))
	for sym := range r.bySymbol {
		out = append(out, sym)
	}
	return out
}

// Mints returns the registered mint addresses, unsorted.
func (r *Registry) Mints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byMint))
	for mint := range r.byMint {
		out = append(out, mint)
	}
	return out
}

// Len reports the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byMint)
}

// ToRaw converts a UI amount into the token's smallest units.
func ToRaw(t Token, ui float64) uint64 {
	if ui <= 0 {
		return 0
	}
	return uint64(math.Round(ui * math.Pow10(int(t.Decimals))))
}

// ToUi converts smallest units into a UI amount.
func ToUi(t Token, raw uint64) float64 {
	return float64(raw) / math.Pow10(int(t.Decimals))
}
