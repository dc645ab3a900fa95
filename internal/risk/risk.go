// Package risk enforces hard spending limits before any transaction is
// signed. Every limit is expressed in SOL so operators can reason about
// caps without lamport arithmetic.
package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrTradeTooLarge = errors.New("trade exceeds per-trade cap")
	ErrBelowReserve  = errors.New("trade would breach wallet reserve")
	ErrDailyCapHit   = errors.New("daily spend cap reached")
	ErrSlippage      = errors.New("slippage above limit")
)

// Limits holds the static caps. A zero field disables that check.
type Limits struct {
	MaxSOLPerTrade   float64
	MinReserveSOL    float64
	MaxDailySpendSOL float64
	MaxSlippageBps   int
}

func (l Limits) AllowTrade(amountSOL float64) bool {
	return l.MaxSOLPerTrade <= 0 || amountSOL <= l.MaxSOLPerTrade
}

func (l Limits) AllowSlippage(bps int) bool {
	return l.MaxSlippageBps <= 0 || bps <= l.MaxSlippageBps
}

// Guard tracks cumulative daily spend on top of the static limits. The
// spend window rolls over at midnight UTC.
type Guard struct {
	mu     sync.Mutex
	limits Limits
	now    func() time.Time

	day      string
	spentSOL float64
}

func NewGuard(limits Limits) *Guard {
	return &Guard{limits: limits, now: time.Now}
}

func (g *Guard) Limits() Limits { return g.limits }

// CheckTrade validates one prospective outflow against every limit.
// balanceSOL is the wallet's current spendable balance.
func (g *Guard) CheckTrade(amountSOL, balanceSOL float64, slippageBps int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(g.now().UTC())

	if !g.limits.AllowTrade(amountSOL) {
		return fmt.Errorf("%w: %.4f SOL > %.4f SOL", ErrTradeTooLarge, amountSOL, g.limits.MaxSOLPerTrade)
	}
	if g.limits.MinReserveSOL > 0 && balanceSOL-amountSOL < g.limits.MinReserveSOL {
		return fmt.Errorf("%w: %.4f SOL left of %.4f SOL reserve", ErrBelowReserve, balanceSOL-amountSOL, g.limits.MinReserveSOL)
	}
	if g.limits.MaxDailySpendSOL > 0 && g.spentSOL+amountSOL > g.limits.MaxDailySpendSOL {
		return fmt.Errorf("%w: %.4f of %.4f SOL already spent today", ErrDailyCapHit, g.spentSOL, g.limits.MaxDailySpendSOL)
	}
	if !g.limits.AllowSlippage(slippageBps) {
		return fmt.Errorf("%w: %d bps > %d bps", ErrSlippage, slippageBps, g.limits.MaxSlippageBps)
	}
	return nil
}

// RecordSpend adds a completed outflow to today's total. Call it only
// after the transaction confirmed.
func (g *Guard) RecordSpend(amountSOL float64) {
	if amountSOL <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(g.now().UTC())
	g.spentSOL += amountSOL
}

// SpentToday reports the running total for the current UTC day.
func (g *Guard) SpentToday() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(g.now().UTC())
	return g.spentSOL
}

func (g *Guard) rollover(now time.Time) {
	day := now.Format("2006-01-02")
	if day != g.day {
		g.day = day
		g.spentSOL = 0
	}
}
