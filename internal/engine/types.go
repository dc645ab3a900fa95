// Package engine queues, signs off, and tracks on-chain transactions.
// Requests are ordered by priority, capped in flight, and journaled
// through every status change.
package engine

import (
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
)

// Kind names what a request does on chain.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindSwap     Kind = "swap"
	KindSweep    Kind = "sweep"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Priority orders the queue. Higher priorities dequeue first and pay a
// larger fee.
type Priority int

const (
	Low Priority = iota
	Medium
	High
	Critical
)

// Fee tiers in lamports. The tier value is passed to Jupiter as the
// prioritization fee on swaps and to the compute budget program as the
// compute unit price on transfers.
const (
	FeeLow      uint64 = 10_000
	FeeMedium   uint64 = 100_000
	FeeHigh     uint64 = 1_000_000
	FeeCritical uint64 = 5_000_000
)

func (p Priority) Fee() uint64 {
	switch p {
	case Low:
		return FeeLow
	case High:
		return FeeHigh
	case Critical:
		return FeeCritical
	default:
		return FeeMedium
	}
}

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "medium"
	}
}

// ParsePriority maps a config or CLI string onto a tier, defaulting to
// Medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low
	case "high":
		return High
	case "critical":
		return Critical
	default:
		return Medium
	}
}

// Request describes one transaction to execute. Transfer and sweep
// requests fill To and Lamports; swap requests fill the mint fields.
type Request struct {
	ID       string
	Kind     Kind
	Priority Priority

	To       solana.PublicKey
	Lamports uint64

	InputMint   string
	OutputMint  string
	AmountRaw   uint64
	SlippageBps int
	TokenIn     string
	TokenOut    string

	// Note is free-form text carried into the journal, e.g.
	// "self-transfer" or "scheduled sweep".
	Note string

	SubmittedAt time.Time
}

// Result is the terminal outcome of a request.
type Result struct {
	Request   Request
	Status    Status
	Signature solana.Signature
	Err       error
	Elapsed   time.Duration
}
