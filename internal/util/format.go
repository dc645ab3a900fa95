package util

import (
	"fmt"
	"math"
)

// LamportsPerSOL is the fixed lamport denomination of one SOL.
const LamportsPerSOL = 1_000_000_000

func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Round(sol * LamportsPerSOL))
}

// FormatSOL renders a lamport amount as a human-readable SOL string.
func FormatSOL(lamports uint64) string {
	return fmt.Sprintf("%.4f SOL", LamportsToSOL(lamports))
}

// ShortAddr compresses a base58 address for logs and reports.
func ShortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
