// Package report gathers wallet state into a Status document and
// renders it as JSON under the data directory and as a Markdown summary
// at the repository root. An append-only JSONL activity log records
// every transaction status change.
package report

import (
	"context"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"soltrader-go/internal/journal"
	"soltrader-go/internal/monitor"
	"soltrader-go/internal/portfolio"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
	"soltrader-go/internal/wallet"
)

// Balance is one holding inside a Status. Price and value are present
// only when a live quote was available.
type Balance struct {
	Amount   float64 `json:"amount"`
	PriceUSD float64 `json:"price_usd,omitempty"`
	ValueUSD float64 `json:"value_usd,omitempty"`
}

// Transaction is a journal row shaped for the report.
type Transaction struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	AmountSOL float64   `json:"amount_sol,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Status is the full report document.
type Status struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	App          string             `json:"app"`
	Env          string             `json:"env"`
	Wallet       string             `json:"wallet"`
	Endpoint     string             `json:"endpoint"`
	BalanceSOL   float64            `json:"balance_sol"`
	Level        string             `json:"level"`
	Balances     map[string]Balance `json:"balances,omitempty"`
	TotalUSD     float64            `json:"total_usd,omitempty"`
	DeltasSOL    map[string]float64 `json:"deltas_sol,omitempty"`
	Pending      int                `json:"pending"`
	InFlight     int                `json:"in_flight"`
	StatusCounts map[string]int     `json:"status_counts,omitempty"`
	Recent       []Transaction      `json:"recent,omitempty"`
}

// BalanceReader is the slice of wallet.Service the collector needs.
type BalanceReader interface {
	Owner() solana.PublicKey
	Balance(ctx context.Context) (uint64, error)
	TokenBalances(ctx context.Context, registry *tokens.Registry) (map[string]wallet.TokenAmount, error)
}

// LevelSource exposes the monitor's grade and history windows.
type LevelSource interface {
	Level() monitor.Level
	Delta(window time.Duration) (float64, bool)
}

// QueueStats exposes the engine's queue depth.
type QueueStats interface {
	Pending() int
	InFlight() int
}

// PriceSource resolves USD prices for token symbols.
type PriceSource interface {
	GetAll(ctx context.Context, ids ...string) (map[string]float64, error)
}

// Collector assembles the Status. Wallet is required; every other
// source is optional and skipped when nil. Portfolio holds the valued
// holdings between collections; sharing it with the daemon lets
// confirmed outflows show up before the next balance read.
type Collector struct {
	App      string
	Env      string
	Endpoint string

	Wallet    BalanceReader
	Registry  *tokens.Registry
	Portfolio *portfolio.Book
	Monitor   LevelSource
	Prices    PriceSource
	Engine    QueueStats
	Journal   *journal.Store

	log zerolog.Logger
	now func() time.Time
}

func NewCollector(log zerolog.Logger, reader BalanceReader) *Collector {
	return &Collector{
		Wallet:    reader,
		Portfolio: portfolio.NewBook(),
		log:       log,
		now:       time.Now,
	}
}

var deltaWindows = []struct {
	label  string
	window time.Duration
}{
	{"1h", time.Hour},
	{"1d", 24 * time.Hour},
	{"1w", 7 * 24 * time.Hour},
	{"30d", 30 * 24 * time.Hour},
}

// Collect reads every configured source once. A failed SOL balance read
// fails the whole collection; optional sources degrade to warnings.
func (c *Collector) Collect(ctx context.Context) (Status, error) {
	st := Status{
		GeneratedAt: c.now().UTC(),
		App:         c.App,
		Env:         c.Env,
		Endpoint:    c.Endpoint,
		Wallet:      util.ShortAddr(c.Wallet.Owner().String()),
		Level:       string(monitor.LevelNormal),
	}

	lamports, err := c.Wallet.Balance(ctx)
	if err != nil {
		return Status{}, err
	}
	st.BalanceSOL = util.LamportsToSOL(lamports)

	if c.Registry != nil {
		book := c.Portfolio
		if book == nil {
			book = portfolio.NewBook()
		}
		amounts, err := c.Wallet.TokenBalances(ctx, c.Registry)
		if err != nil {
			c.log.Warn().Err(err).Msg("token balances unavailable for report")
		} else {
			ui := make(map[string]float64, len(amounts))
			for symbol, amount := range amounts {
				ui[symbol] = amount.Ui
			}
			book.SetBalances(ui)
		}

		var priced map[string]float64
		if c.Prices != nil {
			priced, err = c.Prices.GetAll(ctx, book.Symbols()...)
			if err != nil {
				c.log.Warn().Err(err).Msg("prices unavailable for report")
				priced = nil
			}
		}
		snap := book.Snapshot(priced)
		if len(snap.Holdings) > 0 {
			st.Balances = make(map[string]Balance, len(snap.Holdings))
			for symbol, h := range snap.Holdings {
				st.Balances[symbol] = Balance{Amount: h.Amount, PriceUSD: h.PriceUSD, ValueUSD: h.ValueUSD}
			}
			st.TotalUSD = snap.TotalUSD
		}
	}

	if c.Monitor != nil {
		st.Level = string(c.Monitor.Level())
		st.DeltasSOL = map[string]float64{}
		for _, w := range deltaWindows {
			if delta, ok := c.Monitor.Delta(w.window); ok {
				st.DeltasSOL[w.label] = delta
			}
		}
		if len(st.DeltasSOL) == 0 {
			st.DeltasSOL = nil
		}
	}

	if c.Engine != nil {
		st.Pending = c.Engine.Pending()
		st.InFlight = c.Engine.InFlight()
	}

	if c.Journal != nil {
		counts, err := c.Journal.CountByStatus(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("journal counts unavailable for report")
		} else if len(counts) > 0 {
			st.StatusCounts = counts
		}
		recent, err := c.Journal.Recent(ctx, 10)
		if err != nil {
			c.log.Warn().Err(err).Msg("journal history unavailable for report")
		} else {
			for _, rec := range recent {
				st.Recent = append(st.Recent, Transaction{
					ID:        rec.ID,
					Kind:      rec.Kind,
					Status:    rec.Status,
					AmountSOL: util.LamportsToSOL(rec.Lamports),
					Signature: rec.Signature,
					Error:     rec.Error,
					At:        rec.CreatedAt,
				})
			}
		}
	}

	return st, nil
}
