// Package monitor watches the wallet's SOL balance, keeps a rolling
// history, and raises alerts when it crosses the configured thresholds.
// It can also sweep surplus SOL to a collection address through the
// transaction engine.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"soltrader-go/internal/engine"
	"soltrader-go/internal/metrics"
	"soltrader-go/internal/util"
)

// Level grades the wallet balance against the alert thresholds.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelLow      Level = "low"
	LevelCritical Level = "critical"
)

// Sample is one observed balance.
type Sample struct {
	At       time.Time
	Lamports uint64
}

// BalanceSource reads the watched wallet. wallet.Service implements it.
type BalanceSource interface {
	Owner() solana.PublicKey
	Balance(ctx context.Context) (uint64, error)
}

// Submitter queues sweep transfers. engine.Engine implements it.
type Submitter interface {
	Submit(ctx context.Context, req engine.Request) (string, error)
}

// Alerter forwards balance alerts to an external channel.
type Alerter interface {
	Alert(ctx context.Context, level, message string)
}

type Config struct {
	PollInterval time.Duration
	LowSOL       float64
	CriticalSOL  float64
	HistoryDepth int

	SweepEnabled   bool
	SweepTarget    string
	SweepThreshold float64
	SweepReserve   float64
	SweepInterval  time.Duration
}

// Monitor is the balance watcher. Optional collaborators are plain
// fields; set them before calling Run.
type Monitor struct {
	Submitter Submitter
	Alerter   Alerter

	log    zerolog.Logger
	source BalanceSource
	cfg    Config
	wallet string
	now    func() time.Time

	sweepTarget solana.PublicKey

	mu        sync.Mutex
	level     Level
	history   []Sample
	lastSweep time.Time
	sweeping  bool
}

func New(log zerolog.Logger, source BalanceSource, cfg Config) (*Monitor, error) {
	m := &Monitor{
		log:    log,
		source: source,
		cfg:    cfg,
		wallet: util.ShortAddr(source.Owner().String()),
		now:    time.Now,
	}
	if cfg.SweepEnabled {
		if cfg.SweepReserve <= 0 {
			return nil, fmt.Errorf("sweep reserve must be positive")
		}
		target, err := solana.PublicKeyFromBase58(cfg.SweepTarget)
		if err != nil {
			return nil, fmt.Errorf("sweep target: %w", err)
		}
		m.sweepTarget = target
	}
	return m, nil
}

// Run polls the balance on the configured interval until the context is
// cancelled. Failed reads are logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	if _, err := m.Check(ctx); err != nil {
		m.log.Warn().Err(err).Msg("initial balance check failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("balance watch stopped")
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.log.Warn().Err(err).Msg("balance check failed")
			}
		}
	}
}

// Check reads the balance once and runs it through recording, level
// grading, and the sweep rule.
func (m *Monitor) Check(ctx context.Context) (Sample, error) {
	lamports, err := m.source.Balance(ctx)
	if err != nil {
		return Sample{}, err
	}
	sample := m.apply(ctx, lamports)
	return sample, nil
}

func (m *Monitor) apply(ctx context.Context, lamports uint64) Sample {
	sample := Sample{At: m.now(), Lamports: lamports}
	metrics.WalletBalanceLamports.WithLabelValues(m.wallet).Set(float64(lamports))
	m.record(sample)
	m.transition(ctx, util.LamportsToSOL(lamports))
	m.maybeSweep(ctx, lamports)
	return sample
}

func (m *Monitor) record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, s)
	depth := m.cfg.HistoryDepth
	if depth <= 0 {
		depth = 1440
	}
	if len(m.history) > depth {
		m.history = m.history[len(m.history)-depth:]
	}
}

func (m *Monitor) classify(sol float64) Level {
	switch {
	case sol < m.cfg.CriticalSOL:
		return LevelCritical
	case sol < m.cfg.LowSOL:
		return LevelLow
	default:
		return LevelNormal
	}
}

func levelRank(l Level) int {
	switch l {
	case LevelCritical:
		return 0
	case LevelLow:
		return 1
	default:
		return 2
	}
}

// improve walks the level upward as far as the balance clears each exit
// threshold with 5% headroom.
func (m *Monitor) improve(cur Level, sol float64) Level {
	for {
		var exitAt float64
		var up Level
		switch cur {
		case LevelCritical:
			exitAt, up = m.cfg.CriticalSOL*1.05, LevelLow
		case LevelLow:
			exitAt, up = m.cfg.LowSOL*1.05, LevelNormal
		default:
			return cur
		}
		if sol < exitAt {
			return cur
		}
		cur = up
	}
}

func (m *Monitor) transition(ctx context.Context, sol float64) {
	next := m.classify(sol)

	m.mu.Lock()
	cur := m.level
	if cur == "" {
		m.level = next
		m.mu.Unlock()
		if next != LevelNormal {
			m.alert(ctx, next, sol)
		} else {
			m.log.Info().Str("wallet", m.wallet).Float64("sol", sol).Msg("balance watch started")
		}
		return
	}
	if levelRank(next) > levelRank(cur) {
		next = m.improve(cur, sol)
	}
	if next == cur {
		m.mu.Unlock()
		return
	}
	m.level = next
	m.mu.Unlock()
	m.alert(ctx, next, sol)
}

func (m *Monitor) alert(ctx context.Context, level Level, sol float64) {
	metrics.AlertsTotal.WithLabelValues(string(level)).Inc()
	switch level {
	case LevelCritical:
		m.log.Error().Str("wallet", m.wallet).Float64("sol", sol).Msg("balance critical")
	case LevelLow:
		m.log.Warn().Str("wallet", m.wallet).Float64("sol", sol).Msg("balance low")
	default:
		m.log.Info().Str("wallet", m.wallet).Float64("sol", sol).Msg("balance recovered")
	}
	if m.Alerter != nil {
		msg := fmt.Sprintf("wallet %s balance %s: %s", m.wallet, util.FormatSOL(util.SOLToLamports(sol)), level)
		m.Alerter.Alert(ctx, string(level), msg)
	}
}

func (m *Monitor) maybeSweep(ctx context.Context, lamports uint64) {
	if !m.cfg.SweepEnabled || m.Submitter == nil {
		return
	}
	sol := util.LamportsToSOL(lamports)
	if sol <= m.cfg.SweepThreshold {
		return
	}

	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	m.mu.Lock()
	if m.sweeping || m.now().Sub(m.lastSweep) < interval {
		m.mu.Unlock()
		return
	}
	m.sweeping = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.sweeping = false
		m.mu.Unlock()
	}()

	amount := util.SOLToLamports(sol - m.cfg.SweepReserve)
	if amount == 0 {
		return
	}
	id, err := m.Submitter.Submit(ctx, engine.Request{
		Kind:     engine.KindSweep,
		Priority: engine.High,
		To:       m.sweepTarget,
		Lamports: amount,
		Note:     "scheduled sweep",
	})
	if err != nil {
		// lastSweep stays untouched so the next check retries instead of
		// waiting out the full interval.
		m.log.Error().Err(err).Msg("sweep submit failed")
		return
	}
	m.mu.Lock()
	m.lastSweep = m.now()
	m.mu.Unlock()
	m.log.Info().
		Str("id", id).
		Uint64("lamports", amount).
		Str("to", util.ShortAddr(m.cfg.SweepTarget)).
		Msg("surplus sweep queued")
}

// Level returns the current balance grade.
func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level == "" {
		return LevelNormal
	}
	return m.level
}

// History copies the recorded samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.history))
	copy(out, m.history)
	return out
}

// Delta reports the balance change in SOL over the trailing window.
// The second return is false when fewer than two samples fall inside
// the window.
func (m *Monitor) Delta(window time.Duration) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) < 2 {
		return 0, false
	}
	latest := m.history[len(m.history)-1]
	cutoff := latest.At.Add(-window)
	for i := range m.history {
		s := m.history[i]
		if s.At.Before(cutoff) || s.At.Equal(latest.At) {
			continue
		}
		return util.LamportsToSOL(latest.Lamports) - util.LamportsToSOL(s.Lamports), true
	}
	return 0, false
}
