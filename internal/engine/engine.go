package engine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"soltrader-go/internal/journal"
	"soltrader-go/internal/jupiter"
	"soltrader-go/internal/metrics"
	"soltrader-go/internal/risk"
	"soltrader-go/internal/rpcpool"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
)

const (
	defaultMaxInFlight = 5
	resultsCap         = 100
)

// ErrStopped is returned by Submit once Run has exited.
var ErrStopped = errors.New("engine stopped")

// Backend signs and submits transactions for one owner. wallet.Service
// implements it.
type Backend interface {
	Owner() solana.PublicKey
	Balance(ctx context.Context) (uint64, error)
	BuildTransfer(ctx context.Context, to solana.PublicKey, lamports, computeUnitPrice uint64) (*solana.Transaction, error)
	SignTransaction(tx *solana.Transaction) error
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature, timeout, poll time.Duration) error
}

// Quotes builds swap transactions. jupiter.Client implements it.
type Quotes interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error)
	BuildSwapTransaction(ctx context.Context, owner solana.PublicKey, quote *jupiter.Quote, prioritizationFee uint64) (*solana.Transaction, error)
}

// Notifier receives transaction status changes. Implementations must be
// safe to call from several workers.
type Notifier interface {
	TxUpdate(ctx context.Context, kind, status, signature string, amountSOL float64)
}

// Config bounds the engine's concurrency and patience.
type Config struct {
	MaxInFlight    int
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
	SendRetries    int
}

// Engine runs the transaction queue. Optional collaborators are plain
// fields; set them before calling Run.
type Engine struct {
	Quotes   Quotes
	Guard    *risk.Guard
	Journal  *journal.Store
	Notifier Notifier

	log     zerolog.Logger
	backend Backend
	cfg     Config

	mu       sync.Mutex
	queue    requestQueue
	byID     map[string]*queueItem
	seq      uint64
	results  []Result
	inflight int
	stopped  bool
	wake     chan struct{}
}

func New(log zerolog.Logger, backend Backend, cfg Config) *Engine {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = 400 * time.Millisecond
	}
	if cfg.SendRetries <= 0 {
		cfg.SendRetries = 3
	}
	return &Engine{
		log:     log,
		backend: backend,
		cfg:     cfg,
		byID:    map[string]*queueItem{},
		wake:    make(chan struct{}, 1),
	}
}

// Submit validates and enqueues a request, journaling it as pending.
// The returned id can be used with Cancel until the request is picked
// up by a worker. After Run has exited Submit returns ErrStopped.
func (e *Engine) Submit(ctx context.Context, req Request) (string, error) {
	if err := e.validate(&req); err != nil {
		return "", err
	}
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return "", ErrStopped
	}

	req.ID = uuid.NewString()
	req.SubmittedAt = time.Now().UTC()

	if e.Journal != nil {
		rec := journal.Record{
			ID:       req.ID,
			Kind:     string(req.Kind),
			Status:   string(StatusPending),
			Priority: req.Priority.String(),
			TokenIn:  req.TokenIn,
			TokenOut: req.TokenOut,
			Lamports: e.journalLamports(req),
			Note:     req.Note,
		}
		if err := e.Journal.Insert(ctx, rec); err != nil {
			e.log.Warn().Err(err).Str("id", req.ID).Msg("journal insert failed")
		}
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		// The engine stopped between the journal insert and the push;
		// resolve the row so it does not sit pending forever.
		if e.Journal != nil {
			if err := e.Journal.UpdateStatus(ctx, req.ID, string(StatusCancelled), "", ErrStopped.Error()); err != nil {
				e.log.Warn().Err(err).Str("id", req.ID).Msg("journal update failed")
			}
		}
		return "", ErrStopped
	}
	e.seq++
	it := &queueItem{req: req, seq: e.seq}
	heap.Push(&e.queue, it)
	e.byID[req.ID] = it
	e.mu.Unlock()

	e.signal()
	e.log.Info().
		Str("id", req.ID).
		Str("kind", string(req.Kind)).
		Str("priority", req.Priority.String()).
		Msg("request queued")
	return req.ID, nil
}

func (e *Engine) validate(req *Request) error {
	switch req.Kind {
	case KindTransfer, KindSweep:
		if req.To.IsZero() {
			return errors.New("transfer needs a recipient")
		}
		if req.Lamports == 0 {
			return errors.New("transfer needs a positive amount")
		}
	case KindSwap:
		if e.Quotes == nil {
			return errors.New("swap support not configured")
		}
		if req.InputMint == "" || req.OutputMint == "" {
			return errors.New("swap needs input and output mints")
		}
		if req.AmountRaw == 0 {
			return errors.New("swap needs a positive amount")
		}
		if req.SlippageBps <= 0 {
			req.SlippageBps = 50
		}
	default:
		return fmt.Errorf("unknown request kind %q", req.Kind)
	}
	return nil
}

// Cancel removes a still-pending request. Requests already picked up by
// a worker cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) bool {
	e.mu.Lock()
	it, ok := e.byID[id]
	if !ok || it.cancelled {
		e.mu.Unlock()
		return false
	}
	it.cancelled = true
	delete(e.byID, id)
	req := it.req
	e.mu.Unlock()

	if e.Journal != nil {
		if err := e.Journal.UpdateStatus(ctx, id, string(StatusCancelled), "", "cancelled before send"); err != nil {
			e.log.Warn().Err(err).Str("id", id).Msg("journal update failed")
		}
	}
	e.record(Result{Request: req, Status: StatusCancelled, Elapsed: time.Since(req.SubmittedAt)})
	statusMetric(req.Kind, StatusCancelled)
	e.log.Info().Str("id", id).Msg("request cancelled")
	return true
}

// Pending counts queued requests not yet picked up.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byID)
}

// InFlight counts requests currently being processed.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight
}

// Results copies the completed ring, oldest first.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Result, len(e.results))
	copy(out, e.results)
	return out
}

// Run processes the queue until the context is cancelled. In-flight
// requests each hold one slot of cfg.MaxInFlight. On exit the engine
// refuses further submissions and cancels whatever is still queued.
func (e *Engine) Run(ctx context.Context) {
	sem := make(chan struct{}, e.cfg.MaxInFlight)
	e.log.Info().Int("max_in_flight", e.cfg.MaxInFlight).Msg("engine started")
	defer e.stop()

	for {
		if ctx.Err() != nil {
			e.log.Info().Msg("engine stopped")
			return
		}
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			return
		case sem <- struct{}{}:
		}

		req, ok := e.next()
		if !ok {
			<-sem
			select {
			case <-ctx.Done():
				e.log.Info().Msg("engine stopped")
				return
			case <-e.wake:
			}
			continue
		}

		go func(req Request) {
			defer func() {
				<-sem
				e.mu.Lock()
				e.inflight--
				e.mu.Unlock()
			}()
			e.process(ctx, req)
		}(req)
	}
}

// stop flips the engine to refusing submissions and resolves every
// request still in the queue as cancelled, so each journal row reaches a
// terminal status even across a shutdown.
func (e *Engine) stop() {
	e.mu.Lock()
	e.stopped = true
	var orphans []Request
	for e.queue.Len() > 0 {
		it := heap.Pop(&e.queue).(*queueItem)
		if it.cancelled {
			continue
		}
		delete(e.byID, it.req.ID)
		orphans = append(orphans, it.req)
	}
	e.mu.Unlock()

	if len(orphans) == 0 {
		return
	}
	// The run context is already done; give the journal updates their own
	// deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, req := range orphans {
		e.log.Info().Str("id", req.ID).Msg("cancelling queued request on shutdown")
		e.finish(ctx, Result{Request: req, Status: StatusCancelled, Err: ErrStopped})
	}
}

func (e *Engine) next() (Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.queue.Len() > 0 {
		it := heap.Pop(&e.queue).(*queueItem)
		if it.cancelled {
			continue
		}
		delete(e.byID, it.req.ID)
		e.inflight++
		return it.req, true
	}
	return Request{}, false
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) process(ctx context.Context, req Request) {
	log := e.log.With().
		Str("id", req.ID).
		Str("kind", string(req.Kind)).
		Str("priority", req.Priority.String()).
		Logger()

	if err := e.checkRisk(ctx, req); err != nil {
		log.Warn().Err(err).Msg("rejected by risk limits")
		e.finish(ctx, Result{Request: req, Status: StatusFailed, Err: err})
		return
	}

	tx, err := e.build(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("build transaction failed")
		e.finish(ctx, Result{Request: req, Status: StatusFailed, Err: err})
		return
	}

	sig, err := e.send(ctx, tx)
	if err != nil {
		log.Error().Err(err).Msg("send failed")
		e.finish(ctx, Result{Request: req, Status: StatusFailed, Err: err})
		return
	}
	e.markSent(ctx, req, sig)
	log.Info().Str("sig", sig.String()).Msg("transaction sent")

	confirmStart := time.Now()
	err = e.backend.WaitForConfirmation(ctx, sig, e.cfg.ConfirmTimeout, e.cfg.ConfirmPoll)
	metrics.ConfirmSeconds.Observe(time.Since(confirmStart).Seconds())
	if err != nil {
		log.Error().Err(err).Str("sig", sig.String()).Msg("confirmation failed")
		e.finish(ctx, Result{Request: req, Status: StatusFailed, Signature: sig, Err: err})
		return
	}

	if e.Guard != nil {
		e.Guard.RecordSpend(util.LamportsToSOL(e.outflowLamports(req)))
	}
	log.Info().
		Str("sig", sig.String()).
		Dur("took", time.Since(req.SubmittedAt)).
		Msg("transaction confirmed")
	e.finish(ctx, Result{Request: req, Status: StatusConfirmed, Signature: sig})
}

func (e *Engine) checkRisk(ctx context.Context, req Request) error {
	if e.Guard == nil {
		return nil
	}
	out := e.outflowLamports(req)
	if out == 0 {
		return nil
	}
	balance, err := e.backend.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance for risk check: %w", err)
	}
	return e.Guard.CheckTrade(util.LamportsToSOL(out), util.LamportsToSOL(balance), req.SlippageBps)
}

// outflowLamports is the SOL leaving the wallet if the request lands.
// Swaps funded by a non-SOL token spend nothing beyond fees.
func (e *Engine) outflowLamports(req Request) uint64 {
	switch req.Kind {
	case KindTransfer, KindSweep:
		return req.Lamports
	case KindSwap:
		if req.InputMint == tokens.MintSOL {
			return req.AmountRaw
		}
	}
	return 0
}

func (e *Engine) journalLamports(req Request) uint64 {
	if req.Kind == KindSwap {
		return req.AmountRaw
	}
	return req.Lamports
}

func (e *Engine) build(ctx context.Context, req Request) (*solana.Transaction, error) {
	switch req.Kind {
	case KindTransfer, KindSweep:
		return e.backend.BuildTransfer(ctx, req.To, req.Lamports, req.Priority.Fee())
	case KindSwap:
		quote, err := e.Quotes.GetQuote(ctx, req.InputMint, req.OutputMint, req.AmountRaw, req.SlippageBps)
		if err != nil {
			return nil, fmt.Errorf("quote: %w", err)
		}
		tx, err := e.Quotes.BuildSwapTransaction(ctx, e.backend.Owner(), quote, req.Priority.Fee())
		if err != nil {
			return nil, fmt.Errorf("swap build: %w", err)
		}
		if err := e.backend.SignTransaction(tx); err != nil {
			return nil, fmt.Errorf("sign: %w", err)
		}
		return tx, nil
	}
	return nil, fmt.Errorf("unknown request kind %q", req.Kind)
}

func (e *Engine) send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.SendRetries; attempt++ {
		sig, err := e.backend.Send(ctx, tx)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("send attempt failed")
		select {
		case <-ctx.Done():
			return solana.Signature{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return solana.Signature{}, fmt.Errorf("send failed after %d attempts: %w", e.cfg.SendRetries, lastErr)
}

func (e *Engine) markSent(ctx context.Context, req Request, sig solana.Signature) {
	statusMetric(req.Kind, StatusSent)
	if e.Journal != nil {
		if err := e.Journal.UpdateStatus(ctx, req.ID, string(StatusSent), sig.String(), ""); err != nil {
			e.log.Warn().Err(err).Str("id", req.ID).Msg("journal update failed")
		}
	}
	if e.Notifier != nil {
		e.Notifier.TxUpdate(ctx, string(req.Kind), string(StatusSent), sig.String(), util.LamportsToSOL(e.outflowLamports(req)))
	}
}

func (e *Engine) finish(ctx context.Context, res Result) {
	if res.Elapsed == 0 && !res.Request.SubmittedAt.IsZero() {
		res.Elapsed = time.Since(res.Request.SubmittedAt)
	}
	e.record(res)
	statusMetric(res.Request.Kind, res.Status)
	if res.Request.Kind == KindSweep && res.Status == StatusConfirmed {
		metrics.SweepsTotal.Inc()
	}

	var sig, errMsg string
	if res.Signature != (solana.Signature{}) {
		sig = res.Signature.String()
	}
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	if e.Journal != nil {
		if err := e.Journal.UpdateStatus(ctx, res.Request.ID, string(res.Status), sig, errMsg); err != nil {
			e.log.Warn().Err(err).Str("id", res.Request.ID).Msg("journal update failed")
		}
	}
	if e.Notifier != nil {
		e.Notifier.TxUpdate(ctx, string(res.Request.Kind), string(res.Status), sig, util.LamportsToSOL(e.outflowLamports(res.Request)))
	}
}

func (e *Engine) record(res Result) {
	e.mu.Lock()
	e.results = append(e.results, res)
	if len(e.results) > resultsCap {
		e.results = e.results[len(e.results)-resultsCap:]
	}
	e.mu.Unlock()
}

func statusMetric(kind Kind, status Status) {
	switch kind {
	case KindSwap:
		metrics.SwapsTotal.WithLabelValues(string(status)).Inc()
	default:
		metrics.TransfersTotal.WithLabelValues(string(status)).Inc()
	}
}

// DynamicFee samples recent prioritization fees and suggests one and a
// half times the average, clamped to the static tier bounds. Errors fall
// back to the Medium tier.
func DynamicFee(ctx context.Context, pool *rpcpool.Pool) uint64 {
	fee := FeeMedium
	err := pool.Do(ctx, "getRecentPrioritizationFees", func(c *rpc.Client) error {
		out, err := c.GetRecentPrioritizationFees(ctx, nil)
		if err != nil {
			return err
		}
		var total, count uint64
		for _, f := range out {
			if f.PrioritizationFee > 0 {
				total += f.PrioritizationFee
				count++
			}
		}
		if count == 0 {
			return nil
		}
		computed := uint64(float64(total/count) * 1.5)
		if computed < FeeLow {
			computed = FeeLow
		}
		if computed > FeeCritical {
			computed = FeeCritical
		}
		fee = computed
		return nil
	})
	if err != nil {
		return FeeMedium
	}
	return fee
}
