// Package rpcpool manages the ordered set of Solana RPC endpoints: one
// active endpoint, fallbacks behind it, failover after repeated failures,
// and a shared request budget applied to every call.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"soltrader-go/internal/metrics"
)

const (
	defaultEndpoint = "https://api.mainnet-beta.solana.com"

	maxFailures = 3
	maxAttempts = 3
	baseBackoff = 250 * time.Millisecond
)

// EndpointError wraps a failure with the endpoint it happened on.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("rpc endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Retryable reports whether an error is worth another attempt. JSON-RPC
// level errors mean the node understood and rejected the request; those are
// permanent. Everything else is treated as transport trouble.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rpcErr *jsonrpc.RPCError
	return !errors.As(err, &rpcErr)
}

// Pool is safe for concurrent use.
type Pool struct {
	log     zerolog.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	endpoints []string
	clients   []*rpc.Client
	active    int
	failures  int
}

// New builds a pool from the primary endpoint followed by fallbacks. An
// empty list falls back to mainnet-beta.
func New(log zerolog.Logger, urls []string, ratePerSec float64, burst int) *Pool {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{defaultEndpoint}
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if burst <= 0 {
		burst = int(ratePerSec)
	}
	clients := make([]*rpc.Client, len(cleaned))
	for i, u := range cleaned {
		clients[i] = rpc.New(u)
	}
	return &Pool{
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), burst),
		endpoints: cleaned,
		clients:   clients,
	}
}

// Client returns the RPC client for the currently active endpoint.
func (p *Pool) Client() *rpc.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[p.active]
}

// Endpoint returns the currently active endpoint URL.
func (p *Pool) Endpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.active]
}

// Endpoints returns the configured endpoint list in order.
func (p *Pool) Endpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

func (p *Pool) current() (*rpc.Client, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[p.active], p.endpoints[p.active]
}

func (p *Pool) markSuccess() {
	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()
}

func (p *Pool) markFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	if p.failures < maxFailures || len(p.endpoints) < 2 {
		return
	}
	prev := p.endpoints[p.active]
	p.active = (p.active + 1) % len(p.endpoints)
	p.failures = 0
	metrics.EndpointSwitchesTotal.Inc()
	p.log.Warn().Str("from", prev).Str("to", p.endpoints[p.active]).Msg("rpc endpoint failover")
}

// Do runs fn against the active endpoint under the rate limit, retrying
// transient failures with exponential backoff and jitter. Permanent errors
// return immediately.
func (p *Pool) Do(ctx context.Context, method string, fn func(*rpc.Client) error) error {
	var lastErr error
	backoff := baseBackoff

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}
			backoff *= 2
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		client, endpoint := p.current()
		err := fn(client)
		if err == nil {
			metrics.RPCRequestsTotal.WithLabelValues(endpoint, method, "ok").Inc()
			p.markSuccess()
			return nil
		}
		metrics.RPCRequestsTotal.WithLabelValues(endpoint, method, "error").Inc()
		lastErr = &EndpointError{Endpoint: endpoint, Err: err}
		if !Retryable(err) {
			return lastErr
		}
		p.log.Debug().Err(err).Str("endpoint", endpoint).Str("method", method).Int("attempt", attempt+1).Msg("rpc call failed")
		p.markFailure()
	}
	return fmt.Errorf("rpc %s: attempts exhausted: %w", method, lastErr)
}

// Health checks the active endpoint and, when it is unhealthy, probes the
// fallbacks in order and promotes the first healthy one.
func (p *Pool) Health(ctx context.Context) error {
	client, endpoint := p.current()
	if _, err := client.GetHealth(ctx); err == nil {
		p.markSuccess()
		return nil
	} else {
		p.log.Warn().Err(err).Str("endpoint", endpoint).Msg("active endpoint unhealthy")
	}

	p.mu.Lock()
	candidates := make([]int, 0, len(p.endpoints))
	for i := range p.endpoints {
		if i != p.active {
			candidates = append(candidates, i)
		}
	}
	p.mu.Unlock()

	for _, i := range candidates {
		p.mu.Lock()
		client, url := p.clients[i], p.endpoints[i]
		p.mu.Unlock()
		if _, err := client.GetHealth(ctx); err != nil {
			continue
		}
		p.mu.Lock()
		p.active = i
		p.failures = 0
		p.mu.Unlock()
		metrics.EndpointSwitchesTotal.Inc()
		p.log.Info().Str("endpoint", url).Msg("promoted healthy rpc endpoint")
		return nil
	}
	return fmt.Errorf("no healthy rpc endpoint among %d configured", len(p.Endpoints()))
}
