package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultTokenListURL = "https://token.jup.ag/strict"

// Refresher enriches the registry from the aggregator token list so that
// configured symbols beyond the built-ins resolve to real mints.
type Refresher struct {
	log      zerolog.Logger
	registry *Registry
	client   *http.Client
	listURL  string
	want     map[string]struct{}
	interval time.Duration

	mu      sync.Mutex
	lastSet []string
}

type listEntry struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// NewRefresher constructs a refresher; returns nil when no extra symbols are
// requested, and callers treat a nil refresher as a no-op.
func NewRefresher(log zerolog.Logger, registry *Registry, listURL string, symbols []string, interval time.Duration) *Refresher {
	want := make(map[string]struct{})
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, ok := registry.BySymbol(sym); ok {
			continue
		}
		want[sym] = struct{}{}
	}
	if registry == nil || len(want) == 0 {
		return nil
	}
	if listURL == "" {
		listURL = defaultTokenListURL
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Refresher{
		log:      log,
		registry: registry,
		client:   &http.Client{Timeout: 10 * time.Second},
		listURL:  strings.TrimSuffix(listURL, "/"),
		want:     want,
		interval: interval,
	}
}

// Start launches the refresh loop in a goroutine.
func (r *Refresher) Start(ctx context.Context) {
	if r == nil {
		return
	}
	go r.loop(ctx)
}

func (r *Refresher) loop(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.log.Warn().Err(err).Msg("token list refresh failed")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn().Err(err).Msg("token list refresh failed")
			}
		}
	}
}

// Refresh performs a single fetch-and-merge cycle.
func (r *Refresher) Refresh(ctx context.Context) error {
	if r == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.listURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "soltrader-go/1.0 (tokens)")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token list status %d", resp.StatusCode)
	}
	var entries []listEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("decode token list: %w", err)
	}

	added := make([]string, 0, len(r.want))
	for _, e := range entries {
		sym := strings.ToUpper(e.Symbol)
		if _, wanted := r.want[sym]; !wanted {
			continue
		}
		if _, ok := r.registry.BySymbol(sym); ok {
			continue
		}
		if r.registry.Add(Token{Symbol: sym, Name: e.Name, Mint: e.Address, Decimals: e.Decimals}) {
			added = append(added, sym)
		}
	}
	r.logChange(added)
	return nil
}

func (r *Refresher) logChange(added []string) {
	sort.Strings(added)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(added) == 0 {
		return
	}
	r.lastSet = append(r.lastSet, added...)
	r.log.Info().Strs("added", added).Int("registry_size", r.registry.Len()).Msg("token registry updated")
}
