// Package prices caches spot prices so report and monitor loops never
// hammer the price API. Values are served from cache inside the TTL and
// a failed refresh falls back to the last known value.
package prices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultTTL = 60 * time.Second

// Source fetches spot prices keyed by the requested ids.
type Source interface {
	Price(ctx context.Context, ids ...string) (map[string]float64, error)
}

type entry struct {
	price float64
	at    time.Time
}

type Cache struct {
	log    zerolog.Logger
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

func NewCache(log zerolog.Logger, source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		log:     log,
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]entry{},
	}
}

// Get returns the price for one id, refreshing it when the cached value
// is older than the TTL. A failed refresh serves the stale value.
func (c *Cache) Get(ctx context.Context, id string) (float64, error) {
	got, err := c.GetAll(ctx, id)
	if err != nil {
		return 0, err
	}
	price, ok := got[id]
	if !ok {
		return 0, fmt.Errorf("no price for %s", id)
	}
	return price, nil
}

// GetAll resolves several ids at once, fetching only the missing or
// expired ones.
func (c *Cache) GetAll(ctx context.Context, ids ...string) (map[string]float64, error) {
	now := c.now()
	out := make(map[string]float64, len(ids))
	var missing []string

	c.mu.RLock()
	for _, id := range ids {
		if e, ok := c.entries[id]; ok && now.Sub(e.at) < c.ttl {
			out[id] = e.price
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.source.Price(ctx, missing...)
	if err != nil {
		// Serve whatever we still hold rather than failing the caller.
		stale := 0
		c.mu.RLock()
		for _, id := range missing {
			if e, ok := c.entries[id]; ok {
				out[id] = e.price
				stale++
			}
		}
		c.mu.RUnlock()
		if stale == len(missing) {
			c.log.Warn().Err(err).Int("stale", stale).Msg("price refresh failed, serving cached values")
			return out, nil
		}
		return nil, fmt.Errorf("price fetch: %w", err)
	}

	c.mu.Lock()
	for id, price := range fresh {
		c.entries[id] = entry{price: price, at: now}
		out[id] = price
	}
	c.mu.Unlock()
	return out, nil
}

// Snapshot copies every cached price regardless of age.
func (c *Cache) Snapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.price
	}
	return out
}

// Run refreshes prices on a fixed interval until the context is
// cancelled. The id set is re-read from the callback on every tick, so
// tokens registered after startup join the refresh. Failures are logged
// and the loop keeps going.
func (c *Cache) Run(ctx context.Context, ids func() []string, interval time.Duration) {
	if ids == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	refresh := func() {
		want := ids()
		if len(want) == 0 {
			return
		}
		rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		fresh, err := c.source.Price(rctx, want...)
		if err != nil {
			c.log.Warn().Err(err).Msg("price refresh failed")
			return
		}
		now := c.now()
		c.mu.Lock()
		for id, price := range fresh {
			c.entries[id] = entry{price: price, at: now}
		}
		c.mu.Unlock()
		c.log.Debug().Int("prices", len(fresh)).Msg("price cache refreshed")
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
