package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Runner regenerates the JSON and Markdown reports on a fixed interval.
type Runner struct {
	log       zerolog.Logger
	collector *Collector
	jsonPath  string
	mdPath    string
	interval  time.Duration
}

func NewRunner(log zerolog.Logger, collector *Collector, jsonPath, mdPath string, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Runner{
		log:       log,
		collector: collector,
		jsonPath:  jsonPath,
		mdPath:    mdPath,
		interval:  interval,
	}
}

// WriteOnce collects and renders both outputs.
func (r *Runner) WriteOnce(ctx context.Context) error {
	st, err := r.collector.Collect(ctx)
	if err != nil {
		return err
	}
	if r.jsonPath != "" {
		if err := WriteJSON(r.jsonPath, st); err != nil {
			return err
		}
	}
	if r.mdPath != "" {
		if err := WriteMarkdown(r.mdPath, st); err != nil {
			return err
		}
	}
	r.log.Info().
		Str("json", r.jsonPath).
		Str("markdown", r.mdPath).
		Float64("sol", st.BalanceSOL).
		Msg("status report written")
	return nil
}

// Run writes immediately and then on every tick until cancelled. A
// failed write is logged and retried next tick.
func (r *Runner) Run(ctx context.Context) {
	if err := r.WriteOnce(ctx); err != nil {
		r.log.Warn().Err(err).Msg("report write failed")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.WriteOnce(ctx); err != nil {
				r.log.Warn().Err(err).Msg("report write failed")
			}
		}
	}
}
