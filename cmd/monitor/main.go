// Binary monitor is the long-running daemon: it watches the wallet
// balance, executes queued transactions, refreshes prices, and writes
// periodic status reports until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"soltrader-go/internal/config"
	"soltrader-go/internal/engine"
	"soltrader-go/internal/journal"
	"soltrader-go/internal/jupiter"
	"soltrader-go/internal/metrics"
	"soltrader-go/internal/monitor"
	"soltrader-go/internal/notify"
	"soltrader-go/internal/portfolio"
	"soltrader-go/internal/prices"
	"soltrader-go/internal/report"
	"soltrader-go/internal/risk"
	"soltrader-go/internal/rpcpool"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
	"soltrader-go/internal/wallet"
)

// fanout delivers engine updates to every configured sink.
type fanout []engine.Notifier

func (f fanout) TxUpdate(ctx context.Context, kind, status, signature string, amountSOL float64) {
	for _, n := range f {
		n.TxUpdate(ctx, kind, status, signature, amountSOL)
	}
}

// bookFills reflects confirmed SOL outflows into the holdings book so
// reports see them before the next wallet read reconciles.
type bookFills struct{ book *portfolio.Book }

func (b bookFills) TxUpdate(_ context.Context, _, status, _ string, amountSOL float64) {
	if status == string(engine.StatusConfirmed) && amountSOL > 0 {
		b.book.ApplyFill("SOL", -amountSOL)
	}
}

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "config file path")
	flag.Parse()

	log := util.NewLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	key, err := wallet.LoadPrivateKey(cfg.Wallet.KeypairPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load wallet key")
	}

	endpoints := append([]string{getEnv("SOLANA_RPC_URL", cfg.Solana.RpcURL)}, cfg.Solana.FallbackRpcURLs...)
	pool := rpcpool.New(log, endpoints, cfg.Solana.RpcRatePerSec, cfg.Solana.RpcBurst)
	svc := wallet.NewService(pool, key, getEnv("SOLANA_COMMITMENT", cfg.Solana.Commitment), log)
	log.Info().
		Str("wallet", svc.Address()).
		Str("endpoint", pool.Endpoint()).
		Str("env", cfg.App.Env).
		Msg("monitor starting")

	registry := tokens.NewRegistry()
	refresher := tokens.NewRefresher(log, registry, cfg.Jupiter.TokenListURL, cfg.Jupiter.TrackSymbols,
		time.Duration(cfg.Jupiter.RefreshSecs)*time.Second)
	refresher.Start(ctx)

	jup := jupiter.NewClient(
		getEnv("JUPITER_BASE_URL", cfg.Jupiter.BaseURL),
		cfg.Jupiter.PriceURL,
		cfg.Jupiter.QuoteRatePerSec,
		cfg.Jupiter.PriceRatePerSec,
	)
	cache := prices.NewCache(log, jup, 0)
	go cache.Run(ctx, registry.Symbols, 0)

	store, err := journal.Open(filepath.Join(cfg.App.DataDir, "journal.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("open journal")
	}
	defer store.Close()

	recorder, err := report.NewRecorder(cfg.Report.ActivityPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open activity log")
	}
	defer recorder.Close()

	tg := notify.New(log, os.Getenv("TELEGRAM_BOT_TOKEN"), cfg.Notify.TelegramChatID)
	if !cfg.Notify.Enabled {
		tg = notify.New(log, "", "")
	}

	eng := engine.New(log, svc, engine.Config{
		MaxInFlight:    cfg.Engine.MaxInFlight,
		ConfirmTimeout: time.Duration(cfg.Engine.ConfirmTimeoutSecs) * time.Second,
		ConfirmPoll:    time.Duration(cfg.Engine.ConfirmPollMs) * time.Millisecond,
		SendRetries:    cfg.Engine.SendRetries,
	})
	eng.Quotes = jup
	eng.Guard = risk.NewGuard(risk.Limits{
		MaxSOLPerTrade:   cfg.Risk.MaxSOLPerTrade,
		MinReserveSOL:    cfg.Risk.MinReserveSOL,
		MaxDailySpendSOL: cfg.Risk.MaxDailySpendSOL,
		MaxSlippageBps:   cfg.Risk.MaxSlippageBps,
	})
	eng.Journal = store
	book := portfolio.NewBook()
	notifiers := fanout{recorder, bookFills{book}}
	if tg.Enabled() {
		notifiers = append(notifiers, tg)
	}
	eng.Notifier = notifiers
	go eng.Run(ctx)

	mon, err := monitor.New(log, svc, monitor.Config{
		PollInterval: time.Duration(cfg.Monitor.PollIntervalSecs) * time.Second,
		LowSOL:       cfg.Monitor.LowBalanceSOL,
		CriticalSOL:  cfg.Monitor.CriticalBalanceSOL,
		HistoryDepth: cfg.Monitor.HistoryDepth,

		SweepEnabled:   cfg.Monitor.Sweep.Enabled,
		SweepTarget:    cfg.Monitor.Sweep.TargetAddress,
		SweepThreshold: cfg.Monitor.Sweep.ThresholdSOL,
		SweepReserve:   cfg.Monitor.Sweep.ReserveSOL,
		SweepInterval:  time.Duration(cfg.Monitor.Sweep.IntervalSecs) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("monitor config")
	}
	mon.Submitter = eng
	mon.Alerter = tg
	go mon.Run(ctx)

	if cfg.Monitor.Subscribe && cfg.Solana.WsURL != "" {
		go func() {
			if err := mon.RunSubscribe(ctx, cfg.Solana.WsURL); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("account subscription stopped")
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pool.Health(ctx); err != nil {
					log.Warn().Err(err).Msg("no healthy rpc endpoint")
				}
			}
		}
	}()

	collector := report.NewCollector(log, svc)
	collector.App = cfg.App.Name
	collector.Env = cfg.App.Env
	collector.Endpoint = pool.Endpoint()
	collector.Registry = registry
	collector.Portfolio = book
	collector.Monitor = mon
	collector.Prices = cache
	collector.Engine = eng
	collector.Journal = store

	if tg.Enabled() {
		_ = tg.Send(ctx, fmt.Sprintf("balance watch started\nwallet %s", svc.Address()))
	}

	runner := report.NewRunner(log, collector, cfg.Report.JSONPath, cfg.Report.MarkdownPath,
		time.Duration(cfg.Report.IntervalSecs)*time.Second)
	runner.Run(ctx)

	log.Info().Msg("shutting down")
	if tg.Enabled() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = tg.Send(shutdownCtx, "balance watch stopped")
		done()
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
