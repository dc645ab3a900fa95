// Binary report writes the status snapshot once: JSON under the data
// directory and the Markdown summary at the repository root.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"soltrader-go/internal/config"
	"soltrader-go/internal/journal"
	"soltrader-go/internal/jupiter"
	"soltrader-go/internal/prices"
	"soltrader-go/internal/report"
	"soltrader-go/internal/rpcpool"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
	"soltrader-go/internal/wallet"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := util.NewConsoleLogger(cfg.App.LogLevel, os.Stderr)

	key, err := wallet.LoadPrivateKey(cfg.Wallet.KeypairPath)
	if err != nil {
		log.Fatalf("wallet: %v", err)
	}

	endpoints := append([]string{getEnv("SOLANA_RPC_URL", cfg.Solana.RpcURL)}, cfg.Solana.FallbackRpcURLs...)
	pool := rpcpool.New(logger, endpoints, cfg.Solana.RpcRatePerSec, cfg.Solana.RpcBurst)
	svc := wallet.NewService(pool, key, getEnv("SOLANA_COMMITMENT", cfg.Solana.Commitment), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	registry := tokens.NewRegistry()
	if refresher := tokens.NewRefresher(logger, registry, cfg.Jupiter.TokenListURL, cfg.Jupiter.TrackSymbols, 0); refresher != nil {
		if err := refresher.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("token list refresh failed")
		}
	}

	jup := jupiter.NewClient(
		getEnv("JUPITER_BASE_URL", cfg.Jupiter.BaseURL),
		cfg.Jupiter.PriceURL,
		cfg.Jupiter.QuoteRatePerSec,
		cfg.Jupiter.PriceRatePerSec,
	)

	store, err := journal.Open(filepath.Join(cfg.App.DataDir, "journal.db"), logger)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}
	defer store.Close()

	collector := report.NewCollector(logger, svc)
	collector.App = cfg.App.Name
	collector.Env = cfg.App.Env
	collector.Endpoint = pool.Endpoint()
	collector.Registry = registry
	collector.Prices = prices.NewCache(logger, jup, 0)
	collector.Journal = store

	st, err := collector.Collect(ctx)
	if err != nil {
		log.Fatalf("collect: %v", err)
	}
	if err := report.WriteJSON(cfg.Report.JSONPath, st); err != nil {
		log.Fatalf("write json: %v", err)
	}
	if err := report.WriteMarkdown(cfg.Report.MarkdownPath, st); err != nil {
		log.Fatalf("write markdown: %v", err)
	}

	fmt.Printf("wrote %s and %s (balance %.4f SOL)\n", cfg.Report.JSONPath, cfg.Report.MarkdownPath, st.BalanceSOL)
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
