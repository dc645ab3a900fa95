// Binary balance prints the wallet's SOL and tracked token balances.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"soltrader-go/internal/config"
	"soltrader-go/internal/rpcpool"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
	"soltrader-go/internal/wallet"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "config file path")
	asJSON := flag.Bool("json", false, "machine-readable output")
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry := tokens.NewRegistry()
	if len(cfg.Jupiter.TrackSymbols) > 0 {
		refresher := tokens.NewRefresher(logger, registry, cfg.Jupiter.TokenListURL, cfg.Jupiter.TrackSymbols, 0)
		if err := refresher.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("token list refresh failed")
		}
	}

	balances, err := svc.TokenBalances(ctx, registry)
	if err != nil {
		log.Fatalf("balances: %v", err)
	}

	if *asJSON {
		out := struct {
			Address  string                        `json:"address"`
			Balances map[string]wallet.TokenAmount `json:"balances"`
		}{svc.Owner().String(), balances}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	fmt.Printf("wallet %s\n", svc.Owner())
	symbols := make([]string, 0, len(balances))
	for symbol := range balances {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		fmt.Printf("  %-8s %.6f\n", symbol, balances[symbol].Ui)
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
