// Binary swap quotes and executes a token swap through the Jupiter
// aggregator. With -dry-run it prints the quote and exits without
// touching the chain.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"soltrader-go/internal/config"
	"soltrader-go/internal/engine"
	"soltrader-go/internal/journal"
	"soltrader-go/internal/jupiter"
	"soltrader-go/internal/risk"
	"soltrader-go/internal/rpcpool"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
	"soltrader-go/internal/wallet"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "config file path")
	in := flag.String("in", "SOL", "input token symbol or mint")
	out := flag.String("out", "USDC", "output token symbol or mint")
	amount := flag.Float64("amount", 0, "input amount in UI units")
	slippageBps := flag.Int("slippage-bps", 0, "max slippage (default from config)")
	priority := flag.String("priority", "medium", "fee tier: low|medium|high|critical|auto")
	dryRun := flag.Bool("dry-run", false, "quote only, do not send")
	flag.Parse()

	if *amount <= 0 {
		log.Fatalf("-amount must be positive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := util.NewConsoleLogger(cfg.App.LogLevel, os.Stderr)

	confirmTimeout := time.Duration(cfg.Engine.ConfirmTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout+30*time.Second)
	defer cancel()

	registry := tokens.NewRegistry()
	if len(cfg.Jupiter.TrackSymbols) > 0 {
		refresher := tokens.NewRefresher(logger, registry, cfg.Jupiter.TokenListURL, cfg.Jupiter.TrackSymbols, 0)
		if err := refresher.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("token list refresh failed")
		}
	}
	tokenIn, err := registry.Resolve(*in)
	if err != nil {
		log.Fatalf("input token: %v", err)
	}
	tokenOut, err := registry.Resolve(*out)
	if err != nil {
		log.Fatalf("output token: %v", err)
	}
	if tokenIn.Mint == tokenOut.Mint {
		log.Fatalf("input and output are the same token")
	}

	slippage := *slippageBps
	if slippage <= 0 {
		slippage = cfg.Jupiter.SlippageBps
	}

	jup := jupiter.NewClient(
		getEnv("JUPITER_BASE_URL", cfg.Jupiter.BaseURL),
		cfg.Jupiter.PriceURL,
		cfg.Jupiter.QuoteRatePerSec,
		cfg.Jupiter.PriceRatePerSec,
	)

	amountRaw := tokens.ToRaw(tokenIn, *amount)
	quote, err := jup.GetQuote(ctx, tokenIn.Mint, tokenOut.Mint, amountRaw, slippage)
	if err != nil {
		log.Fatalf("quote: %v", err)
	}

	outRaw, err := quote.OutAmountUint()
	if err != nil {
		log.Fatalf("quote out amount: %v", err)
	}
	fmt.Printf("quote: %.6f %s -> %.6f %s\n", *amount, tokenIn.Symbol, tokens.ToUi(tokenOut, outRaw), tokenOut.Symbol)
	fmt.Printf("  price impact: %.4f%%  slippage: %d bps  route hops: %d\n",
		quote.PriceImpact()*100, slippage, quote.RouteHops())

	if *dryRun {
		return
	}

	key, err := wallet.LoadPrivateKey(cfg.Wallet.KeypairPath)
	if err != nil {
		log.Fatalf("wallet: %v", err)
	}
	endpoints := append([]string{getEnv("SOLANA_RPC_URL", cfg.Solana.RpcURL)}, cfg.Solana.FallbackRpcURLs...)
	pool := rpcpool.New(logger, endpoints, cfg.Solana.RpcRatePerSec, cfg.Solana.RpcBurst)
	svc := wallet.NewService(pool, key, getEnv("SOLANA_COMMITMENT", cfg.Solana.Commitment), logger)

	guard := risk.NewGuard(risk.Limits{
		MaxSOLPerTrade:   cfg.Risk.MaxSOLPerTrade,
		MinReserveSOL:    cfg.Risk.MinReserveSOL,
		MaxDailySpendSOL: cfg.Risk.MaxDailySpendSOL,
		MaxSlippageBps:   cfg.Risk.MaxSlippageBps,
	})
	spendSOL := 0.0
	if tokenIn.Mint == tokens.MintSOL {
		spendSOL = *amount
	}
	if spendSOL > 0 {
		balance, err := svc.Balance(ctx)
		if err != nil {
			log.Fatalf("balance: %v", err)
		}
		if err := guard.CheckTrade(spendSOL, util.LamportsToSOL(balance), slippage); err != nil {
			log.Fatalf("risk: %v", err)
		}
	}

	fee := engine.ParsePriority(*priority).Fee()
	if strings.EqualFold(*priority, "auto") {
		fee = engine.DynamicFee(ctx, pool)
		logger.Info().Uint64("lamports", fee).Msg("dynamic fee selected")
	}

	store, err := journal.Open(filepath.Join(cfg.App.DataDir, "journal.db"), logger)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}
	defer store.Close()

	id := uuid.NewString()
	if err := store.Insert(ctx, journal.Record{
		ID:       id,
		Kind:     string(engine.KindSwap),
		Status:   string(engine.StatusPending),
		Priority: strings.ToLower(*priority),
		TokenIn:  tokenIn.Symbol,
		TokenOut: tokenOut.Symbol,
		Lamports: util.SOLToLamports(spendSOL),
	}); err != nil {
		logger.Warn().Err(err).Msg("journal insert failed")
	}

	tx, err := jup.BuildSwapTransaction(ctx, svc.Owner(), quote, fee)
	if err != nil {
		finalize(ctx, store, id, string(engine.StatusFailed), "", err)
		log.Fatalf("build swap: %v", err)
	}
	if err := svc.SignTransaction(tx); err != nil {
		finalize(ctx, store, id, string(engine.StatusFailed), "", err)
		log.Fatalf("sign: %v", err)
	}

	sig, err := svc.Send(ctx, tx)
	if err != nil {
		finalize(ctx, store, id, string(engine.StatusFailed), "", err)
		log.Fatalf("send: %v", err)
	}
	finalize(ctx, store, id, string(engine.StatusSent), sig.String(), nil)
	fmt.Printf("swap submitted: %s\n", sig)

	poll := time.Duration(cfg.Engine.ConfirmPollMs) * time.Millisecond
	if err := svc.WaitForConfirmation(ctx, sig, confirmTimeout, poll); err != nil {
		finalize(ctx, store, id, string(engine.StatusFailed), sig.String(), err)
		log.Fatalf("confirm: %v", err)
	}
	finalize(ctx, store, id, string(engine.StatusConfirmed), sig.String(), nil)
	if spendSOL > 0 {
		guard.RecordSpend(spendSOL)
	}

	fmt.Printf("confirmed: https://solscan.io/tx/%s\n", sig)
}

func finalize(ctx context.Context, store *journal.Store, id, status, sig string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := store.UpdateStatus(ctx, id, status, sig, msg); err != nil {
		log.Printf("journal update: %v", err)
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
