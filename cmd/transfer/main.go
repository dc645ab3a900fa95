// Binary transfer sends SOL from the configured wallet. Without -to it
// performs a self-transfer back to the wallet's own address, useful for
// exercising the full send path without moving funds anywhere.
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

	solana "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"soltrader-go/internal/config"
	"soltrader-go/internal/engine"
	"soltrader-go/internal/journal"
	"soltrader-go/internal/risk"
	"soltrader-go/internal/rpcpool"
	"soltrader-go/internal/util"
	"soltrader-go/internal/wallet"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "config file path")
	to := flag.String("to", "", "recipient address (default: own address, a self-transfer)")
	sol := flag.Float64("sol", 0, "amount in SOL")
	priority := flag.String("priority", "medium", "fee tier: low|medium|high|critical|auto")
	note := flag.String("note", "", "journal note")
	flag.Parse()

	if *sol <= 0 {
		log.Fatalf("-sol must be positive")
	}

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

	recipient := svc.Owner()
	if *to != "" {
		recipient, err = solana.PublicKeyFromBase58(*to)
		if err != nil {
			log.Fatalf("recipient: %v", err)
		}
	}
	self := recipient.Equals(svc.Owner())
	label := *note
	if self && label == "" {
		label = "self-transfer"
	}

	confirmTimeout := time.Duration(cfg.Engine.ConfirmTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout+30*time.Second)
	defer cancel()

	balance, err := svc.Balance(ctx)
	if err != nil {
		log.Fatalf("balance: %v", err)
	}
	guard := risk.NewGuard(risk.Limits{
		MaxSOLPerTrade:   cfg.Risk.MaxSOLPerTrade,
		MinReserveSOL:    cfg.Risk.MinReserveSOL,
		MaxDailySpendSOL: cfg.Risk.MaxDailySpendSOL,
		MaxSlippageBps:   cfg.Risk.MaxSlippageBps,
	})
	if err := guard.CheckTrade(*sol, util.LamportsToSOL(balance), 0); err != nil {
		log.Fatalf("risk: %v", err)
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
	lamports := util.SOLToLamports(*sol)
	if err := store.Insert(ctx, journal.Record{
		ID:       id,
		Kind:     string(engine.KindTransfer),
		Status:   string(engine.StatusPending),
		Priority: strings.ToLower(*priority),
		Lamports: lamports,
		Note:     label,
	}); err != nil {
		logger.Warn().Err(err).Msg("journal insert failed")
	}

	tx, err := svc.BuildTransfer(ctx, recipient, lamports, fee)
	if err != nil {
		finalize(ctx, store, id, string(engine.StatusFailed), "", err)
		log.Fatalf("build: %v", err)
	}

	sig, err := svc.Send(ctx, tx)
	if err != nil {
		finalize(ctx, store, id, string(engine.StatusFailed), "", err)
		log.Fatalf("send: %v", err)
	}
	finalize(ctx, store, id, string(engine.StatusSent), sig.String(), nil)

	if self {
		fmt.Printf("self-transfer of %s submitted: %s\n", util.FormatSOL(lamports), sig)
	} else {
		fmt.Printf("transfer of %s to %s submitted: %s\n", util.FormatSOL(lamports), util.ShortAddr(recipient.String()), sig)
	}

	poll := time.Duration(cfg.Engine.ConfirmPollMs) * time.Millisecond
	if err := svc.WaitForConfirmation(ctx, sig, confirmTimeout, poll); err != nil {
		finalize(ctx, store, id, string(engine.StatusFailed), sig.String(), err)
		log.Fatalf("confirm: %v", err)
	}
	finalize(ctx, store, id, string(engine.StatusConfirmed), sig.String(), nil)
	guard.RecordSpend(*sol)

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
