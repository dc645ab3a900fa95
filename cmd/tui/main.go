package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"soltrader-go/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== SolTrader Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit risk limits")
		fmt.Println("3) Edit monitor and sweep settings")
		fmt.Println("4) Save config")
		fmt.Println("5) Write status report now")
		fmt.Println("6) Launch monitor daemon")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editMonitor(reader, cfg)
		case "4":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "5":
			runReport()
		case "6":
			launchMonitor(reader)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("App: %s (%s)\n", cfg.App.Name, cfg.App.Env)
	fmt.Printf("RPC endpoint: %s (+%d fallbacks)\n", cfg.Solana.RpcURL, len(cfg.Solana.FallbackRpcURLs))
	fmt.Printf("Commitment: %s\n", cfg.Solana.Commitment)
	fmt.Printf("Max SOL per trade: %.4f\n", cfg.Risk.MaxSOLPerTrade)
	fmt.Printf("Min reserve: %.4f SOL\n", cfg.Risk.MinReserveSOL)
	fmt.Printf("Max daily spend: %.4f SOL\n", cfg.Risk.MaxDailySpendSOL)
	fmt.Printf("Max slippage: %d bps\n", cfg.Risk.MaxSlippageBps)
	fmt.Printf("Balance poll: %ds | low %.4f SOL | critical %.4f SOL\n",
		cfg.Monitor.PollIntervalSecs, cfg.Monitor.LowBalanceSOL, cfg.Monitor.CriticalBalanceSOL)
	if cfg.Monitor.Sweep.Enabled {
		fmt.Printf("Sweep: above %.4f SOL to %s, keep %.4f SOL, every %ds\n",
			cfg.Monitor.Sweep.ThresholdSOL, cfg.Monitor.Sweep.TargetAddress,
			cfg.Monitor.Sweep.ReserveSOL, cfg.Monitor.Sweep.IntervalSecs)
	} else {
		fmt.Println("Sweep: disabled")
	}
	fmt.Printf("Reports: %s, %s (every %ds)\n",
		cfg.Report.JSONPath, cfg.Report.MarkdownPath, cfg.Report.IntervalSecs)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk Limits ---")
	cfg.Risk.MaxSOLPerTrade = promptFloat(reader, "Max SOL per trade", cfg.Risk.MaxSOLPerTrade)
	cfg.Risk.MinReserveSOL = promptFloat(reader, "Min reserve SOL", cfg.Risk.MinReserveSOL)
	cfg.Risk.MaxDailySpendSOL = promptFloat(reader, "Max daily spend SOL", cfg.Risk.MaxDailySpendSOL)
	cfg.Risk.MaxSlippageBps = int(promptFloat(reader, "Max slippage (bps)", float64(cfg.Risk.MaxSlippageBps)))
}

func editMonitor(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Monitor / Sweep ---")
	cfg.Monitor.PollIntervalSecs = int(promptFloat(reader, "Balance poll interval (secs)", float64(cfg.Monitor.PollIntervalSecs)))
	cfg.Monitor.LowBalanceSOL = promptFloat(reader, "Low balance threshold (SOL)", cfg.Monitor.LowBalanceSOL)
	cfg.Monitor.CriticalBalanceSOL = promptFloat(reader, "Critical balance threshold (SOL)", cfg.Monitor.CriticalBalanceSOL)
	cfg.Monitor.Sweep.Enabled = promptBool(reader, "Sweep enabled", cfg.Monitor.Sweep.Enabled)
	if cfg.Monitor.Sweep.Enabled {
		cfg.Monitor.Sweep.TargetAddress = promptString(reader, "Sweep target address", cfg.Monitor.Sweep.TargetAddress)
		cfg.Monitor.Sweep.ThresholdSOL = promptFloat(reader, "Sweep threshold (SOL)", cfg.Monitor.Sweep.ThresholdSOL)
		cfg.Monitor.Sweep.ReserveSOL = promptFloat(reader, "Sweep reserve (SOL)", cfg.Monitor.Sweep.ReserveSOL)
		cfg.Monitor.Sweep.IntervalSecs = int(promptFloat(reader, "Sweep interval (secs)", float64(cfg.Monitor.Sweep.IntervalSecs)))
	}
}

func runReport() {
	fmt.Println("Writing status report...")
	cmd := exec.Command("go", "run", "./cmd/report")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
	}
}

func launchMonitor(reader *bufio.Reader) {
	fmt.Println("Launching monitor daemon (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/monitor")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start monitor: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the daemon and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.4f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.4f\n", current)
		return current
	}
	return val
}

func promptBool(reader *bufio.Reader, label string, current bool) bool {
	fmt.Printf("%s [%t] (y/n): ", label, current)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "true":
		return true
	case "n", "no", "false":
		return false
	default:
		return current
	}
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
