package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WriteJSON writes the status document, creating parent directories as
// needed.
func WriteJSON(path string, st Status) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteMarkdown renders the human-readable summary, typically STATUS.md
// at the repository root.
func WriteMarkdown(path string, st Status) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(renderMarkdown(st)), 0o644)
}

func renderMarkdown(st Status) string {
	var b strings.Builder

	b.WriteString("# Wallet Status\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", st.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	if st.App != "" {
		fmt.Fprintf(&b, "- App: %s (%s)\n", st.App, st.Env)
	}
	fmt.Fprintf(&b, "- Wallet: `%s`\n", st.Wallet)
	if st.Endpoint != "" {
		fmt.Fprintf(&b, "- RPC: %s\n", st.Endpoint)
	}
	fmt.Fprintf(&b, "- Balance: %.4f SOL (%s)\n", st.BalanceSOL, st.Level)
	if st.TotalUSD > 0 {
		fmt.Fprintf(&b, "- Portfolio value: $%.2f\n", st.TotalUSD)
	}
	b.WriteString("\n")

	if len(st.Balances) > 0 {
		b.WriteString("## Holdings\n\n")
		b.WriteString("| Token | Amount | Price (USD) | Value (USD) |\n")
		b.WriteString("|-------|-------:|------------:|------------:|\n")
		symbols := make([]string, 0, len(st.Balances))
		for symbol := range st.Balances {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			bal := st.Balances[symbol]
			price, value := "-", "-"
			if bal.PriceUSD > 0 {
				price = fmt.Sprintf("%.2f", bal.PriceUSD)
				value = fmt.Sprintf("%.2f", bal.ValueUSD)
			}
			fmt.Fprintf(&b, "| %s | %.6f | %s | %s |\n", symbol, bal.Amount, price, value)
		}
		b.WriteString("\n")
	}

	if len(st.DeltasSOL) > 0 {
		b.WriteString("## Balance change\n\n")
		b.WriteString("| Window | Change (SOL) |\n")
		b.WriteString("|--------|-------------:|\n")
		for _, w := range deltaWindows {
			if delta, ok := st.DeltasSOL[w.label]; ok {
				fmt.Fprintf(&b, "| %s | %+.4f |\n", w.label, delta)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Queue\n\n")
	fmt.Fprintf(&b, "- Pending: %d\n", st.Pending)
	fmt.Fprintf(&b, "- In flight: %d\n", st.InFlight)
	if len(st.StatusCounts) > 0 {
		statuses := make([]string, 0, len(st.StatusCounts))
		for status := range st.StatusCounts {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		parts := make([]string, 0, len(statuses))
		for _, status := range statuses {
			parts = append(parts, fmt.Sprintf("%s %d", status, st.StatusCounts[status]))
		}
		fmt.Fprintf(&b, "- Journal: %s\n", strings.Join(parts, ", "))
	}
	b.WriteString("\n")

	if len(st.Recent) > 0 {
		b.WriteString("## Recent transactions\n\n")
		b.WriteString("| When | Kind | Status | Amount (SOL) | Signature |\n")
		b.WriteString("|------|------|--------|-------------:|-----------|\n")
		for _, tx := range st.Recent {
			sig := "-"
			if tx.Signature != "" {
				sig = "`" + shorten(tx.Signature) + "`"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %.4f | %s |\n",
				tx.At.Format("01-02 15:04"), tx.Kind, tx.Status, tx.AmountSOL, sig)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func shorten(sig string) string {
	if len(sig) <= 16 {
		return sig
	}
	return sig[:8] + "..." + sig[len(sig)-8:]
}
