// Package jupiter talks to the Jupiter v6 aggregator HTTP API: quotes,
// swap transaction building, and the price endpoint. It never holds key
// material; callers sign and submit the transactions it builds.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"

	"soltrader-go/internal/metrics"
)

const userAgent = "soltrader-go/1.0 (jupiter)"

type Client struct {
	Base      string
	PriceBase string
	Http      *http.Client

	quoteLimiter *rate.Limiter
	priceLimiter *rate.Limiter
}

// Quote is the v6 quote response. RoutePlan is kept raw so the whole
// quote can be echoed back to the swap endpoint unchanged.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	OtherAmount    string          `json:"otherAmountThreshold"`
	SwapMode       string          `json:"swapMode"`
	SlippageBps    int             `json:"slippageBps"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      json.RawMessage `json:"routePlan"`
}

// OutAmountUint parses the quoted output amount in smallest units.
func (q *Quote) OutAmountUint() (uint64, error) {
	return strconv.ParseUint(q.OutAmount, 10, 64)
}

// PriceImpact returns the quoted price impact as a fraction, zero when
// the field is absent or unparsable.
func (q *Quote) PriceImpact() float64 {
	f, err := strconv.ParseFloat(q.PriceImpactPct, 64)
	if err != nil {
		return 0
	}
	return f
}

// RouteHops counts the legs in the quoted route.
func (q *Quote) RouteHops() int {
	var plan []json.RawMessage
	if err := json.Unmarshal(q.RoutePlan, &plan); err != nil {
		return 0
	}
	return len(plan)
}

func NewClient(base, priceBase string, quoteRate, priceRate float64) *Client {
	if quoteRate <= 0 {
		quoteRate = 5
	}
	if priceRate <= 0 {
		priceRate = 10
	}
	return &Client{
		Base:         strings.TrimRight(base, "/"),
		PriceBase:    strings.TrimRight(priceBase, "/"),
		Http:         &http.Client{Timeout: 8 * time.Second},
		quoteLimiter: rate.NewLimiter(rate.Limit(quoteRate), int(quoteRate)),
		priceLimiter: rate.NewLimiter(rate.Limit(priceRate), int(priceRate)),
	}
}

// GetQuote fetches an ExactIn quote. amount is in the input mint's
// smallest units.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	if err := c.quoteLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	q.Set("swapMode", "ExactIn")
	q.Set("onlyDirectRoutes", "false")
	u := c.Base + "/v6/quote?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.Http.Do(req)
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.QuotesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("jupiter quote status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var out Quote
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.QuotesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.QuotesTotal.WithLabelValues("ok").Inc()
	return &out, nil
}

// BuildSwapTransaction asks Jupiter for a ready-to-sign transaction for
// the quote and returns it decoded and unsigned. prioritizationFee is in
// lamports; zero lets Jupiter pick.
func (c *Client) BuildSwapTransaction(ctx context.Context, owner solana.PublicKey, quote *Quote, prioritizationFee uint64) (*solana.Transaction, error) {
	if err := c.quoteLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"userPublicKey":           owner.String(),
		"wrapAndUnwrapSol":        true,
		"asLegacyTransaction":     false,
		"useTokenLedger":          false,
		"dynamicComputeUnitLimit": true,
		"quoteResponse":           quote,
	}
	if prioritizationFee > 0 {
		payload["prioritizationFeeLamports"] = prioritizationFee
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+"/v6/swap", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter swap status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var sr struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}
	if sr.SwapTransaction == "" {
		return nil, fmt.Errorf("jupiter swap response missing transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal tx: %w", err)
	}
	return tx, nil
}

// Price fetches USD prices keyed exactly as requested (symbol or mint).
// Unknown ids are simply absent from the result.
func (c *Client) Price(ctx context.Context, ids ...string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	if err := c.priceLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	u := c.PriceBase + "/v4/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter price status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var pr struct {
		Data map[string]struct {
			ID    string  `json:"id"`
			Price float64 `json:"price"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(pr.Data))
	for id, entry := range pr.Data {
		out[id] = entry.Price
	}
	return out, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
