// Package config also contains chain-specific configuration surfaces.
package config

// Solana defines RPC connectivity: primary endpoint, ordered fallbacks,
// websocket endpoint, and the request budget applied to every call.
type Solana struct {
	RpcURL          string   `yaml:"rpc_url"`
	FallbackRpcURLs []string `yaml:"fallback_rpc_urls"`
	WsURL           string   `yaml:"ws_url"`
	Commitment      string   `yaml:"commitment"` // processed|confirmed|finalized
	RpcRatePerSec   float64  `yaml:"rpc_rate_per_sec"`
	RpcBurst        int      `yaml:"rpc_burst"`
}

// Wallet points at signing material. The key itself is loaded from the
// SOLANA_PRIVATE_KEY_BASE58 environment variable or from a keygen file at
// KeypairPath; it is never stored in YAML.
type Wallet struct {
	KeypairPath string `yaml:"keypair_path"`
}

// Jupiter configures the swap aggregator endpoints and call budgets.
// TrackSymbols lists extra tokens to pull from the aggregator token list;
// the built-in registry entries are always present regardless.
type Jupiter struct {
	BaseURL         string   `yaml:"base_url"`  // https://quote-api.jup.ag
	PriceURL        string   `yaml:"price_url"` // https://price.jup.ag
	TokenListURL    string   `yaml:"token_list_url"`
	TrackSymbols    []string `yaml:"track_symbols"`
	RefreshSecs     int      `yaml:"token_refresh_secs"`
	SlippageBps     int      `yaml:"slippage_bps"`
	QuoteRatePerSec float64  `yaml:"quote_rate_per_sec"`
	PriceRatePerSec float64  `yaml:"price_rate_per_sec"`
}
