package tokens

import "testing"

func TestRegistryBuiltins(t *testing.T) {
	reg := NewRegistry()

	sol, ok := reg.BySymbol("sol")
	if !ok {
		t.Fatalf("expected SOL builtin")
	}
	if sol.Mint != MintSOL || sol.Decimals != 9 {
		t.Fatalf("unexpected SOL token: %+v", sol)
	}

	usdc, ok := reg.ByMint(MintUSDC)
	if !ok || usdc.Symbol != "USDC" || usdc.Decimals != 6 {
		t.Fatalf("unexpected USDC token: %+v", usdc)
	}
}

func TestResolve(t *testing.T) {
	reg := NewRegistry()

	if tok, err := reg.Resolve("USDT"); err != nil || tok.Mint != MintUSDT {
		t.Fatalf("resolve by symbol failed: %+v %v", tok, err)
	}
	if tok, err := reg.Resolve(MintETH); err != nil || tok.Symbol != "ETH" {
		t.Fatalf("resolve by mint failed: %+v %v", tok, err)
	}
	if _, err := reg.Resolve("NOPE"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}

func TestAddDoesNotShadowBuiltins(t *testing.T) {
	reg := NewRegistry()

	if reg.Add(Token{Symbol: "SOL2", Mint: MintSOL, Decimals: 9}) {
		t.Fatalf("pinned mint must not be replaced")
	}
	if reg.Add(Token{Symbol: "usdc", Mint: "FakeMint1111111111111111111111111111111111", Decimals: 6}) {
		t.Fatalf("builtin symbol must not be shadowed")
	}
	if !reg.Add(Token{Symbol: "BONK", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5}) {
		t.Fatalf("expected new token to register")
	}
	if tok, err := reg.Resolve("BONK"); err != nil || tok.Decimals != 5 {
		t.Fatalf("added token not resolvable: %+v %v", tok, err)
	}
}

func TestRawUiConversions(t *testing.T) {
	usdc := Token{Symbol: "USDC", Mint: MintUSDC, Decimals: 6}
	if got := ToRaw(usdc, 1.5); got != 1_500_000 {
		t.Fatalf("expected 1500000, got %d", got)
	}
	if got := ToUi(usdc, 2_500_000); got != 2.5 {
		t.Fatalf("expected 2.5, got %f", got)
	}
	if got := ToRaw(usdc, -3); got != 0 {
		t.Fatalf("negative ui amount should clamp to 0, got %d", got)
	}
}
