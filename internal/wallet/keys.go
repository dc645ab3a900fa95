// Package wallet loads the holder's signing key and performs chain reads
// and transfers for it. Keys come from the environment or a keygen file;
// nothing in this package ever embeds or derives key material.
package wallet

import (
	"errors"
	"fmt"
	"os"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// EnvPrivateKey is the environment variable carrying the base58 signing key.
const EnvPrivateKey = "SOLANA_PRIVATE_KEY_BASE58"

func LoadPrivateKeyFromEnv() (solana.PrivateKey, error) {
	_ = godotenv.Load() // best-effort
	b58 := os.Getenv(EnvPrivateKey)
	if b58 == "" {
		return nil, errors.New("SOLANA_PRIVATE_KEY_BASE58 not set")
	}
	return solana.PrivateKeyFromBase58(b58)
}

// LoadPrivateKey prefers the environment and falls back to a Solana keygen
// JSON file when a path is configured.
func LoadPrivateKey(keypairPath string) (solana.PrivateKey, error) {
	if key, err := LoadPrivateKeyFromEnv(); err == nil {
		return key, nil
	}
	if keypairPath == "" {
		return nil, fmt.Errorf("no signing key: set %s or configure wallet.keypair_path", EnvPrivateKey)
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", keypairPath, err)
	}
	return key, nil
}
