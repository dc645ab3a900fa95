package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"soltrader-go/internal/rpcpool"
	"soltrader-go/internal/tokens"
	"soltrader-go/internal/util"
)

// ErrConfirmTimeout marks a transaction that was sent but never reached
// confirmed status within the polling budget.
var ErrConfirmTimeout = errors.New("confirmation timed out")

// TokenAmount is a balance in both raw smallest units and UI units.
type TokenAmount struct {
	Raw      uint64  `json:"raw"`
	Ui       float64 `json:"ui"`
	Decimals uint8   `json:"decimals"`
}

// Commitment maps a config string onto the RPC commitment type,
// defaulting to confirmed.
func Commitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// Service performs balance reads and transfers for one owner key.
type Service struct {
	pool   *rpcpool.Pool
	owner  solana.PrivateKey
	commit rpc.CommitmentType
	log    zerolog.Logger
}

func NewService(pool *rpcpool.Pool, owner solana.PrivateKey, commitment string, log zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		owner:  owner,
		commit: Commitment(commitment),
		log:    log,
	}
}

// Owner returns the service's public key.
func (s *Service) Owner() solana.PublicKey { return s.owner.PublicKey() }

// Address returns the shortened owner address for logs and reports.
func (s *Service) Address() string { return util.ShortAddr(s.owner.PublicKey().String()) }

// Balance reads the owner's SOL balance in lamports.
func (s *Service) Balance(ctx context.Context) (uint64, error) {
	var out uint64
	err := s.pool.Do(ctx, "getBalance", func(c *rpc.Client) error {
		res, err := c.GetBalance(ctx, s.owner.PublicKey(), s.commit)
		if err != nil {
			return err
		}
		out = res.Value
		return nil
	})
	return out, err
}

// TokenBalance sums the owner's accounts for one mint. A wallet without an
// account for the mint reads as zero, not as an error.
func (s *Service) TokenBalance(ctx context.Context, token tokens.Token) (TokenAmount, error) {
	mint, err := solana.PublicKeyFromBase58(token.Mint)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("mint %s: %w", token.Mint, err)
	}

	var accounts []solana.PublicKey
	err = s.pool.Do(ctx, "getTokenAccountsByOwner", func(c *rpc.Client) error {
		res, err := c.GetTokenAccountsByOwner(
			ctx,
			s.owner.PublicKey(),
			&rpc.GetTokenAccountsConfig{Mint: &mint},
			&rpc.GetTokenAccountsOpts{Commitment: s.commit},
		)
		if err != nil {
			return err
		}
		accounts = accounts[:0]
		for _, acc := range res.Value {
			accounts = append(accounts, acc.Pubkey)
		}
		return nil
	})
	if err != nil {
		return TokenAmount{}, err
	}
	if len(accounts) == 0 {
		return TokenAmount{Decimals: token.Decimals}, nil
	}

	var raw uint64
	decimals := token.Decimals
	for _, account := range accounts {
		account := account
		err = s.pool.Do(ctx, "getTokenAccountBalance", func(c *rpc.Client) error {
			res, err := c.GetTokenAccountBalance(ctx, account, s.commit)
			if err != nil {
				return err
			}
			if res.Value == nil {
				return nil
			}
			var amt uint64
			if _, err := fmt.Sscan(res.Value.Amount, &amt); err != nil {
				return fmt.Errorf("parse token amount %q: %w", res.Value.Amount, err)
			}
			raw += amt
			decimals = res.Value.Decimals
			return nil
		})
		if err != nil {
			return TokenAmount{}, err
		}
	}
	return TokenAmount{
		Raw:      raw,
		Ui:       float64(raw) / pow10(decimals),
		Decimals: decimals,
	}, nil
}

// TokenBalances reads every registry token plus native SOL. Individual
// token read failures are logged and skipped; a SOL read failure is fatal.
func (s *Service) TokenBalances(ctx context.Context, registry *tokens.Registry) (map[string]TokenAmount, error) {
	lamports, err := s.Balance(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]TokenAmount{
		"SOL": {Raw: lamports, Ui: util.LamportsToSOL(lamports), Decimals: 9},
	}
	for _, sym := range registry.Symbols() {
		if sym == "SOL" {
			continue
		}
		token, ok := registry.BySymbol(sym)
		if !ok {
			continue
		}
		amount, err := s.TokenBalance(ctx, token)
		if err != nil {
			s.log.Warn().Err(err).Str("token", sym).Msg("token balance read failed")
			continue
		}
		if amount.Raw == 0 {
			continue
		}
		out[sym] = amount
	}
	return out, nil
}

// BuildTransfer assembles and signs a system-program transfer from the
// owner. computeUnitPrice is in micro-lamports per compute unit; zero
// omits the compute budget instruction.
func (s *Service) BuildTransfer(ctx context.Context, to solana.PublicKey, lamports uint64, computeUnitPrice uint64) (*solana.Transaction, error) {
	if lamports == 0 {
		return nil, errors.New("zero lamport transfer")
	}

	var blockhash solana.Hash
	err := s.pool.Do(ctx, "getLatestBlockhash", func(c *rpc.Client) error {
		res, err := c.GetLatestBlockhash(ctx, s.commit)
		if err != nil {
			return err
		}
		blockhash = res.Value.Blockhash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}

	instrs := make([]solana.Instruction, 0, 2)
	if computeUnitPrice > 0 {
		instrs = append(instrs, computebudget.NewSetComputeUnitPriceInstruction(computeUnitPrice).Build())
	}
	instrs = append(instrs, system.NewTransferInstruction(lamports, s.owner.PublicKey(), to).Build())

	tx, err := solana.NewTransaction(instrs, blockhash, solana.TransactionPayer(s.owner.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(s.signer()); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return tx, nil
}

// SignTransaction signs a prebuilt transaction (for example one from the
// swap aggregator) with the owner key.
func (s *Service) SignTransaction(tx *solana.Transaction) error {
	if _, err := tx.Sign(s.signer()); err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	return nil
}

func (s *Service) signer() func(key solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.owner.PublicKey()) {
			return &s.owner
		}
		return nil
	}
}

// Send submits a signed transaction with preflight at the service
// commitment.
func (s *Service) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := s.pool.Do(ctx, "sendTransaction", func(c *rpc.Client) error {
		out, err := c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: s.commit,
		})
		if err != nil {
			return err
		}
		sig = out
		return nil
	})
	return sig, err
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed or finalized, fails on-chain, or the timeout elapses. Absence
// of an on-chain error at confirmed level counts as success.
func (s *Service) WaitForConfirmation(ctx context.Context, sig solana.Signature, timeout, poll time.Duration) error {
	if poll <= 0 {
		poll = 400 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}

		var status *rpc.SignatureStatusesResult
		err := s.pool.Do(ctx, "getSignatureStatuses", func(c *rpc.Client) error {
			res, err := c.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				return err
			}
			if len(res.Value) > 0 {
				status = res.Value[0]
			}
			return nil
		})
		if err != nil {
			s.log.Debug().Err(err).Str("sig", sig.String()).Msg("status poll failed")
		} else if status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction failed on chain: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s: %s", ErrConfirmTimeout, timeout, sig)
		}
	}
}

// SendAndConfirm is the one-shot submit-then-wait path used by the CLI
// commands.
func (s *Service) SendAndConfirm(ctx context.Context, tx *solana.Transaction, timeout, poll time.Duration) (solana.Signature, error) {
	sig, err := s.Send(ctx, tx)
	if err != nil {
		return sig, err
	}
	s.log.Info().Str("sig", sig.String()).Msg("transaction submitted")
	if err := s.WaitForConfirmation(ctx, sig, timeout, poll); err != nil {
		return sig, err
	}
	return sig, nil
}

func pow10(d uint8) float64 {
	out := 1.0
	for i := uint8(0); i < d; i++ {
		out *= 10
	}
	return out
}
