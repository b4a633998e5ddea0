// Copyright 2025 ZeroXBridge
//
// Fund-Unlock Relayer - replays verified withdrawal proofs to the L1 bridge
//
// One EVM transaction per withdrawal: unlock_funds_with_proof carrying the
// proof arrays, the user's stark pub key, the amount, the L2 transaction id
// and the commitment hash. Receipt status decides the state transition.

package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

// Relayer errors
var (
	// ErrTransactionReverted is terminal for the attempted submission.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrReceiptTimeout means the receipt never appeared inside the poll
	// window; the submission stays retryable.
	ErrReceiptTimeout = errors.New("transaction confirmation timeout")
)

const (
	receiptPollAttempts = 60
	receiptPollInterval = 5 * time.Second

	// interTxDelay spaces sends from the single relayer account so nonces
	// never race.
	interTxDelay = 500 * time.Millisecond
)

// unlockFundsABI is the calldata shape of the bridge entry point.
const unlockFundsABI = `[{
	"name": "unlock_funds_with_proof",
	"type": "function",
	"inputs": [
		{"name": "proofParams", "type": "uint256[]"},
		{"name": "proof", "type": "uint256[]"},
		{"name": "stark_pub_key", "type": "uint256"},
		{"name": "amount", "type": "uint256"},
		{"name": "l2TxId", "type": "uint256"},
		{"name": "commitmentHash", "type": "bytes32"}
	]
}]`

var unlockABI = mustParseABI(unlockFundsABI)

// TxBackend is the slice of the Ethereum RPC surface the relayer needs.
type TxBackend interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WithdrawalJournal is the journal surface the relayer drives.
type WithdrawalJournal interface {
	FetchReadyForRelay(ctx context.Context, maxRetries int) ([]*database.WithdrawalWithProof, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetry(ctx context.Context, id int64) error
	GetRetryCount(ctx context.Context, id int64) (int, error)
}

// Relayer sends unlock transactions for proof-ready withdrawals.
type Relayer struct {
	backend     TxBackend
	journal     WithdrawalJournal
	contract    common.Address
	signer      types.Signer
	privateKey  string
	fromAddress common.Address
	cfg         config.RelayerConfig
	logger      *slog.Logger
}

// NewRelayer creates the L1 fund-unlock relayer. The private key is the one
// relayer signer this chain gets.
func NewRelayer(backend TxBackend, journal WithdrawalJournal, cfg *config.Config, logger *slog.Logger) (*Relayer, error) {
	from, err := GetPublicAddress(cfg.Ethereum.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer key: %w", err)
	}
	return &Relayer{
		backend:     backend,
		journal:     journal,
		contract:    common.HexToAddress(cfg.Contracts.L1ContractAddress),
		signer:      types.LatestSignerForChainID(big.NewInt(cfg.Ethereum.ChainID)),
		privateKey:  cfg.Ethereum.PrivateKey,
		fromAddress: from,
		cfg:         cfg.Relayer,
		logger:      logger,
	}, nil
}

// Run executes relay cycles until the context is cancelled.
func (r *Relayer) Run(ctx context.Context) error {
	for {
		if err := r.ProcessRelayTransactions(ctx); err != nil {
			r.logger.Error("relay processing cycle failed", "error", err)
		} else {
			r.logger.Info("completed relay processing cycle")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(r.cfg.RetryDelaySeconds) * time.Second):
		}
	}
}

// ProcessRelayTransactions relays every withdrawal that is ready, updating
// status and retry accounting in one journal transaction per entity.
func (r *Relayer) ProcessRelayTransactions(ctx context.Context) error {
	withdrawals, err := r.journal.FetchReadyForRelay(ctx, r.cfg.MaxRetries)
	if err != nil {
		return err
	}

	for _, w := range withdrawals {
		if relayErr := r.relayWithRetry(ctx, w); relayErr == nil {
			r.logger.Info("relayed withdrawal", "withdrawal", w.WithdrawalID)
			err = r.journal.UpdateStatus(ctx, w.WithdrawalID, database.StatusRelayed)
		} else {
			retryCount, countErr := r.journal.GetRetryCount(ctx, w.WithdrawalID)
			if countErr != nil {
				return countErr
			}
			if retryCount >= r.cfg.MaxRetries-1 {
				r.logger.Error("max retries reached, marking withdrawal failed",
					"withdrawal", w.WithdrawalID, "error", relayErr)
				err = r.journal.UpdateStatus(ctx, w.WithdrawalID, database.StatusFailed)
			} else {
				r.logger.Warn("relay failed, will retry",
					"withdrawal", w.WithdrawalID, "error", relayErr)
				err = r.journal.IncrementRetry(ctx, w.WithdrawalID)
			}
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interTxDelay):
		}
	}

	return nil
}

// relayWithRetry wraps one unlock transaction in the relayer retry window.
func (r *Relayer) relayWithRetry(ctx context.Context, w *database.WithdrawalWithProof) error {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		lastErr = r.sendUnlockFunds(ctx, w)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrTransactionReverted) {
			return lastErr
		}
		if attempt < r.cfg.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(r.cfg.RetryDelaySeconds) * time.Second):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", r.cfg.MaxRetries, lastErr)
}

// sendUnlockFunds assembles, signs and sends one unlock transaction, then
// waits for its receipt.
func (r *Relayer) sendUnlockFunds(ctx context.Context, w *database.WithdrawalWithProof) error {
	calldata, err := EncodeUnlockFunds(w)
	if err != nil {
		return err
	}

	gasPrice, err := r.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}
	nonce, err := r.backend.PendingNonceAt(ctx, r.fromAddress)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, r.contract, big.NewInt(0), r.cfg.GasLimit, gasPrice, calldata)

	key, err := crypto.HexToECDSA(strings.TrimPrefix(r.privateKey, "0x"))
	if err != nil {
		return fmt.Errorf("failed to parse relayer key: %w", err)
	}
	signed, err := types.SignTx(tx, r.signer, key)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := r.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}

	return r.waitForReceipt(ctx, signed.Hash())
}

// waitForReceipt polls eth_getTransactionReceipt up to 60 x 5s.
func (r *Relayer) waitForReceipt(ctx context.Context, txHash common.Hash) error {
	for i := 0; i < receiptPollAttempts; i++ {
		receipt, err := r.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrTransactionReverted, txHash.Hex())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
	return fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash.Hex())
}

// EncodeUnlockFunds packs the unlock_funds_with_proof calldata from a joined
// withdrawal row.
func EncodeUnlockFunds(w *database.WithdrawalWithProof) ([]byte, error) {
	starkPubKey, ok := new(big.Int).SetString(strings.TrimPrefix(w.StarkPubKey, "0x"), hexOrDec(w.StarkPubKey))
	if !ok {
		return nil, fmt.Errorf("invalid stark pub key %q", w.StarkPubKey)
	}

	l2TxID := big.NewInt(0)
	if w.L2TxID != "" {
		if l2TxID, ok = new(big.Int).SetString(strings.TrimPrefix(w.L2TxID, "0x"), hexOrDec(w.L2TxID)); !ok {
			return nil, fmt.Errorf("invalid l2 tx id %q", w.L2TxID)
		}
	}

	commitment, err := CommitmentBytes32(w.CommitmentHash)
	if err != nil {
		return nil, err
	}

	proofParams := DecodeUintArrayFromBytes(w.ProofParams)
	proof := DecodeUintArrayFromBytes(w.ProofData)

	return unlockABI.Pack("unlock_funds_with_proof",
		proofParams, proof, starkPubKey, big.NewInt(w.Amount), l2TxID, commitment)
}

func hexOrDec(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}

// DecodeUintArrayFromBytes splits a byte blob into big-endian 256-bit words.
// A trailing partial word is dropped.
func DecodeUintArrayFromBytes(b []byte) []*big.Int {
	out := make([]*big.Int, 0, len(b)/32)
	for i := 0; i+32 <= len(b); i += 32 {
		out = append(out, new(big.Int).SetBytes(b[i:i+32]))
	}
	return out
}

// CommitmentBytes32 pads or truncates a hex commitment to exactly 32 bytes.
func CommitmentBytes32(s string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed)%2 != 0 {
		trimmed = "0" + trimmed
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid commitment hash %q: %w", s, err)
	}
	copy(out[:], b)
	return out, nil
}
