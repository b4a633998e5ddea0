// Copyright 2025 ZeroXBridge
//
// Withdrawal Proof Builder - produces relay-ready proofs for withdrawals
//
// Tree-included withdrawals get one proof pipeline run each; the resulting
// calldata is stored as the proof blob the L1 relayer replays, and the
// withdrawal moves to ready_for_relay.

package queue

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/starknet"
)

// RelayProofJournal is the journal surface the proof builder drives.
type RelayProofJournal interface {
	FetchByStatus(ctx context.Context, status string, maxRetries int) ([]*database.Withdrawal, error)
	InsertProof(ctx context.Context, withdrawalID int64, proofParams, proofData []byte) error
	IncrementRetry(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// WithdrawalProofBuilder proves tree-included withdrawals.
type WithdrawalProofBuilder struct {
	journal RelayProofJournal
	runner  ProofRunner
	cfg     config.QueueConfig
	logger  *slog.Logger
}

// NewWithdrawalProofBuilder creates the withdrawal proof builder.
func NewWithdrawalProofBuilder(journal RelayProofJournal, runner ProofRunner, cfg *config.Config, logger *slog.Logger) *WithdrawalProofBuilder {
	return &WithdrawalProofBuilder{journal: journal, runner: runner, cfg: cfg.Queue, logger: logger}
}

// Run executes build cycles until the context is cancelled.
func (b *WithdrawalProofBuilder) Run(ctx context.Context) error {
	for {
		if err := b.ProcessWithdrawals(ctx); err != nil {
			b.logger.Error("withdrawal proof cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(b.cfg.ProcessIntervalSec) * time.Second):
		}
	}
}

// ProcessWithdrawals proves each tree-included withdrawal and stores its
// relay blob.
func (b *WithdrawalProofBuilder) ProcessWithdrawals(ctx context.Context) error {
	withdrawals, err := b.journal.FetchByStatus(ctx, database.StatusTreeIncluded, b.cfg.MaxRetries)
	if err != nil {
		return err
	}

	for _, withdrawal := range withdrawals {
		if err := b.prove(ctx, withdrawal); err != nil {
			b.logger.Warn("withdrawal proof failed, will retry",
				"withdrawal", withdrawal.ID, "error", err)
			if withdrawal.RetryCount+1 >= b.cfg.MaxRetries {
				if err := b.journal.UpdateStatus(ctx, withdrawal.ID, database.StatusFailed); err != nil {
					return err
				}
				continue
			}
			if err := b.journal.IncrementRetry(ctx, withdrawal.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *WithdrawalProofBuilder) prove(ctx context.Context, withdrawal *database.Withdrawal) error {
	artifacts, err := b.runner.Run(ctx, map[string]interface{}{
		"commitment":   withdrawal.CommitmentHash,
		"stark_pubkey": withdrawal.StarkPubKey,
		"amount":       withdrawal.Amount,
	})
	if err != nil {
		return err
	}
	defer artifacts.Release()

	// The initial segment carries the verifier parameters, the final
	// segment the proof payload; both are stored as 32-byte-word blobs.
	params, err := starknet.ReadCalldataFile(filepath.Join(artifacts.CalldataDir, "initial"))
	if err != nil {
		return err
	}
	proof, err := starknet.ReadCalldataFile(filepath.Join(artifacts.CalldataDir, "final"))
	if err != nil {
		return err
	}

	if err := b.journal.InsertProof(ctx, withdrawal.ID,
		starknet.CalldataToBytes(params), starknet.CalldataToBytes(proof)); err != nil {
		return err
	}

	b.logger.Info("withdrawal proof stored",
		"withdrawal", withdrawal.ID, "fact", artifacts.FactHash)
	return nil
}
