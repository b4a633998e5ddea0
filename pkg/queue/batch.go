// Copyright 2025 ZeroXBridge
//
// Batch Builder - folds tree-included deposits into proof jobs
//
// When a batch of deposits reaches tree_included, the builder drives the
// proof pipeline over their commitments, binds the deposits to the new
// proof job, and hands the calldata directory to the staged submitter. The
// submitter's completion flips the batch to ready_to_claim.

package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/prover"
)

// BatchDepositJournal is the journal surface the batch builder drives.
type BatchDepositJournal interface {
	FetchByStatus(ctx context.Context, status string, maxRetries int) ([]*database.Deposit, error)
	AssignProofJob(ctx context.Context, depositIDs []int64, proofJobID int64) error
}

// ProofJobJournal creates and numbers proof jobs.
type ProofJobJournal interface {
	NextJobID(ctx context.Context) (int64, error)
	CreateOrGet(ctx context.Context, jobID int64, params database.NewProofJobParams) (*database.ProofJob, error)
}

// ProofRunner drives the external prover toolchain.
type ProofRunner interface {
	Run(ctx context.Context, programInputs interface{}) (*prover.Artifacts, error)
}

// ProofSubmitter replays the calldata directory to the L2 verifier.
type ProofSubmitter interface {
	SubmitFromCalldata(ctx context.Context, calldataDir string, jobID int64, layout, hasher, stoneVersion, memoryVerification string) error
}

// BatchBuilder turns eligible deposits into proof jobs.
type BatchBuilder struct {
	deposits  BatchDepositJournal
	jobs      ProofJobJournal
	runner    ProofRunner
	submitter ProofSubmitter
	queueCfg  config.QueueConfig
	proverCfg config.ProverConfig
	logger    *slog.Logger
}

// NewBatchBuilder creates the proof batch builder.
func NewBatchBuilder(deposits BatchDepositJournal, jobs ProofJobJournal, runner ProofRunner, submitter ProofSubmitter, cfg *config.Config, logger *slog.Logger) *BatchBuilder {
	return &BatchBuilder{
		deposits:  deposits,
		jobs:      jobs,
		runner:    runner,
		submitter: submitter,
		queueCfg:  cfg.Queue,
		proverCfg: cfg.Prover,
		logger:    logger,
	}
}

// Run executes batch cycles until the context is cancelled.
func (b *BatchBuilder) Run(ctx context.Context) error {
	for {
		if err := b.ProcessBatch(ctx); err != nil {
			b.logger.Error("proof batch cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(b.queueCfg.ProcessIntervalSec) * time.Second):
		}
	}
}

// ProcessBatch proves and submits one batch of tree-included deposits, if
// any are eligible.
func (b *BatchBuilder) ProcessBatch(ctx context.Context) error {
	deposits, err := b.deposits.FetchByStatus(ctx, database.StatusTreeIncluded, b.queueCfg.MaxRetries)
	if err != nil {
		return err
	}
	if len(deposits) == 0 {
		return nil
	}

	commitments := make([]string, len(deposits))
	ids := make([]int64, len(deposits))
	for i, d := range deposits {
		commitments[i] = d.CommitmentHash
		ids[i] = d.ID
	}

	jobID, err := b.jobs.NextJobID(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("building proof batch", "job", jobID, "deposits", len(deposits))

	artifacts, err := b.runner.Run(ctx, map[string]interface{}{"commitments": commitments})
	if err != nil {
		return err
	}
	defer artifacts.Release()

	job, err := b.jobs.CreateOrGet(ctx, jobID, database.NewProofJobParams{
		CalldataDir:        artifacts.CalldataDir,
		Layout:             b.proverCfg.Layout,
		Hasher:             b.proverCfg.Hasher,
		StoneVersion:       b.proverCfg.StoneVersion,
		MemoryVerification: b.proverCfg.MemoryVerification,
	})
	if err != nil {
		return err
	}

	// Bind the batch to its job before any stage is sent, so completion
	// can finalize exactly these deposits.
	if err := b.deposits.AssignProofJob(ctx, ids, job.ID); err != nil {
		return err
	}

	if err := b.submitter.SubmitFromCalldata(ctx, artifacts.CalldataDir, jobID,
		b.proverCfg.Layout, b.proverCfg.Hasher, b.proverCfg.StoneVersion, b.proverCfg.MemoryVerification); err != nil {
		return err
	}

	if artifacts.FactHash != "" {
		b.logger.Info("fact registered", "job", jobID, "fact", artifacts.FactHash)
	}
	return nil
}
