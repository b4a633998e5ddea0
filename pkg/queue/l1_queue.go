// Copyright 2025 ZeroXBridge
//
// L1 Queue - transition engine for deposits
//
// Each tick fetches up to 10 pending deposits oldest-first and validates
// them against the archived accumulator state. Validation resolves to one
// of three outcomes: advance, retry later, or terminal failure.

package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

// Validation outcomes shared by both directions.
var (
	// ErrCommitmentPending is the not-yet outcome: the commitment has not
	// appeared in the on-chain accumulator.
	ErrCommitmentPending = errors.New("commitment not yet found in accumulator")

	// ErrMaxRetriesExceeded is terminal.
	ErrMaxRetriesExceeded = errors.New("commitment not found after max retries")
)

// DepositJournal is the journal surface the L1 queue drives.
type DepositJournal interface {
	FetchPending(ctx context.Context, maxRetries int) ([]*database.Deposit, error)
	MarkTreeIncluded(ctx context.Context, id, leafIndex int64) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetry(ctx context.Context, id int64) error
}

// ArchiveReader looks up archived accumulator events by commitment.
type ArchiveReader interface {
	GetByCommitment(ctx context.Context, direction database.Direction, commitmentHash string) (*database.AccumulatorEvent, error)
}

// L1Queue processes pending deposits.
type L1Queue struct {
	journal DepositJournal
	archive ArchiveReader
	cfg     config.QueueConfig
	logger  *slog.Logger
}

// NewL1Queue creates the deposit transition engine.
func NewL1Queue(journal DepositJournal, archive ArchiveReader, cfg *config.Config, logger *slog.Logger) *L1Queue {
	return &L1Queue{journal: journal, archive: archive, cfg: cfg.Queue, logger: logger}
}

// Run executes processing cycles until the context is cancelled.
func (q *L1Queue) Run(ctx context.Context) error {
	for {
		if err := q.ProcessDeposits(ctx); err != nil {
			q.logger.Error("deposit processing cycle failed", "error", err)
		} else {
			q.logger.Info("completed deposit processing cycle")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(q.cfg.ProcessIntervalSec) * time.Second):
		}
	}
}

// ProcessDeposits runs one batch of pending deposits through validation.
func (q *L1Queue) ProcessDeposits(ctx context.Context) error {
	deposits, err := q.journal.FetchPending(ctx, q.cfg.MaxRetries)
	if err != nil {
		return err
	}

	for _, deposit := range deposits {
		event, err := q.validate(ctx, deposit)
		switch {
		case err == nil:
			q.logger.Info("deposit included in accumulator",
				"deposit", deposit.ID, "leaf_index", event.LeafIndex)
			if err := q.journal.MarkTreeIncluded(ctx, deposit.ID, event.LeafIndex); err != nil {
				return err
			}

		case errors.Is(err, ErrCommitmentPending):
			q.logger.Warn("deposit not yet in accumulator, will retry", "deposit", deposit.ID)
			if err := q.journal.IncrementRetry(ctx, deposit.ID); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(q.cfg.RetryDelaySeconds) * time.Second):
			}

		case errors.Is(err, ErrMaxRetriesExceeded):
			q.logger.Error("deposit failed after max retries", "deposit", deposit.ID)
			if err := q.journal.IncrementRetry(ctx, deposit.ID); err != nil {
				return err
			}
			if err := q.journal.UpdateStatus(ctx, deposit.ID, database.StatusFailed); err != nil {
				return err
			}

		default:
			q.logger.Warn("deposit validation error, will retry", "deposit", deposit.ID, "error", err)
			if err := q.journal.IncrementRetry(ctx, deposit.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// validate resolves the deposit's commitment against the archive.
func (q *L1Queue) validate(ctx context.Context, deposit *database.Deposit) (*database.AccumulatorEvent, error) {
	event, err := q.archive.GetByCommitment(ctx, database.DirectionDeposit, deposit.CommitmentHash)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if deposit.RetryCount+1 >= q.cfg.MaxRetries {
		return nil, ErrMaxRetriesExceeded
	}
	return nil, ErrCommitmentPending
}
