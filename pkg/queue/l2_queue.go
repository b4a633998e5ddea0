// Copyright 2025 ZeroXBridge
//
// L2 Queue - transition engine for withdrawals

package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

// WithdrawalJournal is the journal surface the L2 queue drives.
type WithdrawalJournal interface {
	FetchPending(ctx context.Context, maxRetries int) ([]*database.Withdrawal, error)
	MarkTreeIncluded(ctx context.Context, id, leafIndex int64) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetry(ctx context.Context, id int64) error
}

// L2Queue processes pending withdrawals.
type L2Queue struct {
	journal WithdrawalJournal
	archive ArchiveReader
	cfg     config.QueueConfig
	logger  *slog.Logger
}

// NewL2Queue creates the withdrawal transition engine.
func NewL2Queue(journal WithdrawalJournal, archive ArchiveReader, cfg *config.Config, logger *slog.Logger) *L2Queue {
	return &L2Queue{journal: journal, archive: archive, cfg: cfg.Queue, logger: logger}
}

// Run executes processing cycles until the context is cancelled.
func (q *L2Queue) Run(ctx context.Context) error {
	for {
		if err := q.ProcessWithdrawals(ctx); err != nil {
			q.logger.Error("withdrawal processing cycle failed", "error", err)
		} else {
			q.logger.Info("completed withdrawal processing cycle")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(q.cfg.ProcessIntervalSec) * time.Second):
		}
	}
}

// ProcessWithdrawals runs one batch of pending withdrawals through
// validation.
func (q *L2Queue) ProcessWithdrawals(ctx context.Context) error {
	withdrawals, err := q.journal.FetchPending(ctx, q.cfg.MaxRetries)
	if err != nil {
		return err
	}

	for _, withdrawal := range withdrawals {
		event, err := q.validate(ctx, withdrawal)
		switch {
		case err == nil:
			q.logger.Info("withdrawal included in accumulator",
				"withdrawal", withdrawal.ID, "leaf_index", event.LeafIndex)
			if err := q.journal.MarkTreeIncluded(ctx, withdrawal.ID, event.LeafIndex); err != nil {
				return err
			}

		case errors.Is(err, ErrCommitmentPending):
			q.logger.Warn("withdrawal not yet in accumulator, will retry", "withdrawal", withdrawal.ID)
			if err := q.journal.IncrementRetry(ctx, withdrawal.ID); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(q.cfg.RetryDelaySeconds) * time.Second):
			}

		case errors.Is(err, ErrMaxRetriesExceeded):
			q.logger.Error("withdrawal failed after max retries", "withdrawal", withdrawal.ID)
			if err := q.journal.IncrementRetry(ctx, withdrawal.ID); err != nil {
				return err
			}
			if err := q.journal.UpdateStatus(ctx, withdrawal.ID, database.StatusFailed); err != nil {
				return err
			}

		default:
			q.logger.Warn("withdrawal validation error, will retry", "withdrawal", withdrawal.ID, "error", err)
			if err := q.journal.IncrementRetry(ctx, withdrawal.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// validate resolves the withdrawal's commitment against the archive.
func (q *L2Queue) validate(ctx context.Context, withdrawal *database.Withdrawal) (*database.AccumulatorEvent, error) {
	event, err := q.archive.GetByCommitment(ctx, database.DirectionWithdrawal, withdrawal.CommitmentHash)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if withdrawal.RetryCount+1 >= q.cfg.MaxRetries {
		return nil, ErrMaxRetriesExceeded
	}
	return nil, ErrCommitmentPending
}
