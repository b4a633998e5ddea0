// Copyright 2025 ZeroXBridge
//
// Proof Job Repository - staged submission bookkeeping. MarkCompleted flips
// the job and its deposits inside one transaction so a crash never leaves a
// completed job with unfinalized deposits.

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ProofJobRepository handles proof job journal operations
type ProofJobRepository struct {
	client *Client
}

// NewProofJobRepository creates a new proof job repository
func NewProofJobRepository(client *Client) *ProofJobRepository {
	return &ProofJobRepository{client: client}
}

const proofJobSelect = `
	SELECT id, job_id, calldata_dir, layout, hasher, stone_version, memory_verification,
		status, current_stage, retry_count, error_message, tx_hashes, created_at, updated_at
	FROM proof_jobs`

func (r *ProofJobRepository) scanOne(row *sql.Row) (*ProofJob, error) {
	j := &ProofJob{}
	err := row.Scan(&j.ID, &j.JobID, &j.CalldataDir, &j.Layout, &j.Hasher, &j.StoneVersion,
		&j.MemoryVerification, &j.Status, &j.CurrentStage, &j.RetryCount, &j.ErrorMessage,
		&j.TxHashes, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProofJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan proof job: %w", err)
	}
	return j, nil
}

// GetByJobID retrieves a proof job by its external job id.
func (r *ProofJobRepository) GetByJobID(ctx context.Context, jobID int64) (*ProofJob, error) {
	return r.scanOne(r.client.QueryRowContext(ctx, proofJobSelect+` WHERE job_id = $1`, jobID))
}

// CreateOrGet returns the existing job for job_id or creates a fresh one in
// the processing stage.
func (r *ProofJobRepository) CreateOrGet(ctx context.Context, jobID int64, params NewProofJobParams) (*ProofJob, error) {
	if job, err := r.GetByJobID(ctx, jobID); err == nil {
		return job, nil
	} else if !errors.Is(err, ErrProofJobNotFound) {
		return nil, err
	}

	row := r.client.QueryRowContext(ctx, `
		INSERT INTO proof_jobs (job_id, calldata_dir, layout, hasher, stone_version,
			memory_verification, status, current_stage, tx_hashes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}')
		ON CONFLICT (job_id) DO UPDATE SET updated_at = NOW()
		RETURNING id, job_id, calldata_dir, layout, hasher, stone_version, memory_verification,
			status, current_stage, retry_count, error_message, tx_hashes, created_at, updated_at`,
		jobID, params.CalldataDir, params.Layout, params.Hasher, params.StoneVersion,
		params.MemoryVerification, ProofJobStatusProcessing, StageProcessing)
	return r.scanOne(row)
}

// NextJobID returns the next unused external job id.
func (r *ProofJobRepository) NextJobID(ctx context.Context) (int64, error) {
	var next int64
	err := r.client.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(job_id), 0) + 1 FROM proof_jobs`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next job id: %w", err)
	}
	return next, nil
}

// UpdateStage records the submitter's progress marker.
func (r *ProofJobRepository) UpdateStage(ctx context.Context, id int64, stage string) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE proof_jobs SET current_stage = $2, updated_at = NOW() WHERE id = $1`,
		id, stage)
	if err != nil {
		return fmt.Errorf("failed to update proof job stage: %w", err)
	}
	return nil
}

// AddTxHash appends the transaction hash for a completed stage to the
// tx_hashes record.
func (r *ProofJobRepository) AddTxHash(ctx context.Context, id int64, stage, txHash string) error {
	entry, err := json.Marshal(map[string]string{stage: txHash})
	if err != nil {
		return fmt.Errorf("failed to encode tx hash entry: %w", err)
	}
	_, err = r.client.ExecContext(ctx, `
		UPDATE proof_jobs SET tx_hashes = tx_hashes || $2::JSONB, updated_at = NOW()
		WHERE id = $1`,
		id, string(entry))
	if err != nil {
		return fmt.Errorf("failed to add tx hash: %w", err)
	}
	return nil
}

// IncrementRetry bumps the retry counter.
func (r *ProofJobRepository) IncrementRetry(ctx context.Context, id int64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE proof_jobs SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to increment proof job retry: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with its reason.
func (r *ProofJobRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE proof_jobs SET status = $2, current_stage = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1`,
		id, ProofJobStatusFailed, reason)
	if err != nil {
		return fmt.Errorf("failed to mark proof job failed: %w", err)
	}
	return nil
}

// MarkCompleted finishes a job and flips every deposit bound to it to
// ready_to_claim. Both writes happen in one transaction.
func (r *ProofJobRepository) MarkCompleted(ctx context.Context, id int64) (int64, error) {
	var updated int64
	err := r.client.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE proof_jobs SET status = $2, current_stage = $2, updated_at = NOW()
			WHERE id = $1`,
			id, ProofJobStatusCompleted); err != nil {
			return fmt.Errorf("failed to mark proof job completed: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE deposits SET status = $2, updated_at = NOW()
			WHERE proof_job_id = $1 AND status = $3`,
			id, StatusReadyToClaim, StatusProofRequested)
		if err != nil {
			return fmt.Errorf("failed to finalize deposits: %w", err)
		}
		if updated, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to count finalized deposits: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
