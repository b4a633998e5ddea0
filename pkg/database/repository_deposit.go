// Copyright 2025 ZeroXBridge
//
// Deposit Repository - journal operations for L1->L2 transfers

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// DepositRepository handles deposit journal operations
type DepositRepository struct {
	client *Client
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(client *Client) *DepositRepository {
	return &DepositRepository{client: client}
}

// isUniqueViolation reports whether err is the Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Insert records a user-submitted deposit preview. A duplicate commitment
// returns ErrDuplicateCommitment together with the existing row's id.
func (r *DepositRepository) Insert(ctx context.Context, userAddress string, amount int64, commitmentHash string) (int64, error) {
	var id int64
	err := r.client.QueryRowContext(ctx, `
		INSERT INTO deposits (user_address, amount, commitment_hash, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		userAddress, amount, commitmentHash, StatusPending,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			if existing, lookupErr := r.GetByCommitment(ctx, commitmentHash); lookupErr == nil {
				return existing.ID, ErrDuplicateCommitment
			}
			return 0, ErrDuplicateCommitment
		}
		return 0, fmt.Errorf("failed to insert deposit: %w", err)
	}
	return id, nil
}

// Upsert records a deposit observed on chain. When the commitment was never
// user-submitted a new row is created; otherwise the existing row moves to
// the given status.
func (r *DepositRepository) Upsert(ctx context.Context, userAddress string, amount int64, commitmentHash, status string) (int64, error) {
	var id int64
	err := r.client.QueryRowContext(ctx, `
		INSERT INTO deposits (user_address, amount, commitment_hash, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (commitment_hash)
		DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
		RETURNING id`,
		userAddress, amount, commitmentHash, status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert deposit: %w", err)
	}
	return id, nil
}

// GetByCommitment retrieves the deposit for a commitment hash.
func (r *DepositRepository) GetByCommitment(ctx context.Context, commitmentHash string) (*Deposit, error) {
	return r.scanOne(r.client.QueryRowContext(ctx, depositSelect+` WHERE commitment_hash = $1`, commitmentHash))
}

// Get retrieves a deposit by id.
func (r *DepositRepository) Get(ctx context.Context, id int64) (*Deposit, error) {
	return r.scanOne(r.client.QueryRowContext(ctx, depositSelect+` WHERE id = $1`, id))
}

const depositSelect = `
	SELECT id, user_address, amount, commitment_hash, leaf_index, proof_job_id,
		status, retry_count, created_at, updated_at
	FROM deposits`

func (r *DepositRepository) scanOne(row *sql.Row) (*Deposit, error) {
	d := &Deposit{}
	err := row.Scan(&d.ID, &d.UserAddress, &d.Amount, &d.CommitmentHash, &d.LeafIndex,
		&d.ProofJobID, &d.Status, &d.RetryCount, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan deposit: %w", err)
	}
	return d, nil
}

// FetchPending returns up to 10 deposits awaiting tree inclusion whose retry
// budget is not exhausted, oldest first.
func (r *DepositRepository) FetchPending(ctx context.Context, maxRetries int) ([]*Deposit, error) {
	rows, err := r.client.QueryContext(ctx, depositSelect+`
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT 10`,
		StatusPendingTreeInclusion, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending deposits: %w", err)
	}
	defer rows.Close()

	var deposits []*Deposit
	for rows.Next() {
		d := &Deposit{}
		if err := rows.Scan(&d.ID, &d.UserAddress, &d.Amount, &d.CommitmentHash, &d.LeafIndex,
			&d.ProofJobID, &d.Status, &d.RetryCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// FetchByStatus returns up to 10 deposits in the given status, oldest first.
func (r *DepositRepository) FetchByStatus(ctx context.Context, status string, maxRetries int) ([]*Deposit, error) {
	rows, err := r.client.QueryContext(ctx, depositSelect+`
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT 10`,
		status, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deposits: %w", err)
	}
	defer rows.Close()

	var deposits []*Deposit
	for rows.Next() {
		d := &Deposit{}
		if err := rows.Scan(&d.ID, &d.UserAddress, &d.Amount, &d.CommitmentHash, &d.LeafIndex,
			&d.ProofJobID, &d.Status, &d.RetryCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// UpdateStatus moves a deposit to a new status and bumps updated_at.
func (r *DepositRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE deposits SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to update deposit status: %w", err)
	}
	return nil
}

// IncrementRetry bumps the retry counter and updated_at in one statement.
func (r *DepositRepository) IncrementRetry(ctx context.Context, id int64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE deposits SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to increment deposit retry: %w", err)
	}
	return nil
}

// MarkTreeIncluded records the MMR position and the status transition
// atomically.
func (r *DepositRepository) MarkTreeIncluded(ctx context.Context, id, leafIndex int64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE deposits SET status = $2, leaf_index = $3, updated_at = NOW() WHERE id = $1`,
		id, StatusTreeIncluded, leafIndex)
	if err != nil {
		return fmt.Errorf("failed to mark deposit tree included: %w", err)
	}
	return nil
}

// AssignProofJob binds a batch of deposits to the proof job that will
// finalize them and moves them to proof_requested.
func (r *DepositRepository) AssignProofJob(ctx context.Context, depositIDs []int64, proofJobID int64) error {
	if len(depositIDs) == 0 {
		return nil
	}
	_, err := r.client.ExecContext(ctx, `
		UPDATE deposits
		SET proof_job_id = $2, status = $3, updated_at = NOW()
		WHERE id = ANY($1)`,
		pq.Array(depositIDs), proofJobID, StatusProofRequested)
	if err != nil {
		return fmt.Errorf("failed to assign proof job: %w", err)
	}
	return nil
}
