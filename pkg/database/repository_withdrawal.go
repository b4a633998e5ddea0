// Copyright 2025 ZeroXBridge
//
// Withdrawal Repository - journal operations for L2->L1 transfers

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WithdrawalRepository handles withdrawal journal operations
type WithdrawalRepository struct {
	client *Client
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(client *Client) *WithdrawalRepository {
	return &WithdrawalRepository{client: client}
}

const withdrawalSelect = `
	SELECT id, stark_pub_key, amount, commitment_hash, l1_token, l2_tx_id,
		leaf_index, status, retry_count, created_at, updated_at
	FROM withdrawals`

// Insert records a user-submitted withdrawal preview. A duplicate commitment
// returns ErrDuplicateCommitment together with the existing row's id.
func (r *WithdrawalRepository) Insert(ctx context.Context, starkPubKey string, amount int64, commitmentHash, l1Token string) (int64, error) {
	var id int64
	err := r.client.QueryRowContext(ctx, `
		INSERT INTO withdrawals (stark_pub_key, amount, commitment_hash, l1_token, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		starkPubKey, amount, commitmentHash, l1Token, StatusPending,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			if existing, lookupErr := r.GetByCommitment(ctx, commitmentHash); lookupErr == nil {
				return existing.ID, ErrDuplicateCommitment
			}
			return 0, ErrDuplicateCommitment
		}
		return 0, fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return id, nil
}

// Upsert records a withdrawal observed on chain via BurnEvent.
func (r *WithdrawalRepository) Upsert(ctx context.Context, starkPubKey string, amount int64, commitmentHash, l2TxID, status string) (int64, error) {
	var id int64
	err := r.client.QueryRowContext(ctx, `
		INSERT INTO withdrawals (stark_pub_key, amount, commitment_hash, l2_tx_id, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (commitment_hash)
		DO UPDATE SET status = EXCLUDED.status,
			l2_tx_id = COALESCE(EXCLUDED.l2_tx_id, withdrawals.l2_tx_id),
			updated_at = NOW()
		RETURNING id`,
		starkPubKey, amount, commitmentHash, l2TxID, status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert withdrawal: %w", err)
	}
	return id, nil
}

// GetByCommitment retrieves the withdrawal for a commitment hash.
func (r *WithdrawalRepository) GetByCommitment(ctx context.Context, commitmentHash string) (*Withdrawal, error) {
	return r.scanOne(r.client.QueryRowContext(ctx, withdrawalSelect+` WHERE commitment_hash = $1`, commitmentHash))
}

func (r *WithdrawalRepository) scanOne(row *sql.Row) (*Withdrawal, error) {
	w := &Withdrawal{}
	err := row.Scan(&w.ID, &w.StarkPubKey, &w.Amount, &w.CommitmentHash, &w.L1Token,
		&w.L2TxID, &w.LeafIndex, &w.Status, &w.RetryCount, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
	}
	return w, nil
}

// FetchPending returns up to 10 withdrawals awaiting tree inclusion whose
// retry budget is not exhausted, oldest first.
func (r *WithdrawalRepository) FetchPending(ctx context.Context, maxRetries int) ([]*Withdrawal, error) {
	rows, err := r.client.QueryContext(ctx, withdrawalSelect+`
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT 10`,
		StatusPendingTreeInclusion, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*Withdrawal
	for rows.Next() {
		w := &Withdrawal{}
		if err := rows.Scan(&w.ID, &w.StarkPubKey, &w.Amount, &w.CommitmentHash, &w.L1Token,
			&w.L2TxID, &w.LeafIndex, &w.Status, &w.RetryCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

// FetchByStatus returns up to 10 withdrawals in the given status, oldest
// first.
func (r *WithdrawalRepository) FetchByStatus(ctx context.Context, status string, maxRetries int) ([]*Withdrawal, error) {
	rows, err := r.client.QueryContext(ctx, withdrawalSelect+`
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT 10`,
		status, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*Withdrawal
	for rows.Next() {
		w := &Withdrawal{}
		if err := rows.Scan(&w.ID, &w.StarkPubKey, &w.Amount, &w.CommitmentHash, &w.L1Token,
			&w.L2TxID, &w.LeafIndex, &w.Status, &w.RetryCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

// UpdateStatus moves a withdrawal to a new status and bumps updated_at.
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE withdrawals SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal status: %w", err)
	}
	return nil
}

// IncrementRetry bumps the retry counter and updated_at in one statement.
func (r *WithdrawalRepository) IncrementRetry(ctx context.Context, id int64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE withdrawals SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to increment withdrawal retry: %w", err)
	}
	return nil
}

// GetRetryCount returns the current retry counter for a withdrawal.
func (r *WithdrawalRepository) GetRetryCount(ctx context.Context, id int64) (int, error) {
	var retryCount int
	err := r.client.QueryRowContext(ctx,
		`SELECT retry_count FROM withdrawals WHERE id = $1`, id).Scan(&retryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get retry count: %w", err)
	}
	return retryCount, nil
}

// MarkTreeIncluded records the MMR position and the status transition
// atomically.
func (r *WithdrawalRepository) MarkTreeIncluded(ctx context.Context, id, leafIndex int64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE withdrawals SET status = $2, leaf_index = $3, updated_at = NOW() WHERE id = $1`,
		id, StatusTreeIncluded, leafIndex)
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal tree included: %w", err)
	}
	return nil
}

// InsertProof stores the verified proof blob for a withdrawal and moves the
// withdrawal to ready_for_relay in the same transaction.
func (r *WithdrawalRepository) InsertProof(ctx context.Context, withdrawalID int64, proofParams, proofData []byte) error {
	return r.client.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO withdrawal_proofs (withdrawal_id, proof_params, proof_data, status)
			VALUES ($1, $2, $3, 'ready')`,
			withdrawalID, proofParams, proofData); err != nil {
			return fmt.Errorf("failed to insert withdrawal proof: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE withdrawals SET status = $2, updated_at = NOW() WHERE id = $1`,
			withdrawalID, StatusReadyForRelay); err != nil {
			return fmt.Errorf("failed to mark withdrawal ready for relay: %w", err)
		}
		return nil
	})
}

// FetchReadyForRelay joins withdrawals against their stored proofs and
// returns up to 10 rows eligible for the L1 relayer, oldest first.
func (r *WithdrawalRepository) FetchReadyForRelay(ctx context.Context, maxRetries int) ([]*WithdrawalWithProof, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT w.id, w.stark_pub_key, w.amount, COALESCE(w.l2_tx_id, ''), w.commitment_hash,
			wp.proof_params, wp.proof_data
		FROM withdrawals w
		JOIN withdrawal_proofs wp ON w.id = wp.withdrawal_id
		WHERE w.status = $1 AND w.retry_count < $2 AND wp.status = 'ready'
		ORDER BY w.created_at ASC
		LIMIT 10`,
		StatusReadyForRelay, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relay-ready withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*WithdrawalWithProof
	for rows.Next() {
		w := &WithdrawalWithProof{}
		if err := rows.Scan(&w.WithdrawalID, &w.StarkPubKey, &w.Amount, &w.L2TxID,
			&w.CommitmentHash, &w.ProofParams, &w.ProofData); err != nil {
			return nil, fmt.Errorf("failed to scan relay-ready withdrawal: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
