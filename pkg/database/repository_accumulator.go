// Copyright 2025 ZeroXBridge
//
// Accumulator Event Repository - the on-chain HashAppended archive

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AccumulatorRepository archives HashAppended events per direction
type AccumulatorRepository struct {
	client *Client
}

// NewAccumulatorRepository creates a new accumulator event repository
func NewAccumulatorRepository(client *Client) *AccumulatorRepository {
	return &AccumulatorRepository{client: client}
}

func tableFor(direction Direction) (string, error) {
	switch direction {
	case DirectionDeposit:
		return "deposit_hashes", nil
	case DirectionWithdrawal:
		return "withdrawal_hashes", nil
	}
	return "", fmt.Errorf("unknown direction %q", direction)
}

// Insert archives one event. Idempotent on (direction, leaf_index); a
// replayed event is a no-op.
func (r *AccumulatorRepository) Insert(ctx context.Context, event *AccumulatorEvent) error {
	table, err := tableFor(event.Direction)
	if err != nil {
		return err
	}
	_, err = r.client.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (leaf_index, commitment_hash, root_hash, elements_count, block_number)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (leaf_index) DO NOTHING`, table),
		event.LeafIndex, event.CommitmentHash, event.RootHash, event.ElementsCount, event.BlockNumber)
	if err != nil {
		return fmt.Errorf("failed to insert accumulator event: %w", err)
	}
	return nil
}

// HasCommitment reports whether a commitment has been archived for the
// direction, i.e. whether the on-chain accumulator includes it.
func (r *AccumulatorRepository) HasCommitment(ctx context.Context, direction Direction, commitmentHash string) (bool, error) {
	table, err := tableFor(direction)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.client.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE commitment_hash = $1)`, table),
		commitmentHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check commitment: %w", err)
	}
	return exists, nil
}

// GetByCommitment returns the archived event for a commitment, if any.
func (r *AccumulatorRepository) GetByCommitment(ctx context.Context, direction Direction, commitmentHash string) (*AccumulatorEvent, error) {
	table, err := tableFor(direction)
	if err != nil {
		return nil, err
	}
	e := &AccumulatorEvent{Direction: direction}
	err = r.client.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, leaf_index, commitment_hash, root_hash, elements_count, block_number, created_at
		FROM %s WHERE commitment_hash = $1`, table),
		commitmentHash,
	).Scan(&e.ID, &e.LeafIndex, &e.CommitmentHash, &e.RootHash, &e.ElementsCount, &e.BlockNumber, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get accumulator event: %w", err)
	}
	return e, nil
}

// ListOrdered returns all archived events in leaf order; the in-memory
// accumulators are rebuilt from this on startup.
func (r *AccumulatorRepository) ListOrdered(ctx context.Context, direction Direction) ([]*AccumulatorEvent, error) {
	table, err := tableFor(direction)
	if err != nil {
		return nil, err
	}
	rows, err := r.client.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, leaf_index, commitment_hash, root_hash, elements_count, block_number, created_at
		FROM %s ORDER BY leaf_index ASC`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to list accumulator events: %w", err)
	}
	defer rows.Close()

	var events []*AccumulatorEvent
	for rows.Next() {
		e := &AccumulatorEvent{Direction: direction}
		if err := rows.Scan(&e.ID, &e.LeafIndex, &e.CommitmentHash, &e.RootHash,
			&e.ElementsCount, &e.BlockNumber, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan accumulator event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Latest returns the most recent archived event for a direction, or
// ErrNotFound when the archive is empty.
func (r *AccumulatorRepository) Latest(ctx context.Context, direction Direction) (*AccumulatorEvent, error) {
	table, err := tableFor(direction)
	if err != nil {
		return nil, err
	}
	e := &AccumulatorEvent{Direction: direction}
	err = r.client.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, leaf_index, commitment_hash, root_hash, elements_count, block_number, created_at
		FROM %s ORDER BY leaf_index DESC LIMIT 1`, table),
	).Scan(&e.ID, &e.LeafIndex, &e.CommitmentHash, &e.RootHash, &e.ElementsCount, &e.BlockNumber, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest accumulator event: %w", err)
	}
	return e, nil
}
