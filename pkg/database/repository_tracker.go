// Copyright 2025 ZeroXBridge
//
// Block Tracker Repository - resumable watcher cursors

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Cursor keys, one per watcher.
const (
	CursorL1DepositEvents = "l1_deposit_events_last_block"
	CursorL2BurnEvents    = "l2_burn_events_last_block"
)

// TrackerRepository persists per-watcher block cursors
type TrackerRepository struct {
	client *Client
}

// NewTrackerRepository creates a new block tracker repository
func NewTrackerRepository(client *Client) *TrackerRepository {
	return &TrackerRepository{client: client}
}

// Put records the last processed block for a key. The GREATEST guard keeps
// the cursor monotonically non-decreasing even under replayed updates.
func (r *TrackerRepository) Put(ctx context.Context, key string, block uint64) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO block_trackers (key, last_block)
		VALUES ($1, $2)
		ON CONFLICT (key)
		DO UPDATE SET last_block = GREATEST(block_trackers.last_block, EXCLUDED.last_block),
			updated_at = NOW()`,
		key, int64(block))
	if err != nil {
		return fmt.Errorf("failed to put cursor %s: %w", key, err)
	}
	return nil
}

// Get returns the last processed block for a key, or ErrCursorNotFound when
// the watcher has never completed a batch.
func (r *TrackerRepository) Get(ctx context.Context, key string) (uint64, error) {
	var block int64
	err := r.client.QueryRowContext(ctx,
		`SELECT last_block FROM block_trackers WHERE key = $1`, key).Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCursorNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor %s: %w", key, err)
	}
	return uint64(block), nil
}
