// Copyright 2025 ZeroXBridge
//
// L2 Watcher - resumable getEvents scan for burn activity
//
// The filter carries the bridge contract address, the unprocessed block
// range and both event selectors; pagination follows the continuation token
// until the response omits it. Events with short data are logged and
// skipped.

package starknet

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

// Event selectors emitted by the L2 bridge contract.
const (
	// BurnEventKey is the selector for BurnEvent.
	BurnEventKey = "0x0099de3f38fed0a76764f614c6bc2b958814813685abc1af6deedab612df44f3"
	// WithdrawalHashAppendedKey is the selector for WithdrawalHashAppended.
	WithdrawalHashAppendedKey = "0x01e3ad31c1ae0cf5ec9a8eaf3c540d6cf961c8f4e3bfe1d55a5b92a09e1c9c1e"
)

const (
	l2WatcherMaxRetries = 3
	l2WatcherRetryDelay = time.Second
	l2EventsPageSize    = 100
)

// WithdrawalJournal records withdrawals observed on chain.
type WithdrawalJournal interface {
	Upsert(ctx context.Context, starkPubKey string, amount int64, commitmentHash, l2TxID, status string) (int64, error)
}

// AccumulatorJournal archives WithdrawalHashAppended events.
type AccumulatorJournal interface {
	Insert(ctx context.Context, event *database.AccumulatorEvent) error
}

// CursorJournal persists the watcher's block cursor.
type CursorJournal interface {
	Put(ctx context.Context, key string, block uint64) error
	Get(ctx context.Context, key string) (uint64, error)
}

// Watcher scans the L2 bridge contract for burn activity.
type Watcher struct {
	provider    Provider
	withdrawals WithdrawalJournal
	events      AccumulatorJournal
	cursors     CursorJournal
	contract    *felt.Felt
	burnKey     *felt.Felt
	appendKey   *felt.Felt
	startBlock  uint64
	interval    time.Duration
	logger      *slog.Logger
}

// NewWatcher creates the L2 watcher.
func NewWatcher(provider Provider, withdrawals WithdrawalJournal, events AccumulatorJournal, cursors CursorJournal, cfg *config.Config, logger *slog.Logger) (*Watcher, error) {
	contract, err := new(felt.Felt).SetString(cfg.Contracts.L2ContractAddress)
	if err != nil {
		return nil, err
	}
	burnKey, err := new(felt.Felt).SetString(BurnEventKey)
	if err != nil {
		return nil, err
	}
	appendKey, err := new(felt.Felt).SetString(WithdrawalHashAppendedKey)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		provider:    provider,
		withdrawals: withdrawals,
		events:      events,
		cursors:     cursors,
		contract:    contract,
		burnKey:     burnKey,
		appendKey:   appendKey,
		startBlock:  cfg.Starknet.StartBlock,
		interval:    time.Duration(cfg.Queue.ProcessIntervalSec) * time.Second,
		logger:      logger,
	}, nil
}

// Run executes watcher ticks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			w.logger.Error("l2 watcher tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one paginated scan over the unprocessed block range.
func (w *Watcher) Tick(ctx context.Context) error {
	startBlock := w.startBlock
	if cursor, err := w.cursors.Get(ctx, database.CursorL2BurnEvents); err == nil {
		startBlock = cursor + 1
	}

	latest, err := w.latestWithRetry(ctx)
	if err != nil {
		return err
	}
	if latest < startBlock {
		return nil
	}

	filter := rpc.EventFilter{
		FromBlock: rpc.WithBlockNumber(startBlock),
		ToBlock:   rpc.WithBlockNumber(latest),
		Address:   w.contract,
		Keys:      [][]*felt.Felt{{w.burnKey, w.appendKey}},
	}

	var (
		maxBlock uint64
		seen     int
		token    string
	)
	for {
		chunk, err := w.eventsWithRetry(ctx, rpc.EventsInput{
			EventFilter: filter,
			ResultPageRequest: rpc.ResultPageRequest{
				ContinuationToken: token,
				ChunkSize:         l2EventsPageSize,
			},
		})
		if err != nil {
			return err
		}
		if len(chunk.Events) == 0 {
			break
		}

		for _, event := range chunk.Events {
			if len(event.Event.Keys) == 0 {
				continue
			}
			switch {
			case event.Event.Keys[0].Equal(w.burnKey):
				w.handleBurn(ctx, event)
			case event.Event.Keys[0].Equal(w.appendKey):
				w.handleHashAppended(ctx, event)
			}
			if event.BlockNumber > maxBlock {
				maxBlock = event.BlockNumber
			}
			seen++
		}

		token = chunk.ContinuationToken
		if token == "" {
			break
		}
	}

	// Cursor update: the scanned chain head, never below the highest event
	// block seen; empty ranges advance too, so they are not re-scanned.
	cursorBlock := latest
	if maxBlock > cursorBlock {
		cursorBlock = maxBlock
	}
	if err := w.cursors.Put(ctx, database.CursorL2BurnEvents, cursorBlock); err != nil {
		return err
	}

	w.logger.Debug("l2 watcher tick complete", "from", startBlock, "to", latest, "events", seen)
	return nil
}

// handleBurn parses [user, amount_low, amount_high, commitment_hash].
func (w *Watcher) handleBurn(ctx context.Context, event rpc.EmittedEvent) {
	data := event.Event.Data
	if len(data) < 4 {
		w.logger.Warn("invalid BurnEvent data length", "expected", 4, "got", len(data), "block", event.BlockNumber)
		return
	}

	user := data[0].String()
	amountLow := data[1].BigInt(new(big.Int))
	commitment := data[3].String()

	id, err := w.withdrawals.Upsert(ctx,
		user,
		amountLow.Int64(),
		commitment,
		event.TransactionHash.String(),
		database.StatusPendingTreeInclusion,
	)
	if err != nil {
		w.logger.Error("failed to record withdrawal", "commitment", commitment, "error", err)
		return
	}
	w.logger.Info("observed burn",
		"withdrawal", id, "user", user, "amount", amountLow, "block", event.BlockNumber)
}

// handleHashAppended parses [index, commitment_hash, root_hash, elements_count].
func (w *Watcher) handleHashAppended(ctx context.Context, event rpc.EmittedEvent) {
	data := event.Event.Data
	if len(data) < 4 {
		w.logger.Warn("invalid WithdrawalHashAppended data length", "expected", 4, "got", len(data), "block", event.BlockNumber)
		return
	}

	index := data[0].BigInt(new(big.Int))
	elements := data[3].BigInt(new(big.Int))

	err := w.events.Insert(ctx, &database.AccumulatorEvent{
		Direction:      database.DirectionWithdrawal,
		LeafIndex:      index.Int64(),
		CommitmentHash: data[1].String(),
		RootHash:       data[2].String(),
		ElementsCount:  elements.Int64(),
		BlockNumber:    int64(event.BlockNumber),
	})
	if err != nil {
		w.logger.Error("failed to archive accumulator event", "index", index, "error", err)
		return
	}
	w.logger.Info("archived withdrawal hash append",
		"index", index, "root", data[2].String(), "elements", elements)
}

func (w *Watcher) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, l2WatcherMaxRetries, l2WatcherRetryDelay, func() error {
		var err error
		latest, err = w.provider.BlockNumber(ctx)
		return err
	})
	return latest, err
}

func (w *Watcher) eventsWithRetry(ctx context.Context, input rpc.EventsInput) (*rpc.EventChunk, error) {
	var chunk *rpc.EventChunk
	err := withRetry(ctx, l2WatcherMaxRetries, l2WatcherRetryDelay, func() error {
		var err error
		chunk, err = w.provider.Events(ctx, input)
		return err
	})
	return chunk, err
}

// withRetry retries fn with a fixed delay between attempts.
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
