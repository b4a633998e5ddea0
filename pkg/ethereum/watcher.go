// Copyright 2025 ZeroXBridge
//
// L1 Watcher - resumable eth_getLogs scan for deposit activity
//
// Every tick the watcher reads its block cursor, queries logs from the
// bridge contract, records deposits and accumulator appends in the journal,
// and advances the cursor. Decoding errors skip the single log; RPC errors
// retry with exponential backoff before the tick is abandoned.

package ethereum

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

const (
	watcherMaxAttempts = 5
	watcherBaseDelay   = 500 * time.Millisecond
)

// LogBackend is the slice of the Ethereum RPC surface the watcher needs.
type LogBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// DepositJournal records deposits observed on chain.
type DepositJournal interface {
	Upsert(ctx context.Context, userAddress string, amount int64, commitmentHash, status string) (int64, error)
}

// AccumulatorJournal archives HashAppended events.
type AccumulatorJournal interface {
	Insert(ctx context.Context, event *database.AccumulatorEvent) error
}

// CursorJournal persists the watcher's block cursor.
type CursorJournal interface {
	Put(ctx context.Context, key string, block uint64) error
	Get(ctx context.Context, key string) (uint64, error)
}

// Watcher scans the L1 bridge contract for deposit activity.
type Watcher struct {
	backend    LogBackend
	deposits   DepositJournal
	events     AccumulatorJournal
	cursors    CursorJournal
	contract   common.Address
	startBlock uint64
	confirms   uint64
	interval   time.Duration
	logger     *slog.Logger
}

// NewWatcher creates the L1 watcher.
func NewWatcher(backend LogBackend, deposits DepositJournal, events AccumulatorJournal, cursors CursorJournal, cfg *config.Config, logger *slog.Logger) *Watcher {
	return &Watcher{
		backend:    backend,
		deposits:   deposits,
		events:     events,
		cursors:    cursors,
		contract:   common.HexToAddress(cfg.Contracts.L1ContractAddress),
		startBlock: cfg.Ethereum.StartBlock,
		confirms:   cfg.Ethereum.Confirmations,
		interval:   time.Duration(cfg.Queue.ProcessIntervalSec) * time.Second,
		logger:     logger,
	}
}

// Run executes watcher ticks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			w.logger.Error("l1 watcher tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one scan over the unprocessed block range.
func (w *Watcher) Tick(ctx context.Context) error {
	fromBlock := w.startBlock
	if cursor, err := w.cursors.Get(ctx, database.CursorL1DepositEvents); err == nil {
		fromBlock = cursor + 1
	}

	latest, err := w.latestWithRetry(ctx)
	if err != nil {
		return err
	}
	if latest > w.confirms {
		latest -= w.confirms
	} else {
		latest = 0
	}
	if latest < fromBlock {
		return nil
	}

	logs, err := w.filterWithRetry(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{w.contract},
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(latest),
		Topics:    [][]common.Hash{{DepositEventID(), DepositHashAppendedID()}},
	})
	if err != nil {
		return err
	}

	for _, l := range logs {
		if len(l.Topics) == 0 {
			continue
		}
		switch l.Topics[0] {
		case DepositEventID():
			w.handleDeposit(ctx, l)
		case DepositHashAppendedID():
			w.handleHashAppended(ctx, l)
		}
	}

	// Advance past empty ranges too, so they are not re-scanned.
	if err := w.cursors.Put(ctx, database.CursorL1DepositEvents, latest); err != nil {
		return err
	}

	w.logger.Debug("l1 watcher tick complete", "from", fromBlock, "to", latest, "logs", len(logs))
	return nil
}

func (w *Watcher) handleDeposit(ctx context.Context, l types.Log) {
	event, err := ParseDepositEvent(l)
	if err != nil {
		w.logger.Warn("skipping undecodable DepositEvent", "block", l.BlockNumber, "tx", l.TxHash, "error", err)
		return
	}

	id, err := w.deposits.Upsert(ctx,
		event.User.Hex(),
		event.USDVal.Int64(),
		HashHex(event.CommitmentHash),
		database.StatusPendingTreeInclusion,
	)
	if err != nil {
		w.logger.Error("failed to record deposit", "commitment", HashHex(event.CommitmentHash), "error", err)
		return
	}
	w.logger.Info("observed deposit",
		"deposit", id, "user", event.User.Hex(), "usd_value", event.USDVal, "block", event.BlockNumber)
}

func (w *Watcher) handleHashAppended(ctx context.Context, l types.Log) {
	event, err := ParseDepositHashAppended(l)
	if err != nil {
		w.logger.Warn("skipping undecodable DepositHashAppended", "block", l.BlockNumber, "tx", l.TxHash, "error", err)
		return
	}

	err = w.events.Insert(ctx, &database.AccumulatorEvent{
		Direction:      database.DirectionDeposit,
		LeafIndex:      event.Index.Int64(),
		CommitmentHash: HashHex(event.CommitmentHash),
		RootHash:       HashHex(event.RootHash),
		ElementsCount:  event.ElementsCount.Int64(),
		BlockNumber:    int64(event.BlockNumber),
	})
	if err != nil {
		w.logger.Error("failed to archive accumulator event", "index", event.Index, "error", err)
		return
	}
	w.logger.Info("archived deposit hash append",
		"index", event.Index, "root", HashHex(event.RootHash), "elements", event.ElementsCount)
}

func (w *Watcher) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withBackoff(ctx, watcherMaxAttempts, watcherBaseDelay, func() error {
		var err error
		latest, err = w.backend.BlockNumber(ctx)
		return err
	})
	return latest, err
}

func (w *Watcher) filterWithRetry(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := withBackoff(ctx, watcherMaxAttempts, watcherBaseDelay, func() error {
		var err error
		logs, err = w.backend.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

// withBackoff retries fn with exponential backoff: base, 2x, 4x, ...
func withBackoff(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
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
		delay *= 2
	}
	return err
}
