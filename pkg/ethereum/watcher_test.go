// Copyright 2025 ZeroXBridge
//
// L1 watcher tests

package ethereum

import (
	"context"
	"log/slog"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

type fakeBackend struct {
	latest uint64
	logs   []types.Log
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeDeposits struct {
	upserts []string
	status  map[string]string
}

func (f *fakeDeposits) Upsert(ctx context.Context, user string, amount int64, commitment, status string) (int64, error) {
	f.upserts = append(f.upserts, commitment)
	if f.status == nil {
		f.status = make(map[string]string)
	}
	f.status[commitment] = status
	return int64(len(f.upserts)), nil
}

type fakeAccumulatorJournal struct {
	events []*database.AccumulatorEvent
}

func (f *fakeAccumulatorJournal) Insert(ctx context.Context, e *database.AccumulatorEvent) error {
	for _, existing := range f.events {
		if existing.LeafIndex == e.LeafIndex {
			return nil // idempotent on leaf index
		}
	}
	f.events = append(f.events, e)
	return nil
}

type fakeCursors struct {
	cursors map[string]uint64
}

func (f *fakeCursors) Put(ctx context.Context, key string, block uint64) error {
	if f.cursors == nil {
		f.cursors = make(map[string]uint64)
	}
	if block > f.cursors[key] {
		f.cursors[key] = block
	}
	return nil
}

func (f *fakeCursors) Get(ctx context.Context, key string) (uint64, error) {
	if v, ok := f.cursors[key]; ok {
		return v, nil
	}
	return 0, database.ErrCursorNotFound
}

func watcherFixture(backend *fakeBackend) (*Watcher, *fakeDeposits, *fakeAccumulatorJournal, *fakeCursors) {
	deposits := &fakeDeposits{}
	events := &fakeAccumulatorJournal{}
	cursors := &fakeCursors{}
	cfg := &config.Config{
		Contracts: config.ContractsConfig{
			L1ContractAddress: "0x3333333333333333333333333333333333333333",
		},
		Queue: config.QueueConfig{ProcessIntervalSec: 1},
	}
	w := NewWatcher(backend, deposits, events, cursors, cfg, slog.Default())
	return w, deposits, events, cursors
}

// The deposit happy path: a DepositEvent and the subsequent
// DepositHashAppended are observed across two ticks.
func TestWatcher_DepositHappyPath(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	var commitment, root [32]byte
	commitment[31] = 0xaa
	root[31] = 0x0b

	backend := &fakeBackend{latest: 100, logs: []types.Log{
		packDepositEventLog(t, big.NewInt(1), token, user,
			big.NewInt(1000), commitment, root, big.NewInt(1), 100),
	}}
	w, deposits, events, cursors := watcherFixture(backend)
	ctx := context.Background()

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("tick 1 failed: %v", err)
	}

	if len(deposits.upserts) != 1 {
		t.Fatalf("deposit count: got %d, want 1", len(deposits.upserts))
	}
	if got := deposits.status[HashHex(commitment)]; got != database.StatusPendingTreeInclusion {
		t.Errorf("deposit status: got %q, want %q", got, database.StatusPendingTreeInclusion)
	}

	// Second tick sees the accumulator append at block 101.
	backend.latest = 101
	backend.logs = append(backend.logs,
		packHashAppendedLog(t, big.NewInt(1), commitment, root, big.NewInt(1), 101))

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("tick 2 failed: %v", err)
	}

	if len(events.events) != 1 {
		t.Fatalf("archive count: got %d, want 1", len(events.events))
	}
	archived := events.events[0]
	if archived.ElementsCount != 1 {
		t.Errorf("elements count: got %d, want 1", archived.ElementsCount)
	}
	if archived.RootHash != HashHex(root) {
		t.Errorf("root: got %s, want %s", archived.RootHash, HashHex(root))
	}
	if cursors.cursors[database.CursorL1DepositEvents] != 101 {
		t.Errorf("cursor: got %d, want 101", cursors.cursors[database.CursorL1DepositEvents])
	}
}

// Empty ranges advance the cursor anyway, so they are not re-scanned.
func TestWatcher_EmptyRangeAdvancesCursor(t *testing.T) {
	backend := &fakeBackend{latest: 50}
	w, _, _, cursors := watcherFixture(backend)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if cursors.cursors[database.CursorL1DepositEvents] != 50 {
		t.Errorf("cursor: got %d, want 50", cursors.cursors[database.CursorL1DepositEvents])
	}
}

// Cursor is non-decreasing across ticks even when the chain head stalls.
func TestWatcher_CursorMonotonic(t *testing.T) {
	backend := &fakeBackend{latest: 10}
	w, _, _, cursors := watcherFixture(backend)
	ctx := context.Background()

	heads := []uint64{10, 20, 20, 35}
	var prev uint64
	for _, head := range heads {
		backend.latest = head
		if err := w.Tick(ctx); err != nil {
			t.Fatalf("tick failed: %v", err)
		}
		cur := cursors.cursors[database.CursorL1DepositEvents]
		if cur < prev {
			t.Fatalf("cursor went backwards: %d -> %d", prev, cur)
		}
		prev = cur
	}
	if prev != 35 {
		t.Errorf("final cursor: got %d, want 35", prev)
	}
}

// A log that fails to decode is skipped without aborting the batch.
func TestWatcher_SkipsUndecodableLog(t *testing.T) {
	bad := types.Log{
		Topics:      []common.Hash{DepositEventID()}, // missing indexed topics
		BlockNumber: 10,
	}
	backend := &fakeBackend{latest: 10, logs: []types.Log{bad}}
	w, deposits, _, cursors := watcherFixture(backend)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(deposits.upserts) != 0 {
		t.Errorf("no deposits expected, got %d", len(deposits.upserts))
	}
	if cursors.cursors[database.CursorL1DepositEvents] != 10 {
		t.Errorf("cursor: got %d, want 10", cursors.cursors[database.CursorL1DepositEvents])
	}
}
