// Copyright 2025 ZeroXBridge
//
// L2 watcher tests

package starknet

import (
	"context"
	"log/slog"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

type fakeProvider struct {
	latest uint64
	// pages are served in order; the last page carries no continuation
	// token.
	pages     []*rpc.EventChunk
	pageIndex int
	requests  []rpc.EventsInput
}

func (f *fakeProvider) BlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeProvider) Events(ctx context.Context, input rpc.EventsInput) (*rpc.EventChunk, error) {
	f.requests = append(f.requests, input)
	if f.pageIndex >= len(f.pages) {
		return &rpc.EventChunk{}, nil
	}
	page := f.pages[f.pageIndex]
	f.pageIndex++
	return page, nil
}

type fakeWithdrawals struct {
	upserts []string
	status  map[string]string
}

func (f *fakeWithdrawals) Upsert(ctx context.Context, starkPubKey string, amount int64, commitment, l2TxID, status string) (int64, error) {
	f.upserts = append(f.upserts, commitment)
	if f.status == nil {
		f.status = make(map[string]string)
	}
	f.status[commitment] = status
	return int64(len(f.upserts)), nil
}

type fakeArchive struct {
	events []*database.AccumulatorEvent
}

func (f *fakeArchive) Insert(ctx context.Context, e *database.AccumulatorEvent) error {
	f.events = append(f.events, e)
	return nil
}

type fakeCursorStore struct {
	cursors map[string]uint64
}

func (f *fakeCursorStore) Put(ctx context.Context, key string, block uint64) error {
	if f.cursors == nil {
		f.cursors = make(map[string]uint64)
	}
	if block > f.cursors[key] {
		f.cursors[key] = block
	}
	return nil
}

func (f *fakeCursorStore) Get(ctx context.Context, key string) (uint64, error) {
	if v, ok := f.cursors[key]; ok {
		return v, nil
	}
	return 0, database.ErrCursorNotFound
}

func mustFelt(t *testing.T, s string) *felt.Felt {
	t.Helper()
	f, err := new(felt.Felt).SetString(s)
	if err != nil {
		t.Fatalf("bad felt %q: %v", s, err)
	}
	return f
}

func burnEvent(t *testing.T, block uint64, user, commitment string, amount uint64) rpc.EmittedEvent {
	t.Helper()
	return rpc.EmittedEvent{
		BlockNumber:     block,
		TransactionHash: new(felt.Felt).SetUint64(block * 1000),
		Event: rpc.Event{
			Keys: []*felt.Felt{mustFelt(t, BurnEventKey)},
			Data: []*felt.Felt{
				mustFelt(t, user),
				new(felt.Felt).SetUint64(amount),
				new(felt.Felt),
				mustFelt(t, commitment),
			},
		},
	}
}

func hashAppendedEvent(t *testing.T, block, index uint64, commitment, root string, elements uint64) rpc.EmittedEvent {
	t.Helper()
	return rpc.EmittedEvent{
		BlockNumber:     block,
		TransactionHash: new(felt.Felt).SetUint64(block * 1000),
		Event: rpc.Event{
			Keys: []*felt.Felt{mustFelt(t, WithdrawalHashAppendedKey)},
			Data: []*felt.Felt{
				new(felt.Felt).SetUint64(index),
				mustFelt(t, commitment),
				mustFelt(t, root),
				new(felt.Felt).SetUint64(elements),
			},
		},
	}
}

func l2WatcherFixture(t *testing.T, provider *fakeProvider) (*Watcher, *fakeWithdrawals, *fakeArchive, *fakeCursorStore) {
	t.Helper()
	withdrawals := &fakeWithdrawals{}
	archive := &fakeArchive{}
	cursors := &fakeCursorStore{}
	cfg := &config.Config{
		Contracts: config.ContractsConfig{L2ContractAddress: "0x5555"},
		Queue:     config.QueueConfig{ProcessIntervalSec: 1},
	}
	w, err := NewWatcher(provider, withdrawals, archive, cursors, cfg, slog.Default())
	if err != nil {
		t.Fatalf("watcher construction failed: %v", err)
	}
	return w, withdrawals, archive, cursors
}

func TestL2Watcher_BurnAndAppend(t *testing.T) {
	provider := &fakeProvider{
		latest: 200,
		pages: []*rpc.EventChunk{{
			Events: []rpc.EmittedEvent{
				burnEvent(t, 199, "0x7", "0xabc", 500),
				hashAppendedEvent(t, 200, 1, "0xabc", "0xdef", 1),
			},
		}},
	}
	w, withdrawals, archive, cursors := l2WatcherFixture(t, provider)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(withdrawals.upserts) != 1 {
		t.Fatalf("withdrawal count: got %d, want 1", len(withdrawals.upserts))
	}
	if got := withdrawals.status["0xabc"]; got != database.StatusPendingTreeInclusion {
		t.Errorf("withdrawal status: got %q, want %q", got, database.StatusPendingTreeInclusion)
	}

	if len(archive.events) != 1 {
		t.Fatalf("archive count: got %d, want 1", len(archive.events))
	}
	if archive.events[0].Direction != database.DirectionWithdrawal {
		t.Errorf("direction: got %q", archive.events[0].Direction)
	}
	if archive.events[0].ElementsCount != 1 {
		t.Errorf("elements count: got %d, want 1", archive.events[0].ElementsCount)
	}

	if cursors.cursors[database.CursorL2BurnEvents] != 200 {
		t.Errorf("cursor: got %d, want 200", cursors.cursors[database.CursorL2BurnEvents])
	}
}

// Pagination follows the continuation token until the response omits it.
func TestL2Watcher_Pagination(t *testing.T) {
	provider := &fakeProvider{
		latest: 300,
		pages: []*rpc.EventChunk{
			{
				Events:            []rpc.EmittedEvent{burnEvent(t, 250, "0x1", "0xa1", 10)},
				ContinuationToken: "page-2",
			},
			{
				Events: []rpc.EmittedEvent{burnEvent(t, 260, "0x2", "0xa2", 20)},
			},
		},
	}
	w, withdrawals, _, _ := l2WatcherFixture(t, provider)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(withdrawals.upserts) != 2 {
		t.Fatalf("withdrawal count: got %d, want 2", len(withdrawals.upserts))
	}
	if len(provider.requests) != 2 {
		t.Fatalf("request count: got %d, want 2", len(provider.requests))
	}
	if provider.requests[1].ResultPageRequest.ContinuationToken != "page-2" {
		t.Errorf("second request must carry the continuation token")
	}
}

// Events with short data are skipped without aborting the scan.
func TestL2Watcher_SkipsShortData(t *testing.T) {
	short := rpc.EmittedEvent{
		BlockNumber:     100,
		TransactionHash: new(felt.Felt).SetUint64(1),
		Event: rpc.Event{
			Keys: []*felt.Felt{mustFelt(t, BurnEventKey)},
			Data: []*felt.Felt{new(felt.Felt)}, // too short
		},
	}
	provider := &fakeProvider{
		latest: 100,
		pages:  []*rpc.EventChunk{{Events: []rpc.EmittedEvent{short}}},
	}
	w, withdrawals, _, cursors := l2WatcherFixture(t, provider)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(withdrawals.upserts) != 0 {
		t.Errorf("no withdrawals expected, got %d", len(withdrawals.upserts))
	}
	if cursors.cursors[database.CursorL2BurnEvents] != 100 {
		t.Errorf("cursor: got %d, want 100", cursors.cursors[database.CursorL2BurnEvents])
	}
}

// Empty ranges advance the cursor to the chain head.
func TestL2Watcher_EmptyRangeAdvancesCursor(t *testing.T) {
	provider := &fakeProvider{latest: 77}
	w, _, _, cursors := l2WatcherFixture(t, provider)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if cursors.cursors[database.CursorL2BurnEvents] != 77 {
		t.Errorf("cursor: got %d, want 77", cursors.cursors[database.CursorL2BurnEvents])
	}
}
