// Copyright 2025 ZeroXBridge
//
// Accumulator manager tests

package accumulator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/mmr"
)

type fakeArchive struct {
	events map[database.Direction][]*database.AccumulatorEvent
}

func (f *fakeArchive) ListOrdered(ctx context.Context, direction database.Direction) ([]*database.AccumulatorEvent, error) {
	return f.events[direction], nil
}

// buildArchive appends leaves to a scratch accumulator and records the
// events the contract would have emitted.
func buildArchive(t *testing.T, kind mmr.HasherKind, leaves []string) []*database.AccumulatorEvent {
	t.Helper()
	tree := mmr.New(kind.NewHasher())
	var events []*database.AccumulatorEvent
	for _, leaf := range leaves {
		res, err := tree.Append(leaf)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		events = append(events, &database.AccumulatorEvent{
			LeafIndex:      int64(res.LeafIndex),
			CommitmentHash: leaf,
			RootHash:       res.Root,
			ElementsCount:  int64(res.ElementsCount),
		})
	}
	return events
}

func TestRebuild_ReplaysBothDirections(t *testing.T) {
	depositLeaves := []string{
		"0x00000000000000000000000000000000000000000000000000000000000000aa",
		"0x00000000000000000000000000000000000000000000000000000000000000bb",
		"0x00000000000000000000000000000000000000000000000000000000000000cc",
	}
	withdrawalLeaves := []string{"111", "222"}

	archive := &fakeArchive{events: map[database.Direction][]*database.AccumulatorEvent{
		database.DirectionDeposit:    buildArchive(t, mmr.KindKeccak, depositLeaves),
		database.DirectionWithdrawal: buildArchive(t, mmr.KindPoseidon, withdrawalLeaves),
	}}

	m := NewManager(slog.Default())
	if err := m.Rebuild(context.Background(), archive); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	if got := m.For(database.DirectionDeposit).LeafCount(); got != 3 {
		t.Errorf("deposit leaves: got %d, want 3", got)
	}
	if got := m.For(database.DirectionWithdrawal).LeafCount(); got != 2 {
		t.Errorf("withdrawal leaves: got %d, want 2", got)
	}

	// Rebuilt accumulators serve proofs that verify against the archived
	// roots.
	proof, err := m.Proof(database.DirectionDeposit, 1)
	if err != nil {
		t.Fatalf("proof failed: %v", err)
	}
	ok, err := m.For(database.DirectionDeposit).VerifyProof(proof, depositLeaves[0])
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Error("proof must verify after rebuild")
	}
}

// A corrupted archive root fails the rebuild; the archive is authoritative
// and the mismatch must not be papered over.
func TestRebuild_RootMismatchFails(t *testing.T) {
	events := buildArchive(t, mmr.KindPoseidon, []string{"111", "222"})
	events[len(events)-1].RootHash = "0xdeadbeef"

	archive := &fakeArchive{events: map[database.Direction][]*database.AccumulatorEvent{
		database.DirectionWithdrawal: events,
	}}

	m := NewManager(slog.Default())
	if err := m.Rebuild(context.Background(), archive); err == nil {
		t.Fatal("rebuild must fail on root mismatch")
	}
}

// Sync appends only events beyond the current element count; replayed
// events are skipped.
func TestSync_AppendsNewEventsOnly(t *testing.T) {
	leaves := []string{"111", "222", "333"}
	events := buildArchive(t, mmr.KindPoseidon, leaves)

	archive := &fakeArchive{events: map[database.Direction][]*database.AccumulatorEvent{
		database.DirectionWithdrawal: events[:1],
	}}
	m := NewManager(slog.Default())
	ctx := context.Background()

	if err := m.Rebuild(ctx, archive); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if got := m.For(database.DirectionWithdrawal).LeafCount(); got != 1 {
		t.Fatalf("leaves after rebuild: got %d, want 1", got)
	}

	// Two more events land in the archive; sync folds them in.
	archive.events[database.DirectionWithdrawal] = events
	if err := m.Sync(ctx, archive); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if got := m.For(database.DirectionWithdrawal).LeafCount(); got != 3 {
		t.Errorf("leaves after sync: got %d, want 3", got)
	}

	// A second sync over the same archive is a no-op.
	if err := m.Sync(ctx, archive); err != nil {
		t.Fatalf("repeat sync failed: %v", err)
	}
	if got := m.For(database.DirectionWithdrawal).LeafCount(); got != 3 {
		t.Errorf("leaves after repeat sync: got %d, want 3", got)
	}

	root, err := m.For(database.DirectionWithdrawal).Root()
	if err != nil {
		t.Fatalf("root failed: %v", err)
	}
	if root != events[len(events)-1].RootHash {
		t.Errorf("root after sync: got %s, want %s", root, events[len(events)-1].RootHash)
	}
}

func TestRebuild_EmptyArchive(t *testing.T) {
	m := NewManager(slog.Default())
	if err := m.Rebuild(context.Background(), &fakeArchive{events: map[database.Direction][]*database.AccumulatorEvent{}}); err != nil {
		t.Fatalf("rebuild of empty archive failed: %v", err)
	}
	if m.For(database.DirectionDeposit).ElementsCount() != 0 {
		t.Error("deposit accumulator must be empty")
	}
}
