// Copyright 2025 ZeroXBridge
//
// Accumulator Manager - in-memory mirrors of the on-chain MMRs
//
// The journal's HashAppended archive is the durable record; the manager
// replays it into the two in-memory accumulators on startup so the
// sequencer can produce inclusion proofs that verify against chain-written
// roots. On a root mismatch the archive is authoritative and the rebuild
// fails loudly.

package accumulator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/mmr"
)

// Archive lists the archived append events in leaf order.
type Archive interface {
	ListOrdered(ctx context.Context, direction database.Direction) ([]*database.AccumulatorEvent, error)
}

// Manager owns the two in-memory accumulators. It is used from the single
// task that appends; concurrent readers consult the journal archive
// instead.
type Manager struct {
	deposits    *mmr.MMR
	withdrawals *mmr.MMR
	logger      *slog.Logger
}

// NewManager creates empty accumulators: Keccak for deposits, Poseidon for
// withdrawals.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		deposits:    mmr.New(mmr.NewKeccakHasher()),
		withdrawals: mmr.New(mmr.NewPoseidonHasher()),
		logger:      logger,
	}
}

// For selects the accumulator for a direction.
func (m *Manager) For(direction database.Direction) *mmr.MMR {
	if direction == database.DirectionWithdrawal {
		return m.withdrawals
	}
	return m.deposits
}

// Rebuild replays both archives into fresh accumulators, checking the
// final root of each against the last archived root.
func (m *Manager) Rebuild(ctx context.Context, archive Archive) error {
	for _, direction := range []database.Direction{database.DirectionDeposit, database.DirectionWithdrawal} {
		if err := m.rebuildDirection(ctx, archive, direction); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) rebuildDirection(ctx context.Context, archive Archive, direction database.Direction) error {
	events, err := archive.ListOrdered(ctx, direction)
	if err != nil {
		return err
	}

	fresh := mmr.New(m.For(direction).HasherKind().NewHasher())
	var last mmr.AppendResult
	for _, event := range events {
		last, err = fresh.Append(event.CommitmentHash)
		if err != nil {
			return fmt.Errorf("replay %s leaf %d: %w", direction, event.LeafIndex, err)
		}
	}

	if len(events) > 0 {
		archivedRoot := events[len(events)-1].RootHash
		canonical, err := canonicalRoot(fresh, archivedRoot)
		if err != nil {
			return err
		}
		if last.Root != canonical {
			return fmt.Errorf("%s accumulator root mismatch after rebuild: computed %s, archive has %s",
				direction, last.Root, archivedRoot)
		}
	}

	if direction == database.DirectionWithdrawal {
		m.withdrawals = fresh
	} else {
		m.deposits = fresh
	}
	m.logger.Info("accumulator rebuilt",
		"direction", direction, "leaves", fresh.LeafCount(), "elements", fresh.ElementsCount())
	return nil
}

// canonicalRoot normalizes an archived root into the accumulator's
// canonical hex form for comparison.
func canonicalRoot(tree *mmr.MMR, root string) (string, error) {
	h := tree.HasherKind().NewHasher()
	return h.Canonicalize(root)
}

// Sync appends archive events the in-memory accumulators have not seen
// yet. Cheap to call periodically: already-applied leaves are skipped by
// node index.
func (m *Manager) Sync(ctx context.Context, archive Archive) error {
	for _, direction := range []database.Direction{database.DirectionDeposit, database.DirectionWithdrawal} {
		tree := m.For(direction)
		events, err := archive.ListOrdered(ctx, direction)
		if err != nil {
			return err
		}
		for _, event := range events {
			if event.LeafIndex <= int64(tree.ElementsCount()) {
				continue
			}
			res, err := tree.Append(event.CommitmentHash)
			if err != nil {
				return fmt.Errorf("sync %s leaf %d: %w", direction, event.LeafIndex, err)
			}
			if int64(res.LeafIndex) != event.LeafIndex {
				return fmt.Errorf("%s accumulator diverged: appended at %d, archive says %d",
					direction, res.LeafIndex, event.LeafIndex)
			}
		}
	}
	return nil
}

// Append folds a new commitment into the direction's accumulator.
func (m *Manager) Append(direction database.Direction, commitment string) (mmr.AppendResult, error) {
	return m.For(direction).Append(commitment)
}

// Proof builds an inclusion proof against the direction's accumulator.
func (m *Manager) Proof(direction database.Direction, leafIndex uint64) (*mmr.Proof, error) {
	return m.For(direction).GetProof(leafIndex)
}
