// Copyright 2025 ZeroXBridge
//
// Inclusion proofs. A proof carries the sibling path from the element to
// its mountain peak plus the full peak list; verification recomputes the
// peak, substitutes it into the peak list, re-bags and compares the root.

package mmr

import (
	"crypto/subtle"
	"fmt"
)

// Proof is an inclusion witness for one element against a fixed
// accumulator size.
type Proof struct {
	ElementIndex  uint64   `json:"element_index"`
	ElementHash   string   `json:"element_hash"`
	Siblings      []string `json:"siblings_hashes"`
	PeaksHashes   []string `json:"peaks_hashes"`
	ElementsCount uint64   `json:"elements_count"`
}

// GetProof builds an inclusion proof for the element at the given one-based
// index.
func (m *MMR) GetProof(elementIndex uint64) (*Proof, error) {
	if m.elementsCount == 0 {
		return nil, ErrEmptyMMR
	}
	if elementIndex == 0 || elementIndex > m.elementsCount {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, elementIndex, m.elementsCount)
	}

	peaks := peakPositions(m.elementsCount)
	peakSet := make(map[uint64]struct{}, len(peaks))
	for _, p := range peaks {
		peakSet[p] = struct{}{}
	}

	elementHash, err := m.Node(elementIndex)
	if err != nil {
		return nil, err
	}

	var siblings []string
	index := elementIndex
	for {
		if _, isPeak := peakSet[index]; isPeak {
			break
		}
		height := posHeight(index)
		var siblingIndex, parentIndex uint64
		if posHeight(index+1) > height {
			// index is a right child; the sibling sits to the left and
			// the parent immediately follows.
			siblingIndex = index - siblingOffset(height)
			parentIndex = index + 1
		} else {
			siblingIndex = index + siblingOffset(height)
			parentIndex = index + parentOffset(height)
		}
		sibling, err := m.Node(siblingIndex)
		if err != nil {
			return nil, err
		}
		siblings = append(siblings, sibling)
		index = parentIndex
	}

	return &Proof{
		ElementIndex:  elementIndex,
		ElementHash:   elementHash,
		Siblings:      siblings,
		PeaksHashes:   m.PeakHashes(),
		ElementsCount: m.elementsCount,
	}, nil
}

// VerifyProof checks the proof for the given leaf value against the
// accumulator's current root. The root comparison is constant time.
func (m *MMR) VerifyProof(proof *Proof, leaf string) (bool, error) {
	if proof == nil {
		return false, fmt.Errorf("nil proof")
	}
	canonical, err := m.hasher.Canonicalize(leaf)
	if err != nil {
		return false, err
	}
	if canonical != proof.ElementHash {
		return false, nil
	}

	// Climb from the element to its peak.
	hash := canonical
	index := proof.ElementIndex
	for _, sibling := range proof.Siblings {
		height := posHeight(index)
		if posHeight(index+1) > height {
			hash, err = m.hasher.HashPair(sibling, hash)
			index = index + 1
		} else {
			hash, err = m.hasher.HashPair(hash, sibling)
			index = index + parentOffset(height)
		}
		if err != nil {
			return false, err
		}
	}

	// The recomputed peak must appear in the witness peak list.
	found := false
	for _, p := range proof.PeaksHashes {
		if p == hash {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	bag, err := m.bagThePeaks(proof.PeaksHashes)
	if err != nil {
		return false, err
	}
	computed, err := m.hasher.HashCommit(proof.ElementsCount, bag)
	if err != nil {
		return false, err
	}
	current, err := m.Root()
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(current)) == 1, nil
}
