// Copyright 2025 ZeroXBridge
//
// MMR accumulator tests

package mmr

import (
	"fmt"
	"strings"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keccakLeaf(i byte) string {
	b := make([]byte, 32)
	for j := range b {
		b[j] = i
	}
	return fmt.Sprintf("0x%x", b)
}

func TestPeakPositions(t *testing.T) {
	cases := []struct {
		size  uint64
		peaks []uint64
	}{
		{1, []uint64{1}},
		{3, []uint64{3}},
		{4, []uint64{3, 4}},
		{7, []uint64{7}},
		{8, []uint64{7, 8}},
		{10, []uint64{7, 10}},
		{11, []uint64{7, 10, 11}},
		{15, []uint64{15}},
		{19, []uint64{15, 18, 19}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.peaks, peakPositions(tc.size), "size %d", tc.size)
	}

	// Sizes where a sibling exists without its parent are not valid MMRs.
	assert.Nil(t, peakPositions(2))
	assert.Nil(t, peakPositions(5))
	assert.Nil(t, peakPositions(0))
}

func TestAppend_ElementCounts(t *testing.T) {
	m := New(NewKeccakHasher())

	// leaves -> total node counts for the canonical construction
	wantCounts := []uint64{1, 3, 4, 7, 8, 10, 11, 15}
	for i, want := range wantCounts {
		res, err := m.Append(keccakLeaf(byte(i + 1)))
		require.NoError(t, err)
		assert.Equal(t, want, res.ElementsCount, "after %d leaves", i+1)
		assert.Equal(t, want, m.ElementsCount())
	}
	assert.Equal(t, uint64(8), m.LeafCount())
}

func TestAppend_LeafIndexes(t *testing.T) {
	m := New(NewKeccakHasher())

	wantIndexes := []uint64{1, 2, 4, 5, 8, 9, 11, 12}
	for i, want := range wantIndexes {
		res, err := m.Append(keccakLeaf(byte(i + 1)))
		require.NoError(t, err)
		assert.Equal(t, want, res.LeafIndex, "leaf %d", i+1)
	}
}

func TestRoundTrip_Keccak(t *testing.T) {
	for leaves := 1; leaves <= 16; leaves++ {
		m := New(NewKeccakHasher())
		var indexes []uint64
		for i := 0; i < leaves; i++ {
			res, err := m.Append(keccakLeaf(byte(i + 1)))
			require.NoError(t, err)
			indexes = append(indexes, res.LeafIndex)
		}
		for i, idx := range indexes {
			proof, err := m.GetProof(idx)
			require.NoError(t, err, "leaves=%d idx=%d", leaves, idx)
			ok, err := m.VerifyProof(proof, keccakLeaf(byte(i+1)))
			require.NoError(t, err)
			assert.True(t, ok, "proof must verify: leaves=%d leaf=%d", leaves, i+1)
		}
	}
}

func TestRoundTrip_Poseidon(t *testing.T) {
	m := New(NewPoseidonHasher())
	var indexes []uint64
	for i := 1; i <= 9; i++ {
		res, err := m.Append(fmt.Sprintf("%d", i*1000))
		require.NoError(t, err)
		indexes = append(indexes, res.LeafIndex)
	}
	for i, idx := range indexes {
		proof, err := m.GetProof(idx)
		require.NoError(t, err)
		ok, err := m.VerifyProof(proof, fmt.Sprintf("%d", (i+1)*1000))
		require.NoError(t, err)
		assert.True(t, ok, "leaf %d", i+1)
	}
}

func TestVerifyProof_WrongLeaf(t *testing.T) {
	m := New(NewKeccakHasher())
	for i := 1; i <= 4; i++ {
		_, err := m.Append(keccakLeaf(byte(i)))
		require.NoError(t, err)
	}
	proof, err := m.GetProof(1)
	require.NoError(t, err)

	ok, err := m.VerifyProof(proof, keccakLeaf(9))
	require.NoError(t, err)
	assert.False(t, ok, "proof for leaf 1 must not verify leaf 9")
}

func TestVerifyProof_StaleAfterAppend(t *testing.T) {
	m := New(NewPoseidonHasher())
	res, err := m.Append("111")
	require.NoError(t, err)
	proof, err := m.GetProof(res.LeafIndex)
	require.NoError(t, err)

	_, err = m.Append("222")
	require.NoError(t, err)

	// The witness commits to the old elements count; against the grown
	// accumulator it no longer matches the current root.
	ok, err := m.VerifyProof(proof, "111")
	require.NoError(t, err)
	assert.False(t, ok)
}

// The reference vector produced by the withdrawal contract: four felt252
// commitments and the root the contract computed after the fourth append.
func TestPoseidonReferenceVector(t *testing.T) {
	leaves := []string{
		"3085182978037364507644541379307921604860861694664657935759708330416374536741",
		"1515056012081702936544604035253985638654900467413915026150760243646139951112",
		"2323060256672561756159719169078931556938075970039758487114302926228175567841",
		"884555293850013781657518953358027212692898536740606299472615094634234324840",
	}

	m := New(NewPoseidonHasher())
	var last AppendResult
	for _, leaf := range leaves {
		var err error
		last, err = m.Append(leaf)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(7), last.ElementsCount)

	expected, err := new(felt.Felt).SetString(
		"423282815349921591262243120076891478879135827696329377607682678064132796520")
	require.NoError(t, err)
	assert.Equal(t, expected.String(), last.Root)
}

// Two live peaks (3 leaves, node positions [3, 4]): the bag is the
// spec-ordered pair H(p_2, p_1) — shortest first, tallest second — and the
// root commits the element count over it. The expectation is hand-built
// from the hasher primitives, independently of the fold under test.
func TestRoot_TwoPeaksKeccak(t *testing.T) {
	h := NewKeccakHasher()
	m := New(h)
	var last AppendResult
	for i := 1; i <= 3; i++ {
		var err error
		last, err = m.Append(keccakLeaf(byte(i)))
		require.NoError(t, err)
	}
	require.Equal(t, uint64(4), last.ElementsCount)
	require.Equal(t, []uint64{3, 4}, peakPositions(4))

	p1, err := m.Node(3) // tallest peak
	require.NoError(t, err)
	p2, err := m.Node(4) // shortest peak
	require.NoError(t, err)

	bag, err := h.HashPair(p2, p1)
	require.NoError(t, err)
	want, err := h.HashCommit(4, bag)
	require.NoError(t, err)

	assert.Equal(t, want, last.Root)
}

// Three live peaks (11 leaves, 19 nodes, peak positions [15, 18, 19]):
// the fold nests as H(p_3, H(p_2, p_1)).
func TestRoot_ThreePeaksPoseidon(t *testing.T) {
	h := NewPoseidonHasher()
	m := New(h)
	var last AppendResult
	for i := 1; i <= 11; i++ {
		var err error
		last, err = m.Append(fmt.Sprintf("%d", i*100))
		require.NoError(t, err)
	}
	require.Equal(t, uint64(19), last.ElementsCount)
	require.Equal(t, []uint64{15, 18, 19}, peakPositions(19))

	p1, err := m.Node(15)
	require.NoError(t, err)
	p2, err := m.Node(18)
	require.NoError(t, err)
	p3, err := m.Node(19)
	require.NoError(t, err)

	inner, err := h.HashPair(p2, p1)
	require.NoError(t, err)
	bag, err := h.HashPair(p3, inner)
	require.NoError(t, err)
	want, err := h.HashCommit(19, bag)
	require.NoError(t, err)

	assert.Equal(t, want, last.Root)

	// And the multi-peak state still round-trips inclusion proofs.
	proof, err := m.GetProof(16) // a leaf under the middle peak's range
	require.NoError(t, err)
	ok, err := m.VerifyProof(proof, fmt.Sprintf("%d", 9*100))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeccakCanonicalForm(t *testing.T) {
	h := NewKeccakHasher()

	// Short values are left padded to the full 64-hex word.
	got, err := h.Canonicalize("0xabc")
	require.NoError(t, err)
	assert.Len(t, got, 2+64)
	assert.Equal(t, "0x"+strings.Repeat("0", 61)+"abc", got)

	_, err = h.Canonicalize("0x" + "ff" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	assert.Error(t, err, "33-byte value must be rejected")
}

func TestFindLeaf(t *testing.T) {
	m := New(NewKeccakHasher())
	for i := 1; i <= 3; i++ {
		_, err := m.Append(keccakLeaf(byte(i)))
		require.NoError(t, err)
	}
	idx, ok := m.FindLeaf(keccakLeaf(2))
	require.True(t, ok)
	assert.Equal(t, uint64(2), idx)

	_, ok = m.FindLeaf(keccakLeaf(99))
	assert.False(t, ok)
}

func TestGetProof_Errors(t *testing.T) {
	m := New(NewKeccakHasher())
	_, err := m.GetProof(1)
	assert.ErrorIs(t, err, ErrEmptyMMR)

	_, err = m.Append(keccakLeaf(1))
	require.NoError(t, err)
	_, err = m.GetProof(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
