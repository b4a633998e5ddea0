// Copyright 2025 ZeroXBridge
//
// Hash abstraction for the MMR. The deposit accumulator hashes 32-byte
// Keccak words like the Solidity contract; the withdrawal accumulator hashes
// felt252 values like the Cairo contract. Nodes cross package boundaries as
// 0x-prefixed lower-hex strings in each variant's canonical width.

package mmr

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// HasherKind tags the closed set of MMR hash functions.
type HasherKind string

const (
	KindKeccak   HasherKind = "keccak"
	KindPoseidon HasherKind = "poseidon"
)

// NewHasher constructs the hasher implementation for a kind. The set is
// closed: anything unknown falls back to Keccak.
func (k HasherKind) NewHasher() Hasher {
	if k == KindPoseidon {
		return NewPoseidonHasher()
	}
	return NewKeccakHasher()
}

// Hasher is the capability set the MMR needs: pairwise node hashing and the
// final root commitment over (elements_count, bagged_peaks).
type Hasher interface {
	Kind() HasherKind
	HashPair(a, b string) (string, error)
	HashCommit(elementsCount uint64, bag string) (string, error)
	// Canonicalize normalizes an externally supplied scalar into the form
	// this hasher stores and emits.
	Canonicalize(value string) (string, error)
}

// KeccakHasher hashes 32-byte words; output is always 0x + 64 hex chars.
type KeccakHasher struct{}

// NewKeccakHasher returns the hasher used by the L1 deposit accumulator.
func NewKeccakHasher() KeccakHasher { return KeccakHasher{} }

func (KeccakHasher) Kind() HasherKind { return KindKeccak }

func (KeccakHasher) Canonicalize(value string) (string, error) {
	b, err := decodeWord(value)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

func (h KeccakHasher) HashPair(a, b string) (string, error) {
	left, err := decodeWord(a)
	if err != nil {
		return "", err
	}
	right, err := decodeWord(b)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(ethcrypto.Keccak256(left, right)), nil
}

func (h KeccakHasher) HashCommit(elementsCount uint64, bag string) (string, error) {
	count := make([]byte, 32)
	binary.BigEndian.PutUint64(count[24:], elementsCount)
	word, err := decodeWord(bag)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(ethcrypto.Keccak256(count, word)), nil
}

// decodeWord decodes hex into exactly 32 bytes, left-padding shorter input.
func decodeWord(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed)%2 != 0 {
		trimmed = "0" + trimmed
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", s, err)
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("value %q exceeds 32 bytes", s)
	}
	word := make([]byte, 32)
	copy(word[32-len(b):], b)
	return word, nil
}

// PoseidonHasher hashes felt252 values; output is the felt's minimal
// 0x-hex form.
type PoseidonHasher struct{}

// NewPoseidonHasher returns the hasher used by the L2 withdrawal accumulator.
func NewPoseidonHasher() PoseidonHasher { return PoseidonHasher{} }

func (PoseidonHasher) Kind() HasherKind { return KindPoseidon }

func (PoseidonHasher) Canonicalize(value string) (string, error) {
	f, err := parseFelt(value)
	if err != nil {
		return "", err
	}
	return f.String(), nil
}

func (h PoseidonHasher) HashPair(a, b string) (string, error) {
	left, err := parseFelt(a)
	if err != nil {
		return "", err
	}
	right, err := parseFelt(b)
	if err != nil {
		return "", err
	}
	return crypto.Poseidon(left, right).String(), nil
}

func (h PoseidonHasher) HashCommit(elementsCount uint64, bag string) (string, error) {
	b, err := parseFelt(bag)
	if err != nil {
		return "", err
	}
	return crypto.Poseidon(new(felt.Felt).SetUint64(elementsCount), b).String(), nil
}

func parseFelt(s string) (*felt.Felt, error) {
	f, err := new(felt.Felt).SetString(s)
	if err != nil {
		return nil, fmt.Errorf("parse felt %q: %w", s, err)
	}
	return f, nil
}
