// Copyright 2025 ZeroXBridge
//
// Commitment hashers for both bridge directions. The L1 (Keccak) form
// replicates Solidity's keccak256(abi.encodePacked(user, usdVal, nonce,
// timestamp)); the L2 (Poseidon) form matches the Cairo contract's felt252
// hashing. Users compute the same values off-chain, so both functions must
// stay bit-compatible with the verifying contracts.

package hashing

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidCommitmentInput is returned when a caller address or recipient
// cannot be interpreted as the 32-byte / felt252 value the contracts expect.
var ErrInvalidCommitmentInput = errors.New("invalid commitment input")

// BurnData carries the fields bound by an L1 withdrawal commitment.
type BurnData struct {
	Caller    string // stark pub key of the burning user, 0x-prefixed 32-byte hex
	Amount    uint64 // USD value being withdrawn
	Nonce     uint64
	Timestamp uint64
}

// NewBurnData constructs a BurnData value.
func NewBurnData(caller string, amount, nonce, timestamp uint64) BurnData {
	return BurnData{Caller: caller, Amount: amount, Nonce: nonce, Timestamp: timestamp}
}

// CommitmentHash computes keccak256 over the packed encoding of the burn
// data. The packing is four 32-byte big-endian words: the caller verbatim
// followed by amount, nonce and timestamp zero-padded on the left, exactly
// as abi.encodePacked produces for (bytes32, uint256, uint256, uint256).
func (d BurnData) CommitmentHash() ([32]byte, error) {
	var out [32]byte

	caller, err := HexToBytes32(d.Caller)
	if err != nil {
		return out, err
	}

	packed := make([]byte, 0, 128)
	packed = append(packed, caller[:]...)
	packed = append(packed, u64ToU256Bytes(d.Amount)...)
	packed = append(packed, u64ToU256Bytes(d.Nonce)...)
	packed = append(packed, u64ToU256Bytes(d.Timestamp)...)

	copy(out[:], ethcrypto.Keccak256(packed))
	return out, nil
}

// CommitmentHex returns the commitment as 0x-prefixed lower hex, the form
// persisted in the journal and compared against on-chain event data.
func (d BurnData) CommitmentHex() (string, error) {
	h, err := d.CommitmentHash()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(h[:]), nil
}

// HexToBytes32 decodes a 0x-prefixed (or bare) hex string into exactly 32
// bytes. Anything else is an invalid commitment input.
func HexToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidCommitmentInput, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidCommitmentInput, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func u64ToU256Bytes(v uint64) []byte {
	b := make([]byte, 32)
	binary.BigEndian.PutUint64(b[24:], v)
	return b
}

// HashMethod selects between the two Poseidon commitment constructions the
// Cairo contracts use. They produce different outputs for the same input.
type HashMethod int

const (
	// SequentialPairwise folds poseidon_hash(poseidon_hash(poseidon_hash(a,b),c),d).
	// This is the contract idiom and the default.
	SequentialPairwise HashMethod = iota

	// BatchHash feeds all elements through one sponge, equivalent to
	// poseidon_hash_many(v).
	BatchHash
)

// MintData carries the fields bound by an L2 deposit commitment.
type MintData struct {
	Recipient *felt.Felt
	Amount    *big.Int
	Nonce     uint64
	Timestamp uint64
}

// NewMintData constructs a MintData value.
func NewMintData(recipient *felt.Felt, amount *big.Int, nonce, timestamp uint64) MintData {
	return MintData{Recipient: recipient, Amount: amount, Nonce: nonce, Timestamp: timestamp}
}

// FieldElements returns the ordered felt252 inputs to the commitment hash.
func (d MintData) FieldElements() []*felt.Felt {
	amount := new(felt.Felt)
	if d.Amount != nil {
		amount.SetBigInt(d.Amount)
	}
	return []*felt.Felt{
		d.Recipient,
		amount,
		new(felt.Felt).SetUint64(d.Nonce),
		new(felt.Felt).SetUint64(d.Timestamp),
	}
}

// ComputePoseidonCommitment hashes (recipient, amount, nonce, timestamp)
// into a deposit commitment felt using the selected method.
func ComputePoseidonCommitment(recipient *felt.Felt, amount *big.Int, nonce, timestamp uint64, method HashMethod) (*felt.Felt, error) {
	if recipient == nil {
		return nil, fmt.Errorf("%w: nil recipient", ErrInvalidCommitmentInput)
	}

	elements := NewMintData(recipient, amount, nonce, timestamp).FieldElements()

	switch method {
	case BatchHash:
		return crypto.PoseidonArray(elements...), nil
	case SequentialPairwise:
		result := elements[0]
		for _, e := range elements[1:] {
			result = crypto.Poseidon(result, e)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: unknown hash method %d", ErrInvalidCommitmentInput, method)
	}
}

// ParseFelt interprets a decimal or 0x-hex string as a field element.
func ParseFelt(s string) (*felt.Felt, error) {
	f, err := new(felt.Felt).SetString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a field element", ErrInvalidCommitmentInput, s)
	}
	return f, nil
}
