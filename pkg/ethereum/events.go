// Copyright 2025 ZeroXBridge
//
// EventWatcher event definitions for the L1 bridge contract
//
// The watcher observes two events: DepositEvent, emitted when a user locks
// funds, and DepositHashAppended, emitted when the contract folds the
// commitment into its accumulator.

package ethereum

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// =============================================================================
// Event Structures
// =============================================================================

// DepositEvent represents the DepositEvent emission from the bridge contract
type DepositEvent struct {
	DepositID      *big.Int       `json:"deposit_id"`
	Token          common.Address `json:"token"`
	User           common.Address `json:"user"`
	AssetType      uint8          `json:"asset_type"`
	USDVal         *big.Int       `json:"usd_val"`
	Nonce          *big.Int       `json:"nonce"`
	LeafIndex      *big.Int       `json:"leaf_index"`
	CommitmentHash [32]byte       `json:"commitment_hash"`
	NewRoot        [32]byte       `json:"new_root"`
	ElementCount   *big.Int       `json:"element_count"`

	// Metadata
	BlockNumber uint64    `json:"block_number"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	ParsedAt    time.Time `json:"parsed_at"`
}

// DepositHashAppended represents the accumulator append emission
type DepositHashAppended struct {
	Index          *big.Int `json:"index"`
	CommitmentHash [32]byte `json:"commitment_hash"`
	RootHash       [32]byte `json:"root_hash"`
	ElementsCount  *big.Int `json:"elements_count"`

	// Metadata
	BlockNumber uint64    `json:"block_number"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	ParsedAt    time.Time `json:"parsed_at"`
}

// =============================================================================
// ABI Definition for Event Parsing
// =============================================================================

// BridgeEventsABI contains the ABI for the events we watch
const BridgeEventsABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "assetType", "type": "uint8"},
			{"indexed": false, "name": "usdVal", "type": "uint256"},
			{"indexed": false, "name": "nonce", "type": "uint256"},
			{"indexed": false, "name": "leafIndex", "type": "uint256"},
			{"indexed": true, "name": "depositId", "type": "uint256"},
			{"indexed": true, "name": "token", "type": "address"},
			{"indexed": true, "name": "user", "type": "address"},
			{"indexed": false, "name": "commitmentHash", "type": "bytes32"},
			{"indexed": false, "name": "newRoot", "type": "bytes32"},
			{"indexed": false, "name": "elementCount", "type": "uint256"}
		],
		"name": "DepositEvent",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "index", "type": "uint256"},
			{"indexed": false, "name": "commitmentHash", "type": "bytes32"},
			{"indexed": false, "name": "rootHash", "type": "bytes32"},
			{"indexed": false, "name": "elementsCount", "type": "uint256"}
		],
		"name": "DepositHashAppended",
		"type": "event"
	}
]`

// bridgeABI is parsed once at package init.
var bridgeABI = mustParseABI(BridgeEventsABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid bridge events ABI: %v", err))
	}
	return parsed
}

// DepositEventID returns the topic hash for DepositEvent.
func DepositEventID() common.Hash {
	return bridgeABI.Events["DepositEvent"].ID
}

// DepositHashAppendedID returns the topic hash for DepositHashAppended.
func DepositHashAppendedID() common.Hash {
	return bridgeABI.Events["DepositHashAppended"].ID
}

// ParseDepositEvent decodes a raw log into a DepositEvent.
func ParseDepositEvent(l types.Log) (*DepositEvent, error) {
	if len(l.Topics) != 4 {
		return nil, fmt.Errorf("DepositEvent log has %d topics, want 4", len(l.Topics))
	}

	unpacked := make(map[string]interface{})
	if err := bridgeABI.UnpackIntoMap(unpacked, "DepositEvent", l.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack DepositEvent: %w", err)
	}

	event := &DepositEvent{
		DepositID:   new(big.Int).SetBytes(l.Topics[1].Bytes()),
		Token:       common.BytesToAddress(l.Topics[2].Bytes()),
		User:        common.BytesToAddress(l.Topics[3].Bytes()),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash.Hex(),
		LogIndex:    l.Index,
		ParsedAt:    time.Now(),
	}

	var ok bool
	if event.AssetType, ok = unpacked["assetType"].(uint8); !ok {
		return nil, fmt.Errorf("DepositEvent: bad assetType")
	}
	if event.USDVal, ok = unpacked["usdVal"].(*big.Int); !ok {
		return nil, fmt.Errorf("DepositEvent: bad usdVal")
	}
	if event.Nonce, ok = unpacked["nonce"].(*big.Int); !ok {
		return nil, fmt.Errorf("DepositEvent: bad nonce")
	}
	if event.LeafIndex, ok = unpacked["leafIndex"].(*big.Int); !ok {
		return nil, fmt.Errorf("DepositEvent: bad leafIndex")
	}
	if event.CommitmentHash, ok = unpacked["commitmentHash"].([32]byte); !ok {
		return nil, fmt.Errorf("DepositEvent: bad commitmentHash")
	}
	if event.NewRoot, ok = unpacked["newRoot"].([32]byte); !ok {
		return nil, fmt.Errorf("DepositEvent: bad newRoot")
	}
	if event.ElementCount, ok = unpacked["elementCount"].(*big.Int); !ok {
		return nil, fmt.Errorf("DepositEvent: bad elementCount")
	}

	return event, nil
}

// ParseDepositHashAppended decodes a raw log into a DepositHashAppended.
func ParseDepositHashAppended(l types.Log) (*DepositHashAppended, error) {
	unpacked := make(map[string]interface{})
	if err := bridgeABI.UnpackIntoMap(unpacked, "DepositHashAppended", l.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack DepositHashAppended: %w", err)
	}

	event := &DepositHashAppended{
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash.Hex(),
		LogIndex:    l.Index,
		ParsedAt:    time.Now(),
	}

	var ok bool
	if event.Index, ok = unpacked["index"].(*big.Int); !ok {
		return nil, fmt.Errorf("DepositHashAppended: bad index")
	}
	if event.CommitmentHash, ok = unpacked["commitmentHash"].([32]byte); !ok {
		return nil, fmt.Errorf("DepositHashAppended: bad commitmentHash")
	}
	if event.RootHash, ok = unpacked["rootHash"].([32]byte); !ok {
		return nil, fmt.Errorf("DepositHashAppended: bad rootHash")
	}
	if event.ElementsCount, ok = unpacked["elementsCount"].(*big.Int); !ok {
		return nil, fmt.Errorf("DepositHashAppended: bad elementsCount")
	}

	return event, nil
}

// HashHex renders a 32-byte event field in the journal's canonical
// 0x + 64-hex form.
func HashHex(h [32]byte) string {
	return "0x" + common.Bytes2Hex(h[:])
}
