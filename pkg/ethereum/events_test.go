// Copyright 2025 ZeroXBridge
//
// L1 event decoding tests

package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func packDepositEventLog(t *testing.T, depositID *big.Int, token, user common.Address,
	usdVal *big.Int, commitment, newRoot [32]byte, elementCount *big.Int, block uint64) types.Log {
	t.Helper()

	data, err := bridgeABI.Events["DepositEvent"].Inputs.NonIndexed().Pack(
		uint8(1), usdVal, big.NewInt(7), big.NewInt(1), commitment, newRoot, elementCount)
	if err != nil {
		t.Fatalf("failed to pack event data: %v", err)
	}

	return types.Log{
		Topics: []common.Hash{
			DepositEventID(),
			common.BigToHash(depositID),
			common.BytesToHash(token.Bytes()),
			common.BytesToHash(user.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0xdead"),
	}
}

func packHashAppendedLog(t *testing.T, index *big.Int, commitment, root [32]byte,
	elementsCount *big.Int, block uint64) types.Log {
	t.Helper()

	data, err := bridgeABI.Events["DepositHashAppended"].Inputs.NonIndexed().Pack(
		index, commitment, root, elementsCount)
	if err != nil {
		t.Fatalf("failed to pack event data: %v", err)
	}

	return types.Log{
		Topics:      []common.Hash{DepositHashAppendedID()},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0xbeef"),
	}
}

func TestParseDepositEvent(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	var commitment, newRoot [32]byte
	commitment[31] = 0xaa
	newRoot[31] = 0xbb

	l := packDepositEventLog(t, big.NewInt(5), token, user,
		big.NewInt(1000), commitment, newRoot, big.NewInt(1), 100)

	event, err := ParseDepositEvent(l)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if event.DepositID.Int64() != 5 {
		t.Errorf("deposit id: got %d, want 5", event.DepositID.Int64())
	}
	if event.User != user {
		t.Errorf("user: got %s, want %s", event.User, user)
	}
	if event.Token != token {
		t.Errorf("token: got %s, want %s", event.Token, token)
	}
	if event.USDVal.Int64() != 1000 {
		t.Errorf("usd value: got %d, want 1000", event.USDVal.Int64())
	}
	if event.CommitmentHash != commitment {
		t.Errorf("commitment: got %x, want %x", event.CommitmentHash, commitment)
	}
	if event.BlockNumber != 100 {
		t.Errorf("block number: got %d, want 100", event.BlockNumber)
	}
}

func TestParseDepositEvent_BadTopics(t *testing.T) {
	l := types.Log{Topics: []common.Hash{DepositEventID()}}
	if _, err := ParseDepositEvent(l); err == nil {
		t.Fatal("expected error for missing indexed topics")
	}
}

func TestParseDepositHashAppended(t *testing.T) {
	var commitment, root [32]byte
	commitment[0] = 0x01
	root[0] = 0x02

	l := packHashAppendedLog(t, big.NewInt(1), commitment, root, big.NewInt(1), 101)

	event, err := ParseDepositHashAppended(l)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Index.Int64() != 1 {
		t.Errorf("index: got %d, want 1", event.Index.Int64())
	}
	if event.RootHash != root {
		t.Errorf("root: got %x, want %x", event.RootHash, root)
	}
	if event.ElementsCount.Int64() != 1 {
		t.Errorf("elements count: got %d, want 1", event.ElementsCount.Int64())
	}
}

func TestHashHex(t *testing.T) {
	var h [32]byte
	h[31] = 0x0f
	got := HashHex(h)
	want := "0x000000000000000000000000000000000000000000000000000000000000000f"
	if got != want {
		t.Errorf("hash hex: got %s, want %s", got, want)
	}
}
