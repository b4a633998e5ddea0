// Copyright 2025 ZeroXBridge
//
// Starknet client for the sequencer: a JSON-RPC provider for event scans
// and one invoking account for proof submission. The narrow interfaces keep
// the closed set of chain capabilities testable without a network.

package starknet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

// Provider is the read surface of the L2 RPC the watcher needs.
type Provider interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Events(ctx context.Context, input rpc.EventsInput) (*rpc.EventChunk, error)
}

// Invoker sends one contract invocation and returns its transaction hash.
type Invoker interface {
	Execute(ctx context.Context, call rpc.InvokeFunctionCall) (*felt.Felt, error)
}

// ReceiptStatus is the collapsed outcome of a receipt poll.
type ReceiptStatus int

const (
	// ReceiptPending covers both a missing transaction hash and a receipt
	// that has not reached an execution status yet.
	ReceiptPending ReceiptStatus = iota
	ReceiptSucceeded
	ReceiptReverted
)

// Receipt is the submitter's view of a transaction receipt.
type Receipt struct {
	Status       ReceiptStatus
	RevertReason string
}

// ReceiptSource polls transaction receipts.
type ReceiptSource interface {
	Receipt(ctx context.Context, txHash *felt.Felt) (*Receipt, error)
}

// Client wires the starknet.go provider and account into the interfaces
// above.
type Client struct {
	provider *rpc.Provider
	account  *account.Account
}

// NewClient connects the provider and, when an account is configured, the
// invoking signer.
func NewClient(cfg *config.Config) (*Client, error) {
	provider, err := rpc.NewProvider(cfg.Starknet.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Starknet: %w", err)
	}

	c := &Client{provider: provider}

	if cfg.Starknet.AccountAddress != "" && cfg.Starknet.PrivateKey != "" {
		address, err := new(felt.Felt).SetString(cfg.Starknet.AccountAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid account address: %w", err)
		}

		privateKey, ok := new(big.Int).SetString(strings.TrimPrefix(cfg.Starknet.PrivateKey, "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("invalid starknet private key")
		}
		keystore := account.SetNewMemKeystore(cfg.Starknet.AccountAddress, privateKey)

		acc, err := account.NewAccount(provider, address, cfg.Starknet.AccountAddress, keystore, 2)
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		c.account = acc
	}

	return c, nil
}

// BlockNumber returns the latest L2 block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.provider.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// Events runs one page of a getEvents query.
func (c *Client) Events(ctx context.Context, input rpc.EventsInput) (*rpc.EventChunk, error) {
	chunk, err := c.provider.Events(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return chunk, nil
}

// Execute signs and sends one invoke transaction.
func (c *Client) Execute(ctx context.Context, call rpc.InvokeFunctionCall) (*felt.Felt, error) {
	if c.account == nil {
		return nil, fmt.Errorf("no starknet account configured")
	}
	resp, err := c.account.BuildAndSendInvokeTxn(ctx, []rpc.InvokeFunctionCall{call}, 1.5)
	if err != nil {
		return nil, fmt.Errorf("failed to send invoke: %w", err)
	}
	return resp.TransactionHash, nil
}

// CallFunction runs a read-only contract call at the latest block.
func (c *Client) CallFunction(ctx context.Context, contract *felt.Felt, functionName string, calldata []*felt.Felt) ([]*felt.Felt, error) {
	result, err := c.provider.Call(ctx, rpc.FunctionCall{
		ContractAddress:    contract,
		EntryPointSelector: utils.GetSelectorFromNameFelt(functionName),
		Calldata:           calldata,
	}, rpc.WithBlockTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("contract call %s failed: %w", functionName, err)
	}
	return result, nil
}

// Receipt polls one transaction receipt and collapses it into the
// submitter's status model. A missing hash is a not-yet condition.
func (c *Client) Receipt(ctx context.Context, txHash *felt.Felt) (*Receipt, error) {
	receipt, err := c.provider.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, rpc.ErrHashNotFound) {
			return &Receipt{Status: ReceiptPending}, nil
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	switch receipt.ExecutionStatus {
	case rpc.TxnExecutionStatusSUCCEEDED:
		return &Receipt{Status: ReceiptSucceeded}, nil
	case rpc.TxnExecutionStatusREVERTED:
		return &Receipt{Status: ReceiptReverted, RevertReason: receipt.RevertReason}, nil
	}
	return &Receipt{Status: ReceiptPending}, nil
}
