// Copyright 2025 ZeroXBridge
//
// TVL Oracle - keeps the L2 oracle contract in sync with L1 locked value
//
// Polls get_total_tvl on both chains and pushes the L1 value to the L2
// oracle whenever the relative difference exceeds the configured tolerance.

package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/ethereum/go-ethereum/common"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

// tvlABI is the read surface of the L1 bridge used by the oracle.
const tvlABI = `[{
	"name": "get_total_tvl",
	"type": "function",
	"stateMutability": "view",
	"inputs": [],
	"outputs": [{"name": "", "type": "uint256"}]
}]`

// L1Reader makes read-only L1 contract calls.
type L1Reader interface {
	CallContract(ctx context.Context, contractAddr common.Address, abiString, methodName string, params ...interface{}) ([]interface{}, error)
}

// L2Oracle reads and updates the L2 oracle contract.
type L2Oracle interface {
	CallFunction(ctx context.Context, contract *felt.Felt, functionName string, calldata []*felt.Felt) ([]*felt.Felt, error)
	Execute(ctx context.Context, call rpc.InvokeFunctionCall) (*felt.Felt, error)
}

// Syncer runs the TVL polling loop.
type Syncer struct {
	l1         L1Reader
	l2         L2Oracle
	l1Contract common.Address
	l2Contract *felt.Felt
	tolerance  float64
	interval   time.Duration
	logger     *slog.Logger
}

// NewSyncer creates the TVL oracle loop.
func NewSyncer(l1 L1Reader, l2 L2Oracle, cfg *config.Config, logger *slog.Logger) (*Syncer, error) {
	l2Contract, err := new(felt.Felt).SetString(cfg.Contracts.L2ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid l2 contract address: %w", err)
	}
	return &Syncer{
		l1:         l1,
		l2:         l2,
		l1Contract: common.HexToAddress(cfg.Contracts.L1ContractAddress),
		l2Contract: l2Contract,
		tolerance:  cfg.Oracle.TolerancePercent,
		interval:   time.Duration(cfg.Oracle.PollingIntervalSeconds) * time.Second,
		logger:     logger,
	}, nil
}

// Run executes sync cycles until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.SyncOnce(ctx); err != nil {
			s.logger.Error("tvl sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SyncOnce compares both TVL values and updates L2 when they diverge.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	l1TVL, err := s.fetchL1TVL(ctx)
	if err != nil {
		return err
	}
	l2TVL, err := s.fetchL2TVL(ctx)
	if err != nil {
		return err
	}

	if !NeedsUpdate(l1TVL, l2TVL, s.tolerance) {
		s.logger.Info("no significant tvl difference", "l1", l1TVL, "l2", l2TVL)
		return nil
	}

	s.logger.Info("significant tvl difference detected, updating l2", "l1", l1TVL, "l2", l2TVL)
	txHash, err := s.l2.Execute(ctx, rpc.InvokeFunctionCall{
		ContractAddress: s.l2Contract,
		FunctionName:    "update_tvl",
		CallData:        []*felt.Felt{new(felt.Felt).SetBigInt(l1TVL)},
	})
	if err != nil {
		return fmt.Errorf("failed to update l2 tvl: %w", err)
	}
	s.logger.Info("l2 tvl updated", "tx", txHash)
	return nil
}

func (s *Syncer) fetchL1TVL(ctx context.Context) (*big.Int, error) {
	outputs, err := s.l1.CallContract(ctx, s.l1Contract, tvlABI, "get_total_tvl")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch l1 tvl: %w", err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("empty l1 tvl response")
	}
	tvl, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected l1 tvl type %T", outputs[0])
	}
	return tvl, nil
}

func (s *Syncer) fetchL2TVL(ctx context.Context) (*big.Int, error) {
	result, err := s.l2.CallFunction(ctx, s.l2Contract, "get_total_tvl", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch l2 tvl: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("empty l2 tvl response")
	}
	return result[0].BigInt(new(big.Int)), nil
}

// NeedsUpdate reports whether the relative difference |l1-l2|/l1 exceeds
// the tolerance. A zero L1 TVL never triggers an update.
func NeedsUpdate(l1, l2 *big.Int, tolerance float64) bool {
	if l1.Sign() == 0 {
		return false
	}
	diff := new(big.Int).Sub(l1, l2)
	diff.Abs(diff)

	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(diff), new(big.Float).SetInt(l1)).Float64()
	return ratio > tolerance
}
