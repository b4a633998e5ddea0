// Copyright 2025 ZeroXBridge
//
// Proof Submitter - staged submission of a STARK proof to the L2 verifier
//
// The verifier accepts a proof only in pieces: verify_proof_initial, then
// one verify_proof_step per stepN file, then
// verify_proof_final_and_register_fact. Once a stage's transaction is
// confirmed, the journal records that stage's marker and then the transaction
// hash, so a restarted submitter resumes after the last recorded marker. A
// stage whose transaction confirmed but whose marker was not yet written is
// sent again on resume.

package starknet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
)

// Submitter errors
var (
	// ErrCalldataDirNotFound means the artifact directory is gone.
	ErrCalldataDirNotFound = errors.New("calldata directory not found")

	// ErrCalldataFileMissing means a required stage file (initial or
	// final) is absent.
	ErrCalldataFileMissing = errors.New("required calldata file missing")

	// ErrTransactionReverted is terminal for the job.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrTransactionTimeout means the receipt never appeared inside the
	// configured window; the send is retryable.
	ErrTransactionTimeout = errors.New("transaction timeout")
)

// Verifier entry points.
const (
	fnVerifyInitial = "verify_proof_initial"
	fnVerifyStep    = "verify_proof_step"
	fnVerifyFinal   = "verify_proof_final_and_register_fact"
)

const receiptPollInterval = 2 * time.Second

// ProofJobJournal is the journal surface the submitter drives.
type ProofJobJournal interface {
	CreateOrGet(ctx context.Context, jobID int64, params database.NewProofJobParams) (*database.ProofJob, error)
	UpdateStage(ctx context.Context, id int64, stage string) error
	AddTxHash(ctx context.Context, id int64, stage, txHash string) error
	IncrementRetry(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) (int64, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Submitter drives the staged proof submission protocol.
type Submitter struct {
	journal  ProofJobJournal
	invoker  Invoker
	receipts ReceiptSource
	contract *felt.Felt
	cfg      config.StarknetConfig
	logger   *slog.Logger
}

// NewSubmitter creates a proof submitter.
func NewSubmitter(journal ProofJobJournal, invoker Invoker, receipts ReceiptSource, cfg *config.Config, logger *slog.Logger) (*Submitter, error) {
	contract, err := new(felt.Felt).SetString(cfg.Starknet.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid verifier contract address: %w", err)
	}
	return &Submitter{
		journal:  journal,
		invoker:  invoker,
		receipts: receipts,
		contract: contract,
		cfg:      cfg.Starknet,
		logger:   logger,
	}, nil
}

// SubmitFromCalldata is the entry point: create or load the job for jobID,
// then run (or resume) the staged protocol over the calldata directory.
func (s *Submitter) SubmitFromCalldata(ctx context.Context, calldataDir string, jobID int64, layout, hasher, stoneVersion, memoryVerification string) error {
	s.logger.Info("starting proof submission", "job", jobID, "calldata_dir", calldataDir)

	if _, err := os.Stat(calldataDir); err != nil {
		return fmt.Errorf("%w: %s", ErrCalldataDirNotFound, calldataDir)
	}

	job, err := s.journal.CreateOrGet(ctx, jobID, database.NewProofJobParams{
		CalldataDir:        calldataDir,
		Layout:             layout,
		Hasher:             hasher,
		StoneVersion:       stoneVersion,
		MemoryVerification: memoryVerification,
	})
	if err != nil {
		return err
	}

	s.logger.Info("processing proof job", "job", job.JobID, "stage", job.CurrentStage.String)
	return s.Resume(ctx, job)
}

// Resume inspects current_stage and continues from the next pending action.
func (s *Submitter) Resume(ctx context.Context, job *database.ProofJob) error {
	stage := job.CurrentStage.String

	switch {
	case stage == "" || stage == database.StageProcessing:
		return s.runFullFlow(ctx, job)

	case stage == database.StageInitialSubmitted:
		if err := s.submitSteps(ctx, job, 1); err != nil {
			return err
		}
		return s.submitFinal(ctx, job)

	case IsStepStage(stage):
		step, err := ParseStepStage(stage)
		if err != nil {
			s.logger.Warn("unparseable step stage, restarting from beginning", "stage", stage)
			return s.runFullFlow(ctx, job)
		}
		if err := s.submitSteps(ctx, job, step+1); err != nil {
			return err
		}
		return s.submitFinal(ctx, job)

	case stage == database.StageFinalSubmitted:
		s.logger.Info("all stages already submitted, marking job completed", "job", job.JobID)
		return s.complete(ctx, job)

	case stage == database.StageCompleted:
		s.logger.Info("proof job already completed", "job", job.JobID)
		return nil

	case stage == database.StageFailed:
		s.logger.Warn("proof job previously failed, retrying from beginning", "job", job.JobID)
		if err := s.journal.IncrementRetry(ctx, job.ID); err != nil {
			return err
		}
		if err := s.journal.UpdateStage(ctx, job.ID, database.StageProcessing); err != nil {
			return err
		}
		return s.runFullFlow(ctx, job)

	default:
		s.logger.Warn("unknown stage, restarting from beginning", "stage", stage)
		return s.runFullFlow(ctx, job)
	}
}

func (s *Submitter) runFullFlow(ctx context.Context, job *database.ProofJob) error {
	if err := s.submitInitial(ctx, job); err != nil {
		return err
	}
	if err := s.submitSteps(ctx, job, 1); err != nil {
		return err
	}
	return s.submitFinal(ctx, job)
}

// submitInitial sends verify_proof_initial with the job parameters encoded
// as felts ahead of the initial file contents.
func (s *Submitter) submitInitial(ctx context.Context, job *database.ProofJob) error {
	s.logger.Info("submitting initial proof", "job", job.JobID)

	initialPath := filepath.Join(job.CalldataDir, "initial")
	if _, err := os.Stat(initialPath); err != nil {
		return fmt.Errorf("%w: initial", ErrCalldataFileMissing)
	}
	fileCalldata, err := ReadCalldataFile(initialPath)
	if err != nil {
		return err
	}

	calldata := []*felt.Felt{new(felt.Felt).SetUint64(uint64(job.JobID))}
	for _, param := range []string{job.Layout, job.Hasher, job.StoneVersion, job.MemoryVerification} {
		encoded, err := StringToFelt(param)
		if err != nil {
			return err
		}
		calldata = append(calldata, encoded)
	}
	calldata = append(calldata, fileCalldata...)

	txHash, err := s.submitContractCall(ctx, fnVerifyInitial, calldata, job)
	if err != nil {
		return err
	}

	if err := s.journal.UpdateStage(ctx, job.ID, database.StageInitialSubmitted); err != nil {
		return err
	}
	job.CurrentStage.String = database.StageInitialSubmitted
	if err := s.journal.AddTxHash(ctx, job.ID, "initial", txHash.String()); err != nil {
		return err
	}

	s.logger.Info("initial proof submitted", "job", job.JobID, "tx", txHash)
	return nil
}

// submitSteps sends verify_proof_step for every stepN file from startStep
// upward, stopping at the first gap.
func (s *Submitter) submitSteps(ctx context.Context, job *database.ProofJob, startStep int) error {
	for step := startStep; ; step++ {
		stepName := fmt.Sprintf("step%d", step)
		stepPath := filepath.Join(job.CalldataDir, stepName)
		if _, err := os.Stat(stepPath); err != nil {
			s.logger.Info("no more step files, proceeding to final", "last_step", step-1)
			return nil
		}

		s.logger.Info("submitting step proof", "job", job.JobID, "step", step)

		fileCalldata, err := ReadCalldataFile(stepPath)
		if err != nil {
			return err
		}
		calldata := append([]*felt.Felt{new(felt.Felt).SetUint64(uint64(job.JobID))}, fileCalldata...)

		txHash, err := s.submitContractCall(ctx, fnVerifyStep, calldata, job)
		if err != nil {
			return err
		}

		stageName := StepStage(step)
		if err := s.journal.UpdateStage(ctx, job.ID, stageName); err != nil {
			return err
		}
		job.CurrentStage.String = stageName
		if err := s.journal.AddTxHash(ctx, job.ID, stepName, txHash.String()); err != nil {
			return err
		}

		s.logger.Info("step proof submitted", "job", job.JobID, "step", step, "tx", txHash)
	}
}

// submitFinal sends verify_proof_final_and_register_fact and completes the
// job.
func (s *Submitter) submitFinal(ctx context.Context, job *database.ProofJob) error {
	s.logger.Info("submitting final proof", "job", job.JobID)

	finalPath := filepath.Join(job.CalldataDir, "final")
	if _, err := os.Stat(finalPath); err != nil {
		return fmt.Errorf("%w: final", ErrCalldataFileMissing)
	}
	fileCalldata, err := ReadCalldataFile(finalPath)
	if err != nil {
		return err
	}
	calldata := append([]*felt.Felt{new(felt.Felt).SetUint64(uint64(job.JobID))}, fileCalldata...)

	txHash, err := s.submitContractCall(ctx, fnVerifyFinal, calldata, job)
	if err != nil {
		return err
	}

	if err := s.journal.UpdateStage(ctx, job.ID, database.StageFinalSubmitted); err != nil {
		return err
	}
	job.CurrentStage.String = database.StageFinalSubmitted
	if err := s.journal.AddTxHash(ctx, job.ID, "final", txHash.String()); err != nil {
		return err
	}

	s.logger.Info("final proof submitted", "job", job.JobID, "tx", txHash)
	return s.complete(ctx, job)
}

func (s *Submitter) complete(ctx context.Context, job *database.ProofJob) error {
	finalized, err := s.journal.MarkCompleted(ctx, job.ID)
	if err != nil {
		return err
	}
	job.Status = database.ProofJobStatusCompleted
	job.CurrentStage.String = database.StageCompleted
	s.logger.Info("proof job completed", "job", job.JobID, "deposits_finalized", finalized)
	return nil
}

// submitContractCall sends one invocation with linear-backoff retries and
// waits for its receipt. A revert is terminal; a timeout re-enters the
// retry window.
func (s *Submitter) submitContractCall(ctx context.Context, functionName string, calldata []*felt.Felt, job *database.ProofJob) (*felt.Felt, error) {
	call := rpc.InvokeFunctionCall{
		ContractAddress: s.contract,
		FunctionName:    functionName,
		CallData:        calldata,
	}

	maxRetries := s.cfg.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		s.logger.Info("submitting contract call",
			"function", functionName, "attempt", attempt, "max", maxRetries, "job", job.JobID)

		txHash, err := s.invoker.Execute(ctx, call)
		if err == nil {
			err = s.waitForConfirmation(ctx, txHash)
			if err == nil {
				s.logger.Info("transaction confirmed", "function", functionName, "tx", txHash, "job", job.JobID)
				return txHash, nil
			}
			if errors.Is(err, ErrTransactionReverted) {
				if failErr := s.journal.MarkFailed(ctx, job.ID, err.Error()); failErr != nil {
					s.logger.Error("failed to record job failure", "error", failErr)
				}
				return nil, err
			}
			s.logger.Error("transaction confirmation failed",
				"function", functionName, "tx", txHash, "job", job.JobID, "error", err)
		} else {
			s.logger.Error("transaction submission failed",
				"function", functionName, "attempt", attempt, "job", job.JobID, "error", err)
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		// Linear backoff: delay grows with the attempt number.
		delay := time.Duration(s.cfg.RetryDelayMS*int64(attempt)) * time.Millisecond
		s.logger.Warn("retrying contract call", "function", functionName, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// waitForConfirmation polls the receipt at a fixed interval until success,
// revert or timeout. A missing hash keeps polling.
func (s *Submitter) waitForConfirmation(ctx context.Context, txHash *felt.Felt) error {
	timeout := time.Duration(s.cfg.TransactionTimeoutMS) * time.Millisecond
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return ErrTransactionTimeout
		}

		receipt, err := s.receipts.Receipt(ctx, txHash)
		if err != nil {
			return err
		}
		switch receipt.Status {
		case ReceiptSucceeded:
			return nil
		case ReceiptReverted:
			return fmt.Errorf("%w: %s", ErrTransactionReverted, receipt.RevertReason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

// StepStage renders the stage marker for step N.
func StepStage(step int) string {
	return fmt.Sprintf("step%d_submitted", step)
}

// IsStepStage reports whether a stage marker is a stepK_submitted record.
func IsStepStage(stage string) bool {
	return strings.HasPrefix(stage, "step") && strings.HasSuffix(stage, "_submitted")
}

// ParseStepStage extracts K from a stepK_submitted marker.
func ParseStepStage(stage string) (int, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(stage, "step"), "_submitted")
	step, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid step stage %q: %w", stage, err)
	}
	return step, nil
}
