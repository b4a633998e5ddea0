// Copyright 2025 ZeroXBridge
//
// Proof Pipeline - drives the external STARK toolchain
//
// cairo1-run executes the program in proof mode, cpu_air_prover emits
// proof.json, cpu_air_verifier optionally checks it, and swiftness splits
// the proof into the on-chain calldata directory. All four are opaque
// subprocesses with a fixed flag contract.

package prover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

// Pipeline errors
var (
	// ErrVerificationFailed is terminal for the job; its deposits stay in
	// proof_requested for operator re-queue.
	ErrVerificationFailed = errors.New("proof verification failed")
)

// CommandError carries the failing command line, exit code and stderr.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
}

// Artifacts is the proof record handed to the submitter.
type Artifacts struct {
	CalldataDir string
	FactHash    string // empty when swiftness emitted no fact.txt
	ProofPath   string

	// cleanup releases the temporary work directory; nil when
	// keep_temp_files is set.
	cleanup func()
}

// Release removes the temporary work directory unless it was persisted.
func (a *Artifacts) Release() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// Pipeline runs the full prover toolchain for one input set.
type Pipeline struct {
	cfg    config.ProverConfig
	logger *slog.Logger
}

// NewPipeline creates the proof pipeline driver.
func NewPipeline(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg.Prover, logger: logger}
}

// Run executes the toolchain over the serialized program inputs and returns
// the calldata artifacts. On error the work directory is removed before
// returning; on success it stays until Artifacts.Release. With
// keep_temp_files configured it is never removed.
func (p *Pipeline) Run(ctx context.Context, programInputs interface{}) (*Artifacts, error) {
	workDir, err := os.MkdirTemp("", "proof-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	keep := p.cfg.KeepTempFiles
	cleanup := func() { os.RemoveAll(workDir) }
	defer func() {
		if !keep && cleanup != nil {
			cleanup()
		}
	}()

	targetDir := filepath.Join(workDir, "target")
	if err := os.Mkdir(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	// 1. Serialize program inputs.
	inputFile := filepath.Join(workDir, "input.json")
	raw, err := json.Marshal(programInputs)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize program inputs: %w", err)
	}
	if err := os.WriteFile(inputFile, raw, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}

	publicInput := filepath.Join(targetDir, "public_input.json")
	privateInput := filepath.Join(targetDir, "private_input.json")
	traceFile := filepath.Join(targetDir, "trace")
	memoryFile := filepath.Join(targetDir, "memory")

	// 2. Execute the Cairo program in proof mode.
	if err := p.execute(ctx, "cairo1-run", []string{
		p.cfg.SierraPath,
		"--layout", p.cfg.Layout,
		"--arguments-file", inputFile,
		"--proof_mode",
		"--air_public_input", publicInput,
		"--air_private_input", privateInput,
		"--trace_file", traceFile,
		"--memory_file", memoryFile,
	}, "Cairo execution (cairo1-run)"); err != nil {
		return nil, err
	}

	// 3. Generate the proof.
	proofPath := filepath.Join(targetDir, "proof.json")
	if err := p.execute(ctx, "cpu_air_prover", []string{
		"--parameter_file", p.cfg.ProverParams,
		"--prover_config_file", p.cfg.ProverConfig,
		"--private_input_file", privateInput,
		"--public_input_file", publicInput,
		"--out_file", proofPath,
		"--generate_annotations", "true",
	}, "Proof generation (cpu_air_prover)"); err != nil {
		return nil, err
	}

	// 4. Optionally verify. A failure here is terminal.
	if p.cfg.RunVerifier {
		if err := p.execute(ctx, "cpu_air_verifier",
			[]string{"--in_file", proofPath},
			"Proof verification (cpu_air_verifier)"); err != nil {
			var cmdErr *CommandError
			if errors.As(err, &cmdErr) {
				return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, cmdErr.Stderr)
			}
			return nil, err
		}
	}

	// 5. Split the proof into on-chain calldata.
	calldataDir := filepath.Join(workDir, "calldata")
	if err := p.execute(ctx, "swiftness", []string{
		"--proof", proofPath,
		"--layout", p.cfg.Layout,
		"--hasher", p.cfg.Hasher,
		"--stone-version", p.cfg.StoneVersion,
		"--out", calldataDir,
	}, "Calldata preparation (swiftness)"); err != nil {
		return nil, err
	}

	factHash, err := ExtractFactHash(calldataDir)
	if err != nil {
		return nil, err
	}

	artifacts := &Artifacts{
		CalldataDir: calldataDir,
		FactHash:    factHash,
		ProofPath:   proofPath,
	}
	if keep {
		p.logger.Info("keeping temporary proof files", "dir", workDir)
	} else {
		artifacts.cleanup = cleanup
		cleanup = nil // ownership moves to the artifacts
	}
	return artifacts, nil
}

// execute runs one subprocess, capturing stderr on non-zero exit.
func (p *Pipeline) execute(ctx context.Context, command string, args []string, description string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &CommandError{
			Command:  command + " " + strings.Join(args, " "),
			ExitCode: exitCode,
			Stderr:   stderr.String(),
		}
	}

	p.logger.Info("pipeline stage completed", "stage", description)
	return nil
}

// ExtractFactHash reads the optional fact.txt from a calldata directory.
func ExtractFactHash(calldataDir string) (string, error) {
	factFile := filepath.Join(calldataDir, "fact.txt")
	raw, err := os.ReadFile(factFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read fact file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
