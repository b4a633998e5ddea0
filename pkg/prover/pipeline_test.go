// Copyright 2025 ZeroXBridge
//
// Proof pipeline tests. The external binaries are stubbed with shell
// scripts on PATH so the driver's sequencing, artifact collection and
// error capture can be exercised.

package prover

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

func writeStub(t *testing.T, dir, name, script string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
}

// installStubs places working fake toolchain binaries on PATH.
func installStubs(t *testing.T, factHash string) {
	t.Helper()
	dir := t.TempDir()

	writeStub(t, dir, "cairo1-run", "exit 0")
	// cpu_air_prover writes its --out_file argument.
	writeStub(t, dir, "cpu_air_prover", `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out_file" ]; then out="$2"; fi
  shift
done
echo '{"proof": true}' > "$out"
`)
	writeStub(t, dir, "cpu_air_verifier", "exit 0")
	// swiftness creates the calldata directory.
	writeStub(t, dir, "swiftness", `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out" ]; then out="$2"; fi
  shift
done
mkdir -p "$out"
echo "0x1 0x2" > "$out/initial"
echo "0x3" > "$out/step1"
echo "0x4" > "$out/final"
`+factStub(factHash))

	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func factStub(factHash string) string {
	if factHash == "" {
		return ""
	}
	return "echo \"" + factHash + "\" > \"$out/fact.txt\"\n"
}

func pipelineFixture(runVerifier bool) *Pipeline {
	cfg := &config.Config{Prover: config.ProverConfig{
		SierraPath:   "program.sierra.json",
		ProverParams: "prover_params.json",
		ProverConfig: "prover_config.json",
		Layout:       "recursive_with_poseidon",
		Hasher:       "keccak_160_lsb",
		StoneVersion: "stone6",
		RunVerifier:  runVerifier,
	}}
	return NewPipeline(cfg, slog.Default())
}

func TestPipeline_FullRun(t *testing.T) {
	installStubs(t, "0xfacade")
	p := pipelineFixture(true)

	artifacts, err := p.Run(context.Background(), map[string]interface{}{"commitments": []string{"0x1"}})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	defer artifacts.Release()

	if artifacts.FactHash != "0xfacade" {
		t.Errorf("fact hash: got %q, want 0xfacade", artifacts.FactHash)
	}
	for _, name := range []string{"initial", "step1", "final"} {
		if _, err := os.Stat(filepath.Join(artifacts.CalldataDir, name)); err != nil {
			t.Errorf("missing calldata file %s: %v", name, err)
		}
	}
	if _, err := os.Stat(artifacts.ProofPath); err != nil {
		t.Errorf("missing proof file: %v", err)
	}
}

func TestPipeline_NoFactFile(t *testing.T) {
	installStubs(t, "")
	p := pipelineFixture(false)

	artifacts, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	defer artifacts.Release()

	if artifacts.FactHash != "" {
		t.Errorf("fact hash: got %q, want empty", artifacts.FactHash)
	}
}

func TestPipeline_ReleaseRemovesWorkDir(t *testing.T) {
	installStubs(t, "")
	p := pipelineFixture(false)

	artifacts, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	artifacts.Release()

	if _, err := os.Stat(artifacts.CalldataDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("calldata dir must be removed after release, stat err: %v", err)
	}
}

func TestPipeline_CommandFailureCapturesStderr(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, "cairo1-run", "echo 'sierra file not found' >&2; exit 3")
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	p := pipelineFixture(false)
	_, err := p.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected command error")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("got %T, want *CommandError", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("exit code: got %d, want 3", cmdErr.ExitCode)
	}
	if cmdErr.Stderr == "" {
		t.Error("stderr must be captured")
	}
}

func TestPipeline_VerifierFailureIsTerminal(t *testing.T) {
	installStubs(t, "")
	dir := t.TempDir()
	writeStub(t, dir, "cpu_air_verifier", "echo 'proof invalid' >&2; exit 1")
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	p := pipelineFixture(true)
	_, err := p.Run(context.Background(), nil)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("got %v, want ErrVerificationFailed", err)
	}
}
