// Copyright 2025 ZeroXBridge
//
// proof-pipeline runs the STARK proof generation toolchain once and prints
// the resulting artifact locations.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/prover"
)

func main() {
	sierraPath := flag.String("sierra-path", "", "compiled Sierra program")
	inputsPath := flag.String("inputs-path", "", "program inputs (JSON)")
	proverParams := flag.String("prover-params", "prover_params.json", "cpu_air_prover parameter file")
	proverConfig := flag.String("prover-config", "prover_config.json", "cpu_air_prover config file")
	layout := flag.String("layout", "recursive_with_poseidon", "proof layout")
	hasher := flag.String("hasher", "keccak_160_lsb", "verifier hasher")
	stoneVersion := flag.String("stone-version", "stone6", "stone prover version")
	verify := flag.Bool("verify", false, "run cpu_air_verifier on the proof")
	keepTempFiles := flag.Bool("keep-temp-files", false, "persist the temporary work directory")
	flag.Parse()

	if *sierraPath == "" || *inputsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*inputsPath)
	if err != nil {
		log.Fatalf("failed to read inputs: %v", err)
	}
	var programInputs interface{}
	if err := json.Unmarshal(raw, &programInputs); err != nil {
		log.Fatalf("failed to parse inputs: %v", err)
	}

	cfg := &config.Config{Prover: config.ProverConfig{
		SierraPath:    *sierraPath,
		ProverParams:  *proverParams,
		ProverConfig:  *proverConfig,
		Layout:        *layout,
		Hasher:        *hasher,
		StoneVersion:  *stoneVersion,
		RunVerifier:   *verify,
		KeepTempFiles: *keepTempFiles,
	}}

	pipeline := prover.NewPipeline(cfg, slog.Default())
	artifacts, err := pipeline.Run(context.Background(), programInputs)
	if err != nil {
		log.Fatalf("proof generation failed: %v", err)
	}

	fmt.Println("Proof generation successful!")
	fmt.Printf("Calldata directory: %s\n", artifacts.CalldataDir)
	if artifacts.FactHash != "" {
		fmt.Printf("Fact hash: %s\n", artifacts.FactHash)
	}
	fmt.Printf("Proof path: %s\n", artifacts.ProofPath)
}
