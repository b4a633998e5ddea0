// Copyright 2025 ZeroXBridge
//
// proof-submitter drives the staged verifier submission for one calldata
// directory, resuming a partially submitted job where it left off.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/logging"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/starknet"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file (optional)")
	calldataDir := flag.String("calldata-dir", "", "calldata directory produced by the proof pipeline")
	jobID := flag.Int64("job-id", 0, "proof job identifier")
	layout := flag.String("layout", "recursive_with_poseidon", "proof layout")
	hasher := flag.String("hasher", "keccak_160_lsb", "verifier hasher")
	stoneVersion := flag.String("stone-version", "stone6", "stone prover version")
	memoryVerification := flag.String("memory-verification", "false", "memory verification mode")
	flag.Parse()

	if *calldataDir == "" || *jobID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL must be set")
	}
	if cfg.Starknet.RPCURL == "" {
		log.Fatalf("%s must be set", cfg.Starknet.RPCURLEnv)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Close()

	db, err := database.NewClient(cfg, logger.Named("journal"))
	if err != nil {
		log.Fatalf("failed to connect to journal: %v", err)
	}
	defer db.Close()

	snClient, err := starknet.NewClient(cfg)
	if err != nil {
		log.Fatalf("failed to connect to Starknet: %v", err)
	}

	submitter, err := starknet.NewSubmitter(
		database.NewProofJobRepository(db), snClient, snClient, cfg, logger.Named("submitter"))
	if err != nil {
		log.Fatalf("failed to build submitter: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := submitter.SubmitFromCalldata(ctx, *calldataDir, *jobID,
		*layout, *hasher, *stoneVersion, *memoryVerification); err != nil {
		log.Fatalf("proof submission failed: %v", err)
	}

	logger.Info("proof submission completed", "job", *jobID)
}
