// Copyright 2025 ZeroXBridge
//
// Sequencer entry point. The supervisor owns every long-lived task: both
// chain watchers, both transition queues, the proof batch builders, the
// fund-unlock relayer and the TVL oracle. One shutdown signal cancels the
// shared context; tasks finish their in-flight I/O and drain within a
// bounded window.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/accumulator"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/database"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/ethereum"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/logging"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/metrics"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/oracle"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/prover"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/queue"
	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/starknet"
)

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file (optional)")
	migrateOnly := flag.Bool("migrate", false, "run journal migrations and exit")
	metricsAddr := flag.String("metrics-addr", ":9090", "prometheus listen address")
	flag.Parse()

	if err := run(*configPath, *migrateOnly, *metricsAddr); err != nil {
		log.Fatalf("sequencer failed: %v", err)
	}
}

func run(configPath string, migrateOnly bool, metricsAddr string) error {
	if _, err := os.Stat(configPath); err != nil {
		// Environment-only operation when the default file is absent.
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	db, err := database.NewClient(cfg, logger.Named("journal"))
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.MigrateUp(ctx); err != nil {
		return err
	}
	if migrateOnly {
		return nil
	}

	// Repositories over the shared journal handle.
	deposits := database.NewDepositRepository(db)
	withdrawals := database.NewWithdrawalRepository(db)
	archive := database.NewAccumulatorRepository(db)
	cursors := database.NewTrackerRepository(db)
	proofJobs := database.NewProofJobRepository(db)

	// In-memory accumulators mirror the archived on-chain state.
	accumulators := accumulator.NewManager(logger.Named("accumulator"))
	if err := accumulators.Rebuild(ctx, archive); err != nil {
		return err
	}

	// Chain clients.
	ethClient, err := ethereum.NewClient(cfg.Ethereum.RPCURL, cfg.Ethereum.ChainID)
	if err != nil {
		return err
	}
	snClient, err := starknet.NewClient(cfg)
	if err != nil {
		return err
	}

	// Components.
	l1Watcher := ethereum.NewWatcher(ethClient, deposits, archive, cursors, cfg, logger.Named("l1-watcher"))
	l2Watcher, err := starknet.NewWatcher(snClient, withdrawals, archive, cursors, cfg, logger.Named("l2-watcher"))
	if err != nil {
		return err
	}

	l1Queue := queue.NewL1Queue(deposits, archive, cfg, logger.Named("l1-queue"))
	l2Queue := queue.NewL2Queue(withdrawals, archive, cfg, logger.Named("l2-queue"))

	pipeline := prover.NewPipeline(cfg, logger.Named("prover"))
	submitter, err := starknet.NewSubmitter(proofJobs, snClient, snClient, cfg, logger.Named("submitter"))
	if err != nil {
		return err
	}
	batchBuilder := queue.NewBatchBuilder(deposits, proofJobs, pipeline, submitter, cfg, logger.Named("batch-builder"))
	proofBuilder := queue.NewWithdrawalProofBuilder(withdrawals, pipeline, cfg, logger.Named("withdrawal-proofs"))

	relayer, err := ethereum.NewRelayer(ethClient, withdrawals, cfg, logger.Named("relayer"))
	if err != nil {
		return err
	}

	tvlSyncer, err := oracle.NewSyncer(ethClient, snClient, cfg, logger.Named("oracle"))
	if err != nil {
		return err
	}

	collectors := metrics.New()
	metricsServer := &http.Server{Addr: metricsAddr, Handler: collectors.Handler()}

	logger.Info("sequencer starting",
		"l1_contract", cfg.Contracts.L1ContractAddress,
		"l2_contract", cfg.Contracts.L2ContractAddress)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return ignoreCancel(l1Watcher.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(l2Watcher.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(l1Queue.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(l2Queue.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(batchBuilder.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(proofBuilder.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(relayer.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(tvlSyncer.Run(groupCtx)) })

	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		ticker := time.NewTicker(time.Duration(cfg.Queue.ProcessIntervalSec) * time.Second)
		defer ticker.Stop()
		for {
			if err := accumulators.Sync(groupCtx, archive); err != nil {
				logger.Error("accumulator sync failed", "error", err)
			}
			for _, key := range []string{database.CursorL1DepositEvents, database.CursorL2BurnEvents} {
				if block, err := cursors.Get(groupCtx, key); err == nil {
					collectors.CursorHeight.WithLabelValues(key).Set(float64(block))
				}
			}
			for _, direction := range []database.Direction{database.DirectionDeposit, database.DirectionWithdrawal} {
				collectors.AccumulatorSize.WithLabelValues(string(direction)).
					Set(float64(accumulators.For(direction).ElementsCount()))
			}
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err = <-done:
	case <-groupCtx.Done():
		// After cancellation tasks get shutdownGrace to finish in-flight I/O.
		select {
		case err = <-done:
		case <-time.After(shutdownGrace):
			err = fmt.Errorf("tasks did not drain within %s", shutdownGrace)
		}
	}
	logger.Info("sequencer stopped")
	return err
}

// ignoreCancel filters the expected cancellation error out of task exits.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
