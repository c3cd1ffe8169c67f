package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/blocksource"
	"github.com/mezonai/mmn-replay/checkpoint"
	"github.com/mezonai/mmn-replay/config"
	"github.com/mezonai/mmn-replay/events"
	"github.com/mezonai/mmn-replay/executor"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/replay"
	"github.com/mezonai/mmn-replay/report"
	"github.com/mezonai/mmn-replay/utils"
)

var (
	verifyRootSlot   uint64
	verifyRootHash   string
	verifyEndSlot    uint64
	verifyResume     bool
	verifyInterval   uint64
	verifyWorkers    int
	verifyReportPath string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay a block range and verify every state commitment",
	Long: `Replay the canonical fork path from a trusted root, re-executing
every block's transactions and comparing the recomputed bank hash
against the stored one. Stops at the first divergence.
Examples:
  # Verify everything from the genesis root
  mmn-replay verify --root-slot 0 --root-hash <hex>

  # Resume from the latest checkpoint up to slot 5000
  mmn-replay verify --resume --end-slot 5000
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify()
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Uint64Var(&verifyRootSlot, "root-slot", 0, "slot of the trusted root block")
	verifyCmd.Flags().StringVar(&verifyRootHash, "root-hash", "", "content hash of the trusted root block (hex)")
	verifyCmd.Flags().Uint64Var(&verifyEndSlot, "end-slot", 0, "last slot to verify (0 means latest)")
	verifyCmd.Flags().BoolVar(&verifyResume, "resume", false, "resume from the latest usable checkpoint")
	verifyCmd.Flags().Uint64Var(&verifyInterval, "checkpoint-interval", 0, "checkpoint cadence in slots (0 uses replay.ini)")
	verifyCmd.Flags().IntVar(&verifyWorkers, "workers", 0, "intra-slot worker pool size (0 uses replay.ini)")
	verifyCmd.Flags().StringVar(&verifyReportPath, "report", "", "write the verification report JSON to this file")
}

func runVerify() error {
	replayCfg, err := config.LoadReplayConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load replay config: %w", err)
	}
	if verifyInterval > 0 {
		replayCfg.CheckpointInterval = verifyInterval
	}
	if verifyWorkers > 0 {
		replayCfg.Workers = verifyWorkers
	}

	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	checkpoints, err := checkpoint.Open(stores.storage.CheckpointDB)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	engineOpts := []executor.Option{executor.WithSignatureCheck(replayCfg.VerifySignatures)}
	if replayCfg.Workers > 0 {
		engineOpts = append(engineOpts, executor.WithWorkers(replayCfg.Workers))
	}
	engine := executor.NewEngine(stores.accounts, stores.txMetas, engineOpts...)

	orchCfg := replay.Config{
		SnapshotDir:       stores.storage.SnapshotDir,
		FetchPolicy:       replayCfg.FetchPolicy(),
		FullSnapshotEvery: replayCfg.FullSnapshotEvery,
	}
	// Leader keys are optional; a missing genesis file only disables
	// the signature check.
	if genesis, err := config.LoadGenesisConfig(genesisPath); err == nil && len(genesis.Leaders) > 0 {
		orchCfg.LeaderKeys = genesis.LeaderPubKey
	}

	orch := replay.NewOrchestrator(
		blocksource.NewStoreSource(stores.blocks),
		engine,
		stores.blocks,
		stores.accounts,
		checkpoints,
		events.NewEventBus(),
		orchCfg,
	)

	opts := replay.VerifyOptions{
		EndSlot:            verifyEndSlot,
		CheckpointInterval: replayCfg.CheckpointInterval,
		Resume:             verifyResume,
	}
	if verifyRootHash != "" {
		hash, err := parseHash32(verifyRootHash)
		if err != nil {
			return err
		}
		opts.StartRoot = block.Ref{Slot: verifyRootSlot, Hash: hash}
	} else if !verifyResume {
		return fmt.Errorf("either --root-hash or --resume is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, verifyErr := orch.Verify(ctx, opts)
	if !rep.StartedAt.IsZero() {
		logx.Info("VERIFY", fmt.Sprintf("Run finished in %.2fs", utils.SecondsBetween(rep.StartedAt, rep.FinishedAt)))
	}
	if err := emitReport(rep); err != nil {
		return err
	}
	if rep.Status != report.StatusSucceeded {
		if verifyErr != nil {
			logx.Error("VERIFY", verifyErr)
		}
		os.Exit(1)
	}
	return nil
}

func emitReport(rep *report.VerificationReport) error {
	data, err := rep.JSON()
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if verifyReportPath != "" {
		if err := os.WriteFile(verifyReportPath, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		logx.Info("VERIFY", "Report written to", verifyReportPath)
		return nil
	}
	fmt.Println(string(data))
	return nil
}
