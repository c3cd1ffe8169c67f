package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mezonai/mmn-replay/archival"
	"github.com/mezonai/mmn-replay/config"
	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
)

var (
	archiveFromSlot uint64
	archiveToSlot   uint64
	archiveEndpoint string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Upload rooted-verified blocks to the archival tier",
	Long: `Collect the rooted blocks in a slot range from the local store and
upload them in batches. A batch that exhausts its retries is reported
failed without aborting the remaining batches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchive()
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().Uint64Var(&archiveFromSlot, "from", 0, "first slot of the range")
	archiveCmd.Flags().Uint64Var(&archiveToSlot, "to", 0, "last slot of the range")
	archiveCmd.Flags().StringVar(&archiveEndpoint, "endpoint", "", "archive server URL (overrides replay.ini)")
	archiveCmd.MarkFlagRequired("to")
}

func runArchive() error {
	archivalCfg, err := config.LoadArchivalConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load archival config: %w", err)
	}
	endpoint := archivalCfg.Endpoint
	if archiveEndpoint != "" {
		endpoint = archiveEndpoint
	}
	if endpoint == "" {
		return fmt.Errorf("no archive endpoint configured")
	}

	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	blocks, err := archival.CollectRooted(stores.blocks, archiveFromSlot, archiveToSlot)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		logx.Info("ARCHIVE", fmt.Sprintf("No rooted blocks in range [%d,%d]", archiveFromSlot, archiveToSlot))
		return nil
	}

	client := archival.NewClient(endpoint)
	defer client.Close()
	uploader := archival.NewUploader(client, archivalCfg.BatchSize, archivalCfg.Policy())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, archiveErr := uploader.Archive(ctx, blocks)
	if result != nil {
		data, err := jsonx.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	if archiveErr != nil {
		logx.Error("ARCHIVE", archiveErr)
		os.Exit(1)
	}
	return nil
}
