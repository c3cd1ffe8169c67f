package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mezonai/mmn-replay/checkpoint"
	"github.com/mezonai/mmn-replay/config"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List persisted verification checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCheckpoints()
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
}

func listCheckpoints() error {
	storageCfg, err := config.LoadStorageConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load storage config: %w", err)
	}
	checkpoints, err := checkpoint.Open(storageCfg.CheckpointDB)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	records, err := checkpoints.All()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no checkpoints recorded")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("slot=%d kind=%s bank_hash=%s snapshot=%s created=%s\n",
			rec.Slot, rec.Kind, hex.EncodeToString(rec.BankHash[:]), rec.SnapshotPath,
			rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
