package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/monitoring"
)

var (
	cfgPath     string
	genesisPath string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "mmn-replay",
	Short: "MMN ledger replay and verification CLI",
	Long:  "Command line interface for replaying persisted MMN blocks, verifying their state commitments and archiving verified ranges.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		monitoring.StartMetricsServer(metricsAddr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/replay.ini", "path to replay.ini")
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "config/genesis.yml", "path to genesis.yml")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address for the prometheus endpoint (empty disables it)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
