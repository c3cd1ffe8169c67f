package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mezonai/mmn-replay/archival"
	"github.com/mezonai/mmn-replay/config"
	"github.com/mezonai/mmn-replay/logx"
)

var (
	serverListenAddr string
	serverBackend    string
	serverPgDSN      string
)

var archiveServerCmd = &cobra.Command{
	Use:   "archive-server",
	Short: "Run the archival tier JSON-RPC server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchiveServer()
	},
}

func init() {
	rootCmd.AddCommand(archiveServerCmd)
	archiveServerCmd.Flags().StringVar(&serverListenAddr, "listen", "", "listen address (overrides replay.ini)")
	archiveServerCmd.Flags().StringVar(&serverBackend, "backend", "", "archive backend: memory or postgres (overrides replay.ini)")
	archiveServerCmd.Flags().StringVar(&serverPgDSN, "postgres-dsn", "", "postgres connection string (overrides replay.ini)")
}

func runArchiveServer() error {
	archivalCfg, err := config.LoadArchivalConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load archival config: %w", err)
	}
	if serverListenAddr != "" {
		archivalCfg.ListenAddr = serverListenAddr
	}
	if serverBackend != "" {
		archivalCfg.Backend = serverBackend
	}
	if serverPgDSN != "" {
		archivalCfg.PostgresDSN = serverPgDSN
	}
	if archivalCfg.ListenAddr == "" {
		return fmt.Errorf("no listen address configured")
	}

	var archiveStore archival.ArchiveStore
	switch archivalCfg.Backend {
	case "memory", "":
		archiveStore = archival.NewMemoryArchiveStore()
	case "postgres":
		archiveStore, err = archival.NewPgArchiveStore(archivalCfg.PostgresDSN)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported archive backend %q", archivalCfg.Backend)
	}
	defer archiveStore.Close()

	server := archival.NewServer(archivalCfg.ListenAddr, archiveStore)
	server.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logx.Info("ARCHIVE-SERVER", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
