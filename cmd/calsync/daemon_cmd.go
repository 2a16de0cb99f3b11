package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/calsync/internal/client"
	"github.com/openmined/calsync/internal/client/sync"
	"github.com/openmined/calsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd)
		},
	}
	addDaemonFlags(daemonCmd)
	return daemonCmd
}

func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("offline", false, "Sync in simplified passes, one every remote poll interval")
	cmd.Flags().Bool("no-http", false, "Do not start the local control plane")
	cmd.Flags().StringP("http-addr", "a", "", "Address to bind the local control plane")
	cmd.Flags().StringP("http-token", "t", "", "Access token for the local control plane")
	cmd.Flags().String("state-dir", "", "Directory for the lock file and the sync journal")
}

func runDaemon(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// all good now, errors from here on are not usage errors
	cmd.SilenceUsage = true

	offline, _ := cmd.Flags().GetBool("offline")
	noHTTP, _ := cmd.Flags().GetBool("no-http")

	slog.Info("calsync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)
	slog.Info("daemon using config", "path", cfg.Path, "entries", len(cfg.Entries))

	daemon, err := client.NewDaemon(cfg, client.Options{
		Mode:         sync.ModeContinuous,
		Offline:      offline,
		ControlPlane: !noHTTP,
	})
	if err != nil {
		return err
	}

	defer slog.Info("Bye!")
	if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon start", "error", err)
		return err
	}
	return nil
}
