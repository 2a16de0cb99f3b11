package main

import (
	"github.com/openmined/calsync/internal/client"
	"github.com/openmined/calsync/internal/client/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newOnceCmd())
}

func newOnceCmd() *cobra.Command {
	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single sync pass over every entry and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			daemon, err := client.NewDaemon(cfg, client.Options{Mode: sync.ModeOneShot})
			if err != nil {
				return err
			}
			return daemon.Start(cmd.Context())
		},
	}
	onceCmd.Flags().String("state-dir", "", "Directory for the lock file and the sync journal")
	return onceCmd
}
