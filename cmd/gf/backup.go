package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "backup [index]",
		Short: "Snapshot instances",
		Long:  "Creates a timestamped snapshot of one instance, or of every live instance when no index is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index := -1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("index must be an integer, got %q", args[0])
				}
				index = n
			}
			return runBackup(cmd, configPath, index)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	return cmd
}

func runBackup(cmd *cobra.Command, configPath string, index int) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ctl, err := buildController(gormDB, cfg, out)
	if err != nil {
		return err
	}

	if index >= 0 {
		return ctl.Backup(index)
	}

	report, err := ctl.BackupAll()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.Summary())
	return batchExit(report)
}
