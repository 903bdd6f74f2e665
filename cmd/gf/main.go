package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gf",
		Short: "GameFleet — game-client VM fleet controller",
		Long:  "GameFleet runs a fleet of GPU-backed game-client VMs on a single virtualization host: provisioning, health monitoring, and replacement.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newScaleCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newRestartCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newMonitorCmd())
	cmd.AddCommand(newDashboardCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gf %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		var be *batchError
		if errors.As(err, &be) {
			return be.code()
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
