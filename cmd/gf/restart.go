package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	var (
		configPath string
		replace    bool
	)

	cmd := &cobra.Command{
		Use:   "restart <index>",
		Short: "Restart a worker",
		Long:  "Restarts the game client inside the instance via the guest agent. With --replace, the whole VM is decommissioned and recreated from the template instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer, got %q", args[0])
			}
			return runRestart(cmd, configPath, index, replace)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	cmd.Flags().BoolVar(&replace, "replace", false, "decommission and recreate the VM")
	return cmd
}

func runRestart(cmd *cobra.Command, configPath string, index int, replace bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ctl, err := buildController(gormDB, cfg, out)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if replace {
		fmt.Fprintf(out, "Replacing instance %d...\n", index)
		report, err := ctl.Replace(ctx, index)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, report.Summary())
		return batchExit(report)
	}

	return ctl.RestartWorker(ctx, index)
}
