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

func newScaleCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "scale <workers>",
		Short: "Scale the fleet to an explicit worker count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, err := strconv.Atoi(args[0])
			if err != nil || workers < 0 {
				return fmt.Errorf("worker count must be a non-negative integer, got %q", args[0])
			}
			return runScale(cmd, configPath, workers)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	return cmd
}

func runScale(cmd *cobra.Command, configPath string, workers int) error {
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

	fmt.Fprintf(out, "Scaling fleet %s to %d workers...\n", cfg.Name, workers)
	report, err := ctl.Reconcile(ctx, workers)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.Summary())
	return batchExit(report)
}
