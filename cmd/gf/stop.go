package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop the whole fleet",
		Long:  "Scales the fleet to zero: every instance is shut down, undefined, and its GPU slice released.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	return cmd
}

func runStop(cmd *cobra.Command, configPath string) error {
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

	fmt.Fprintf(out, "Stopping fleet %s...\n", cfg.Name)
	report, err := ctl.Reconcile(ctx, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.Summary())
	return batchExit(report)
}
