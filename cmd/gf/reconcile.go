package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var (
		configPath string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge the fleet to the configured worker count",
		Long:  "Provisions or decommissions instances until the fleet matches the desired worker count. Exit code is the number of instances that failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, configPath, workers)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "desired worker count (default: from config)")
	return cmd
}

func runReconcile(cmd *cobra.Command, configPath string, workers int) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.Fleet.Workers
	}

	ctl, err := buildController(gormDB, cfg, out)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Reconciling fleet %s to %d workers...\n", cfg.Name, workers)
	report, err := ctl.Reconcile(ctx, workers)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.Summary())
	return batchExit(report)
}
