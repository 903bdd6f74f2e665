package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/halverson/gamefleet/internal/health"
	"github.com/spf13/cobra"
)

func newMonitorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the fleet monitor daemon",
		Long:  "Runs the monitor loop: probe health, replace failed instances, converge the fleet size, and take scheduled snapshots. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	return cmd
}

func runMonitor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ctl, err := buildController(gormDB, cfg, out)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer notifier.Close()
	}

	mon, err := health.New(ctl, notifier, out)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mon.RunDaemon(ctx)
}
