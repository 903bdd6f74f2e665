package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/halverson/gamefleet/internal/health"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run one health pass over the fleet",
		Long:  "Probes every running instance once, applies the escalation policy, and prints the results.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	return cmd
}

func runHealth(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ctl, err := buildController(gormDB, cfg, out)
	if err != nil {
		return err
	}
	mon, err := health.New(ctl, nil, out)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mon.ReconcileHealth(ctx); err != nil {
		return err
	}

	var instances []models.Instance
	if err := gormDB.Order("`index`").Find(&instances).Error; err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	if len(instances) == 0 {
		fmt.Fprintln(out, "No instances registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tNAME\tSTATE\tHEALTH\tRETRIES\tLAST PROBE")
	for _, inst := range instances {
		last := "-"
		if !inst.LastHealthAt.IsZero() {
			last = inst.LastHealthAt.Format("15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			inst.Index, inst.Name, inst.State, orDash(inst.Health), inst.RetryCount, last)
	}
	w.Flush()
	return nil
}
