package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/halverson/gamefleet/internal/models"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		configPath string
		state      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, configPath, state)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	cmd.Flags().StringVarP(&state, "state", "s", "", "filter by lifecycle state")
	return cmd
}

func runList(cmd *cobra.Command, configPath, state string) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	q := gormDB.Order("`index`")
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var instances []models.Instance
	if err := q.Find(&instances).Error; err != nil {
		return fmt.Errorf("list instances: %w", err)
	}

	if len(instances) == 0 {
		fmt.Fprintln(out, "No instances found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tNAME\tSTATE\tHEALTH\tIP\tGPU\tUUID")
	for _, inst := range instances {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.Index, inst.Name, inst.State,
			orDash(inst.Health), orDash(inst.IPAddress), orDash(inst.ResourceID), orDash(inst.DomainUUID))
	}
	w.Flush()
	return nil
}

func orDash(s string) string {
	if s == "" || s == "unknown" {
		return "-"
	}
	return s
}
