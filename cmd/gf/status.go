package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/halverson/gamefleet/internal/status"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, watch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "redraw every 5s until interrupted")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, watch bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ctl, err := buildController(gormDB, cfg, out)
	if err != nil {
		return err
	}

	show := func() error {
		fs, err := status.Collect(gormDB, ctl.Pool, cfg)
		if err != nil {
			return err
		}
		status.Format(out, fs)
		return nil
	}

	if !watch {
		return show()
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("--watch requires a terminal")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		fmt.Fprint(out, "\033[2J\033[H")
		if err := show(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
