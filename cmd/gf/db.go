package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/db"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Registry database management",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the fleet registry",
		Long:  "Creates the registry database, migrates all tables, and seeds the fleet configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for fleet %q from %s\n", cfg.Name, configPath)

	// MySQL needs the database created first; sqlite creates its file on open.
	if cfg.DB.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.DB.Host, cfg.DB.Port)
		if err != nil {
			return err
		}
		if err := db.CreateDatabase(adminDB, cfg.DB.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.DB.Database)
	}

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedFleetConfig(gormDB, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Fleet %q configured for %d workers\n", cfg.Name, cfg.Fleet.Workers)

	fmt.Fprintln(out, "\nRegistry initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the fleet registry",
		Long:  "Drops all registry tables and re-initializes them. Instance records and history are lost; running VMs are not touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gamefleet.yaml", "path to config file")
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, force bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if !force && !confirmReset(cmd, cfg.Name) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	if err := gormDB.Migrator().DropTable(db.AllModels()...); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	fmt.Fprintln(out, "Registry tables dropped.")

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedFleetConfig(gormDB, cfg); err != nil {
		return err
	}
	fmt.Fprintln(out, "Registry re-initialized.")
	return nil
}

func confirmReset(cmd *cobra.Command, fleetName string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "This drops all registry data for fleet %q. Continue? [y/N] ", fleetName)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
