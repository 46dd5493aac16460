package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/drydock/internal/db"
	"github.com/zulandar/drydock/internal/settings"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Drydock database",
		Long:  "Migrates all tables and seeds the default settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "drydock.yaml", "path to Drydock config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	store, err := settings.NewStore(gormDB)
	if err != nil {
		return err
	}
	if err := store.Seed(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded default settings (%d keys)\n", len(store.All()))

	fmt.Fprintln(out, "\nDrydock database initialized successfully.")
	return nil
}
