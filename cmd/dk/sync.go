package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/zulandar/drydock/internal/challenge"
)

func newSyncCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import challenge manifests from GitHub",
		Long:  "Reads YAML manifests from the configured GitHub repository and upserts them into the challenge catalog.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "drydock.yaml", "path to Drydock config file")
	return cmd
}

func runSync(cmd *cobra.Command, configPath string) error {
	logger := log.Default()

	c, err := buildCore(configPath, logger)
	if err != nil {
		return err
	}
	if c.cfg.Catalog.Owner == "" || c.cfg.Catalog.Repo == "" {
		return fmt.Errorf("sync: catalog.owner and catalog.repo must be set")
	}

	importer := challenge.NewImporter(c.cfg.Catalog, c.catalog, logger)
	count, err := importer.Sync(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d challenges\n", count)
	return nil
}
