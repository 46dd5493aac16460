package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Kill and remove every instance",
		Long:  "Terminates all registered containers and clears the registry. Failures on individual instances are logged and skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "drydock.yaml", "path to Drydock config file")
	return cmd
}

func runPurge(cmd *cobra.Command, configPath string) error {
	logger := log.Default()

	c, err := buildCore(configPath, logger)
	if err != nil {
		return err
	}

	purged, err := c.orch.Purge(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d instances\n", purged)
	return nil
}
