package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/zulandar/drydock/internal/sweep"
)

func newSweepCmd() *cobra.Command {
	var (
		configPath string
		reconcile  bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep and exit",
		Long:  "Stops every instance past its expiry. With --reconcile, also removes registry rows whose containers are gone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, configPath, reconcile)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "drydock.yaml", "path to Drydock config file")
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "remove registry rows for dead containers")
	return cmd
}

func runSweep(cmd *cobra.Command, configPath string, reconcile bool) error {
	logger := log.Default()

	c, err := buildCore(configPath, logger)
	if err != nil {
		return err
	}

	sweeper, err := sweep.New(sweep.Opts{
		Orchestrator: c.orch,
		Registry:     c.reg,
		Reconcile:    reconcile,
		Log:          logger,
	})
	if err != nil {
		return err
	}

	stopped := sweeper.Once(context.Background())
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d expired instances\n", stopped)
	return nil
}
