package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/drydock/internal/server"
	"github.com/zulandar/drydock/internal/sweep"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Drydock API server",
		Long:  "Serves the participant and admin API plus the admin dashboard, and runs the expiry sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "drydock.yaml", "path to Drydock config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()
	logger := log.Default()

	c, err := buildCore(configPath, logger)
	if err != nil {
		return err
	}

	// Admin routes are token-gated; a missing token is prompted for on a
	// terminal and fatal otherwise.
	if c.cfg.Auth.AdminToken == "" {
		token, err := promptAdminToken()
		if err != nil {
			return err
		}
		c.cfg.Auth.AdminToken = token
	}

	notifier, err := buildNotifier(c.cfg, logger)
	if err != nil {
		return err
	}

	if port == 0 {
		port = c.cfg.ListenPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	sweeper, err := sweep.New(sweep.Opts{
		Orchestrator: c.orch,
		Registry:     c.reg,
		Schedule:     c.cfg.Sweep.Schedule,
		Reconcile:    c.cfg.Sweep.Reconcile,
		Notifier:     notifier,
		Log:          logger,
	})
	if err != nil {
		return err
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			logger.Printf("serve: sweeper: %v", err)
		}
	}()

	return server.Start(ctx, server.StartOpts{
		Orchestrator: c.orch,
		Registry:     c.reg,
		Catalog:      c.catalog,
		Store:        c.store,
		Driver:       c.drv,
		Auth:         c.cfg.Auth,
		Notifier:     notifier,
		Port:         port,
		Out:          out,
		Log:          logger,
	})
}

// promptAdminToken reads the admin token from the terminal without echo.
func promptAdminToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("serve: auth.admin_token is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Admin token: ")
	token, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("serve: read admin token: %w", err)
	}
	if len(token) == 0 {
		return "", fmt.Errorf("serve: admin token must not be empty")
	}
	return string(token), nil
}
