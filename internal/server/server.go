// Package server exposes the lifecycle orchestrator over HTTP: the
// participant/admin API plus the admin dashboard and settings pages.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/drydock/internal/challenge"
	"github.com/zulandar/drydock/internal/config"
	"github.com/zulandar/drydock/internal/driver"
	"github.com/zulandar/drydock/internal/lifecycle"
	"github.com/zulandar/drydock/internal/notify"
	"github.com/zulandar/drydock/internal/registry"
	"github.com/zulandar/drydock/internal/settings"
)

//go:embed templates/*.html
var templatesFS embed.FS

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Orchestrator *lifecycle.Orchestrator
	Registry     *registry.Registry
	Catalog      *challenge.Catalog
	Store        *settings.Store
	Driver       driver.Driver
	Auth         config.AuthConfig
	Notifier     notify.Notifier
	Port         int
	Out          io.Writer
	Log          *log.Logger
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Drydock API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the gin router with all routes registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("server: orchestrator is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("server: registry is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("server: catalog is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("server: settings store is required")
	}
	if opts.Driver == nil {
		return nil, fmt.Errorf("server: driver is required")
	}
	if opts.Log == nil {
		opts.Log = log.Default()
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	// Bind the container challenge variant to this catalog with decay scoring.
	challenge.NewContainerType(opts.Catalog, challenge.DecayValue)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, &opts)
	return router, nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl := template.New("").Funcs(template.FuncMap{
		"formatTime": formatTime,
	})
	tmpl, err := tmpl.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// formatTime renders an epoch-seconds timestamp for the dashboard.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).Format("2006-01-02 15:04:05")
}
