package main

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/zulandar/drydock/internal/challenge"
	"github.com/zulandar/drydock/internal/config"
	"github.com/zulandar/drydock/internal/db"
	"github.com/zulandar/drydock/internal/driver"
	"github.com/zulandar/drydock/internal/lifecycle"
	"github.com/zulandar/drydock/internal/notify"
	"github.com/zulandar/drydock/internal/registry"
	"github.com/zulandar/drydock/internal/settings"
)

// connectFromConfig loads config and opens the database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// core bundles the wired service components shared by serve and the
// one-shot commands.
type core struct {
	cfg     *config.Config
	db      *gorm.DB
	store   *settings.Store
	reg     *registry.Registry
	catalog *challenge.Catalog
	drv     driver.Driver
	orch    *lifecycle.Orchestrator
}

// buildCore connects, migrates, seeds defaults and wires the orchestrator.
// Migration and seeding are idempotent, so every command can call this.
func buildCore(configPath string, logger *log.Logger) (*core, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}

	store, err := settings.NewStore(gormDB)
	if err != nil {
		return nil, err
	}
	if err := store.Seed(); err != nil {
		return nil, err
	}

	drv, err := driver.NewDocker(store.Get(settings.KeyBaseURL))
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	reg := registry.New(gormDB)
	catalog := challenge.NewCatalog(gormDB)
	orch := lifecycle.New(reg, catalog, drv, store, logger)

	return &core{
		cfg:     cfg,
		db:      gormDB,
		store:   store,
		reg:     reg,
		catalog: catalog,
		drv:     drv,
		orch:    orch,
	}, nil
}

// buildNotifier assembles the configured chat adapters into one fanout.
// Returns nil when none are configured.
func buildNotifier(cfg *config.Config, logger *log.Logger) (notify.Notifier, error) {
	var notifiers []notify.Notifier
	if cfg.Notify.Discord.BotToken != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}
	if cfg.Notify.Slack.BotToken != "" {
		s, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, s)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notify.NewFanout(logger, notifiers...), nil
}
