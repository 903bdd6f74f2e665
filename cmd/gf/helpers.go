package main

import (
	"fmt"
	"io"
	"log"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/db"
	"github.com/halverson/gamefleet/internal/fleet"
	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/notify"
	"github.com/halverson/gamefleet/internal/notify/discord"
	"github.com/halverson/gamefleet/internal/notify/slack"
	"github.com/halverson/gamefleet/internal/pool"
	"github.com/halverson/gamefleet/internal/virt"
	"gorm.io/gorm"
)

// batchError carries the failed-instance count of a batch operation out to
// the process exit code. Exit codes above 125 collide with shell
// conventions, so the count is capped there.
type batchError struct {
	failed int
}

func (e *batchError) Error() string {
	return fmt.Sprintf("%d instances failed", e.failed)
}

func (e *batchError) code() int {
	if e.failed > 125 {
		return 125
	}
	return e.failed
}

// batchExit converts a report into the command's return value: nil when
// everything succeeded, a batchError carrying the failure count otherwise.
func batchExit(report *fleet.Report) error {
	if report.Failed == 0 {
		return nil
	}
	return &batchError{failed: report.Failed}
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// buildController discovers the GPU pool, rehydrates slice ownership from
// the registry, and wires up the fleet controller.
func buildController(gormDB *gorm.DB, cfg *config.Config, out io.Writer) (*fleet.Controller, error) {
	p, discoverErr := pool.Discover(virt.DefaultCLI)
	if discoverErr != nil {
		log.Printf("gf: %v (continuing with empty pool)", discoverErr)
	} else {
		var live []models.Instance
		err := gormDB.Where("state NOT IN ?", []string{lifecycle.StateAbsent, lifecycle.StateDestroyed}).
			Find(&live).Error
		if err != nil {
			return nil, fmt.Errorf("load live instances: %w", err)
		}
		if err := p.Rehydrate(live); err != nil {
			return nil, err
		}
	}

	return fleet.New(gormDB, virt.DefaultCLI, p, cfg, out)
}

// buildNotifier assembles the alert fanout from the configured sinks.
// Returns nil when no sink is configured.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var sinks []notify.Notifier

	if cfg.Notify.Slack.BotToken != "" {
		s, err := slack.New(slack.Opts{
			BotToken: cfg.Notify.Slack.BotToken,
			Channel:  cfg.Notify.Slack.Channel,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Notify.Discord.BotToken != "" {
		d, err := discord.New(discord.Opts{
			BotToken: cfg.Notify.Discord.BotToken,
			Channel:  cfg.Notify.Discord.Channel,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return notify.NewFanout(sinks...), nil
}
