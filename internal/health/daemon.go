package health

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/notify"
)

// RunDaemon runs the monitor loop: every poll interval it reconciles health,
// replaces instances flagged for replacement, and converges the fleet back
// to the configured worker count. An optional cron schedule drives periodic
// snapshots. The loop runs until ctx is cancelled.
func (m *Monitor) RunDaemon(ctx context.Context) error {
	poll := m.Cfg.Health.PollInterval.D()
	fmt.Fprintf(m.Out, "Monitor starting (poll every %s, %d workers)...\n", poll, m.Cfg.Fleet.Workers)
	m.announce(ctx, "Fleet monitor started",
		fmt.Sprintf("Watching %d workers on fleet %s.", m.Cfg.Fleet.Workers, m.Cfg.Name))

	var nextBackup time.Time
	if m.Cfg.Backup.Schedule != "" {
		d := nextCronDuration(m.Cfg.Backup.Schedule)
		if d == 0 {
			log.Printf("health: invalid backup schedule %q, backups disabled", m.Cfg.Backup.Schedule)
		} else {
			nextBackup = time.Now().Add(d)
			fmt.Fprintf(m.Out, "Next backup at %s\n", nextBackup.Format(time.RFC3339))
		}
	}

	defer func() {
		m.announce(context.Background(), "Fleet monitor stopped",
			fmt.Sprintf("Monitor for fleet %s is shutting down.", m.Cfg.Name))
		fmt.Fprintf(m.Out, "Monitor stopped.\n")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Phase 1: probe and classify.
		if err := m.ReconcileHealth(ctx); err != nil {
			log.Printf("health: reconcile health: %v", err)
		}

		// Phase 2: replace instances past the retry ceiling.
		if err := m.replacePending(ctx); err != nil {
			log.Printf("health: replace pending: %v", err)
		}

		// Phase 3: converge the fleet back to the desired size.
		if report, err := m.Ctl.Reconcile(ctx, m.Cfg.Fleet.Workers); err != nil {
			log.Printf("health: converge fleet: %v", err)
		} else if len(report.Outcomes) > 0 {
			fmt.Fprintf(m.Out, "Converge: %s\n", report.Summary())
		}

		// Phase 4: scheduled snapshots.
		if !nextBackup.IsZero() && time.Now().After(nextBackup) {
			if report, err := m.Ctl.BackupAll(); err != nil {
				log.Printf("health: scheduled backup: %v", err)
			} else {
				fmt.Fprintf(m.Out, "Backup: %s\n", report.Summary())
			}
			nextBackup = time.Now().Add(nextCronDuration(m.Cfg.Backup.Schedule))
		}

		sleepWithContext(ctx, poll)
	}
}

// replacePending rebuilds every instance flagged for replacement, one at a
// time so the host never churns more than one VM at once.
func (m *Monitor) replacePending(ctx context.Context) error {
	var pending []models.Instance
	if err := m.DB.Where("replace_pending = ?", true).Order("`index`").
		Find(&pending).Error; err != nil {
		return fmt.Errorf("health: load pending replacements: %w", err)
	}

	for _, inst := range pending {
		fmt.Fprintf(m.Out, "Instance %d: replacing...\n", inst.Index)
		report, err := m.Ctl.Replace(ctx, inst.Index)
		if err != nil {
			log.Printf("health: replace instance %d: %v", inst.Index, err)
			continue
		}
		fmt.Fprintf(m.Out, "Instance %d: %s\n", inst.Index, report.Summary())
	}
	return nil
}

// announce sends an informational alert, if any sink is configured.
func (m *Monitor) announce(ctx context.Context, title, body string) {
	if m.Notify == nil {
		return
	}
	err := m.Notify.Send(ctx, notify.Alert{
		Title:    title,
		Body:     body,
		Severity: notify.SeverityInfo,
	})
	if err != nil {
		log.Printf("health: announce: %v", err)
	}
}

// sleepWithContext sleeps for duration d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
