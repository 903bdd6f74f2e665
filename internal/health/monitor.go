package health

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/fleet"
	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/notify"
	"github.com/halverson/gamefleet/internal/virt"
	"gorm.io/gorm"
)

// Monitor runs health passes over the fleet and applies the escalation
// policy: degraded workers get an in-guest restart, unreachable instances
// accumulate retries, and past the retry ceiling an instance is flagged for
// replacement. Only a Healthy observation resets the retry count.
type Monitor struct {
	DB     *gorm.DB
	CLI    virt.CLI
	Ctl    *fleet.Controller
	Cfg    *config.Config
	Notify notify.Notifier
	Out    io.Writer
}

// New creates a Monitor sharing the controller's CLI and registry handle.
func New(ctl *fleet.Controller, notifier notify.Notifier, out io.Writer) (*Monitor, error) {
	if ctl == nil {
		return nil, fmt.Errorf("health: fleet controller is required")
	}
	if out == nil {
		out = io.Discard
	}
	return &Monitor{
		DB:     ctl.DB,
		CLI:    ctl.CLI,
		Ctl:    ctl,
		Cfg:    ctl.Cfg,
		Notify: notifier,
		Out:    out,
	}, nil
}

// ReconcileHealth probes every probeable instance concurrently, each probe
// under its own timeout, and applies the results. One slow or stuck agent
// never delays the others; the pass joins on all probes before returning.
func (m *Monitor) ReconcileHealth(ctx context.Context) error {
	var instances []models.Instance
	if err := m.DB.Where("state IN ?", probedStates).Order("`index`").
		Find(&instances).Error; err != nil {
		return fmt.Errorf("health: load instances: %w", err)
	}

	results := make([]Result, len(instances))
	var wg sync.WaitGroup
	for i, inst := range instances {
		wg.Add(1)
		go func(i int, inst models.Instance) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, m.Cfg.Health.ProbeTimeout.D())
			defer cancel()
			results[i] = Probe(probeCtx, m.CLI, inst, m.Cfg.Health.WatchedProcess)
		}(i, inst)
	}
	wg.Wait()

	for i, inst := range instances {
		if err := m.apply(ctx, inst, results[i]); err != nil {
			log.Printf("health: apply result for instance %d: %v", inst.Index, err)
		}
	}
	return nil
}

// apply records one probe result and drives the escalation policy for that
// instance. Writes touch only this instance's row.
func (m *Monitor) apply(ctx context.Context, inst models.Instance, res Result) error {
	m.record(inst.Index, res)

	updates := map[string]interface{}{
		"health":         res.Classification,
		"last_health_at": time.Now(),
	}

	switch res.Classification {
	case Healthy:
		updates["retry_count"] = 0
		if inst.State != lifecycle.StateAgentReady {
			if err := m.Ctl.Driver.SetState(inst.Index, lifecycle.StateAgentReady); err != nil {
				return err
			}
			if inst.State == lifecycle.StateUnreachable {
				fmt.Fprintf(m.Out, "Instance %d: recovered\n", inst.Index)
			}
		}

	case Degraded:
		if inst.State == lifecycle.StateAgentReady {
			if err := m.Ctl.Driver.SetState(inst.Index, lifecycle.StateDegraded); err != nil {
				return err
			}
		}
		if err := m.Ctl.RestartWorker(ctx, inst.Index); err != nil {
			log.Printf("health: restart worker in instance %d: %v", inst.Index, err)
		}

	case Unhealthy:
		retries := inst.RetryCount + 1
		updates["retry_count"] = retries
		if inst.State != lifecycle.StateUnreachable {
			if err := m.Ctl.Driver.SetState(inst.Index, lifecycle.StateUnreachable); err != nil {
				return err
			}
		}
		if retries > m.Cfg.Health.RetryCeiling && !inst.ReplacePending {
			updates["replace_pending"] = true
			m.escalate(ctx, inst, retries)
		}

	case Unknown:
		// Nothing to drive; the record above is the only trace.
	}

	if inst.Health != res.Classification {
		m.Ctl.Driver.RecordEvent(inst.Index, models.EventHealthChange,
			fmt.Sprintf("%s -> %s: %s", inst.Health, res.Classification, res.Detail))
	}

	err := m.DB.Model(&models.Instance{}).Where("`index` = ?", inst.Index).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("health: update instance %d: %w", inst.Index, err)
	}
	return nil
}

// record appends the probe observation to the health history and trims the
// history to the configured retention count.
func (m *Monitor) record(index int, res Result) {
	err := m.DB.Create(&models.HealthRecord{
		InstanceIndex:  index,
		Classification: res.Classification,
		PingOK:         res.PingOK,
		ProcessOK:      res.ProcessOK,
		Detail:         res.Detail,
		CreatedAt:      time.Now(),
	}).Error
	if err != nil {
		log.Printf("health: record probe for %d: %v", index, err)
		return
	}
	m.pruneHistory(index)
}

// pruneHistory deletes an instance's health records past the retention
// count, oldest first.
func (m *Monitor) pruneHistory(index int) {
	keep := m.Cfg.Health.HistoryRetention
	if keep <= 0 {
		return
	}
	// The row at offset keep (newest first) and everything older is surplus.
	var cutoff models.HealthRecord
	err := m.DB.Where("instance_index = ?", index).
		Order("id DESC").Offset(keep).Take(&cutoff).Error
	if err != nil {
		return
	}
	err = m.DB.Where("instance_index = ? AND id <= ?", index, cutoff.ID).
		Delete(&models.HealthRecord{}).Error
	if err != nil {
		log.Printf("health: prune history for %d: %v", index, err)
	}
}

// escalate flags the instance for replacement and alerts the configured
// sinks.
func (m *Monitor) escalate(ctx context.Context, inst models.Instance, retries int) {
	m.Ctl.Driver.RecordEvent(inst.Index, models.EventEscalation,
		fmt.Sprintf("unreachable after %d probes, queued for replacement", retries))
	fmt.Fprintf(m.Out, "Instance %d: unreachable after %d probes, queued for replacement\n",
		inst.Index, retries)

	if m.Notify == nil {
		return
	}
	alert := notify.Alert{
		Title:    fmt.Sprintf("Instance %d queued for replacement", inst.Index),
		Body:     fmt.Sprintf("%s has been unreachable for %d consecutive probes.", inst.Name, retries),
		Severity: notify.SeverityCritical,
		Fields: map[string]string{
			"instance": inst.Name,
			"index":    strconv.Itoa(inst.Index),
			"retries":  strconv.Itoa(retries),
		},
	}
	if err := m.Notify.Send(ctx, alert); err != nil {
		log.Printf("health: escalation alert for %d: %v", inst.Index, err)
	}
}
