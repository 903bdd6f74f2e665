package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/guest"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/pool"
	"github.com/halverson/gamefleet/internal/virt"
	"gorm.io/gorm"
)

// Driver executes lifecycle steps for single instances against the
// virtualization CLI and records every transition in the registry.
type Driver struct {
	DB   *gorm.DB
	CLI  virt.CLI
	Pool *pool.Pool
	Cfg  *config.Config
	Out  io.Writer
}

// New creates a Driver. Out defaults to io.Discard; CLI defaults to the
// package default (the real host CLI).
func New(db *gorm.DB, cli virt.CLI, p *pool.Pool, cfg *config.Config, out io.Writer) (*Driver, error) {
	if db == nil {
		return nil, fmt.Errorf("lifecycle: db is required")
	}
	if p == nil {
		return nil, fmt.Errorf("lifecycle: resource pool is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("lifecycle: config is required")
	}
	if cli == nil {
		cli = virt.DefaultCLI
	}
	if out == nil {
		out = io.Discard
	}
	return &Driver{DB: db, CLI: cli, Pool: p, Cfg: cfg, Out: out}, nil
}

// SetState validates and records a lifecycle transition for index. The
// transition table is the single gate for registry state writes.
func (d *Driver) SetState(index int, to string) error {
	var inst models.Instance
	if err := d.DB.Where("`index` = ?", index).First(&inst).Error; err != nil {
		return fmt.Errorf("lifecycle: instance %d not found: %w", index, err)
	}
	if inst.State == to {
		return nil
	}
	if !CanTransition(inst.State, to) {
		return &TransitionError{Index: index, From: inst.State, To: to}
	}
	if err := d.DB.Model(&models.Instance{}).Where("`index` = ?", index).
		Update("state", to).Error; err != nil {
		return fmt.Errorf("lifecycle: set state for %d: %w", index, err)
	}
	d.RecordEvent(index, models.EventStateChange, fmt.Sprintf("%s -> %s", inst.State, to))
	return nil
}

// Create clones the template under the deterministic name for index and
// registers the new identity. The registry row is created first in state
// Creating; on clone failure it is reset to Absent so the next pass retries.
func (d *Driver) Create(index int) (string, error) {
	name := d.Cfg.InstanceName(index)

	inst := models.Instance{
		Index:  index,
		Name:   name,
		State:  StateCreating,
		Health: "unknown",
	}
	if err := d.DB.Create(&inst).Error; err != nil {
		return "", &CreateError{Index: index, Err: fmt.Errorf("register instance: %w", err)}
	}

	if err := d.CLI.Clone(d.Cfg.Template, name); err != nil {
		d.DB.Model(&models.Instance{}).Where("`index` = ?", index).Update("state", StateAbsent)
		return "", &CreateError{Index: index, Err: err}
	}

	uuid, err := d.CLI.DomUUID(name)
	if err != nil {
		// The domain exists but we couldn't read its identity; keep the
		// name-derived handle so cleanup can still address it.
		log.Printf("lifecycle: read uuid for %s: %v", name, err)
		uuid = name
	}

	if err := d.DB.Model(&models.Instance{}).Where("`index` = ?", index).
		Update("domain_uuid", uuid).Error; err != nil {
		return "", &CreateError{Index: index, Err: fmt.Errorf("record identity: %w", err)}
	}
	d.RecordEvent(index, models.EventStateChange, fmt.Sprintf("created as %s (%s)", name, uuid))
	return uuid, nil
}

// Configure applies the compute spec and descriptive tags. Failures are
// returned as ConfigureError but callers treat them as non-fatal.
func (d *Driver) Configure(index int) error {
	name := d.Cfg.InstanceName(index)
	if err := d.SetState(index, StateConfiguring); err != nil {
		return err
	}

	if err := d.CLI.SetVCPUs(name, d.Cfg.Fleet.VCPUs); err != nil {
		return &ConfigureError{Index: index, Err: err}
	}
	if err := d.CLI.SetMemory(name, d.Cfg.Fleet.MemoryMiB); err != nil {
		return &ConfigureError{Index: index, Err: err}
	}
	desc := fmt.Sprintf("gamefleet %s worker %d", d.Cfg.Name, index)
	if err := d.CLI.SetDescription(name, desc); err != nil {
		return &ConfigureError{Index: index, Err: err}
	}
	return nil
}

// AssignResource acquires a GPU slice for index and attaches it. An empty
// pool is a valid degraded outcome: the instance proceeds without GPU.
func (d *Driver) AssignResource(index int) error {
	name := d.Cfg.InstanceName(index)
	if err := d.SetState(index, StateResourceAssigned); err != nil {
		return err
	}

	id, ok := d.Pool.Acquire(index)
	if !ok {
		fmt.Fprintf(d.Out, "Instance %d: no GPU slice free, continuing without GPU\n", index)
		return nil
	}

	if err := d.CLI.AttachMdev(name, id); err != nil {
		// Attach failed: give the slice back rather than strand it.
		d.Pool.Release(index)
		log.Printf("lifecycle: attach slice %s to %s: %v", id, name, err)
		fmt.Fprintf(d.Out, "Instance %d: GPU attach failed, continuing without GPU\n", index)
		return nil
	}

	if err := d.DB.Model(&models.Instance{}).Where("`index` = ?", index).
		Update("resource_id", id).Error; err != nil {
		return fmt.Errorf("lifecycle: record slice for %d: %w", index, err)
	}
	fmt.Fprintf(d.Out, "Instance %d: GPU slice %s attached\n", index, id)
	return nil
}

// Start issues the start call for index.
func (d *Driver) Start(index int) error {
	name := d.Cfg.InstanceName(index)
	if err := d.SetState(index, StateStarting); err != nil {
		return err
	}
	if err := d.CLI.Start(name); err != nil {
		return &StartError{Index: index, Err: err}
	}
	return nil
}

// WaitRunning polls the hypervisor until the domain reports running, then
// records the Running state.
func (d *Driver) WaitRunning(ctx context.Context, index int) error {
	name := d.Cfg.InstanceName(index)

	err := retry.Do(
		func() error {
			state, err := d.CLI.DomState(name)
			if err != nil {
				return err
			}
			if state != virt.DomainRunning {
				return fmt.Errorf("domain %s is %s", name, state)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("lifecycle: wait running for %d: %w", index, err)
	}
	return d.SetState(index, StateRunning)
}

// WaitAgentReady polls the in-guest agent until it answers a liveness ping
// or the ready timeout expires. On success the instance becomes AgentReady;
// on timeout it stays Running and ErrAgentTimeout is returned.
func (d *Driver) WaitAgentReady(ctx context.Context, index int) error {
	name := d.Cfg.InstanceName(index)

	waitCtx, cancel := context.WithTimeout(ctx, d.Cfg.Provision.ReadyTimeout.D())
	defer cancel()

	err := retry.Do(
		func() error {
			pingCtx, pingCancel := context.WithTimeout(waitCtx, d.Cfg.Health.ProbeTimeout.D())
			defer pingCancel()
			return d.CLI.GuestPing(pingCtx, name)
		},
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.Delay(3*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if waitCtx.Err() != nil {
			return ErrAgentTimeout
		}
		return fmt.Errorf("lifecycle: agent ready wait for %d: %w", index, err)
	}
	return d.SetState(index, StateAgentReady)
}

// FinalizeGuest runs once the agent is up: it writes the worker config the
// in-guest reporter reads (so the guest registers with worker_id = index)
// and records the guest IP. Both are best-effort; the IP can stay unknown.
func (d *Driver) FinalizeGuest(ctx context.Context, index int) error {
	name := d.Cfg.InstanceName(index)

	_, hasGPU := d.Pool.AssignmentOf(index)
	cfgBytes, err := guest.RenderWorkerConfig(index, d.Cfg.Registry.URL, d.Cfg.Registry.ReportInterval.D(), hasGPU)
	if err != nil {
		return err
	}
	if err := d.CLI.WriteGuestFile(ctx, name, d.Cfg.Registry.GuestConfigPath, cfgBytes); err != nil {
		return fmt.Errorf("lifecycle: write worker config to %d: %w", index, err)
	}

	ip, err := d.CLI.GuestIP(name)
	if err != nil {
		log.Printf("lifecycle: guest IP for %s: %v", name, err)
		return nil
	}
	if err := d.DB.Model(&models.Instance{}).Where("`index` = ?", index).
		Update("ip_address", ip).Error; err != nil {
		return fmt.Errorf("lifecycle: record IP for %d: %w", index, err)
	}
	return nil
}

// RecordEvent appends an audit log entry; failures are logged, never fatal.
func (d *Driver) RecordEvent(index int, kind, detail string) {
	err := d.DB.Create(&models.Event{
		InstanceIndex: index,
		Kind:          kind,
		Detail:        detail,
		CreatedAt:     time.Now(),
	}).Error
	if err != nil {
		log.Printf("lifecycle: record event for %d: %v", index, err)
	}
}
