// Package fleet converges the set of instances toward a desired worker
// count. Reconciliation is idempotent: a pass over an already converged
// fleet performs no virtualization calls.
package fleet

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/pool"
	"github.com/halverson/gamefleet/internal/virt"
	"gorm.io/gorm"
)

// Controller owns fleet-wide operations: reconciliation, replacement,
// backups. Per-instance steps are delegated to the lifecycle driver.
type Controller struct {
	DB     *gorm.DB
	Driver *lifecycle.Driver
	CLI    virt.CLI
	Pool   *pool.Pool
	Cfg    *config.Config
	Out    io.Writer
}

// New creates a Controller and its lifecycle driver.
func New(db *gorm.DB, cli virt.CLI, p *pool.Pool, cfg *config.Config, out io.Writer) (*Controller, error) {
	if cli == nil {
		cli = virt.DefaultCLI
	}
	if out == nil {
		out = io.Discard
	}
	driver, err := lifecycle.New(db, cli, p, cfg, out)
	if err != nil {
		return nil, err
	}
	return &Controller{DB: db, Driver: driver, CLI: cli, Pool: p, Cfg: cfg, Out: out}, nil
}

// Live returns the live instances ordered by index.
func (c *Controller) Live() ([]models.Instance, error) {
	var instances []models.Instance
	err := c.DB.Where("state NOT IN ?", []string{lifecycle.StateAbsent, lifecycle.StateDestroyed}).
		Order("`index`").Find(&instances).Error
	if err != nil {
		return nil, fmt.Errorf("fleet: load live instances: %w", err)
	}
	return instances, nil
}

// Reconcile converges the fleet to desired workers. Scale-up provisions the
// lowest unused indices; scale-down decommissions the highest live indices
// first. Individual instance failures are recorded in the report and do not
// abort the pass.
func (c *Controller) Reconcile(ctx context.Context, desired int) (*Report, error) {
	if desired < 0 {
		return nil, fmt.Errorf("fleet: desired worker count %d is negative", desired)
	}
	if err := CheckInvariants(c.DB); err != nil {
		return nil, err
	}

	live, err := c.Live()
	if err != nil {
		return nil, err
	}

	report := &Report{Desired: desired}
	switch {
	case len(live) < desired:
		c.scaleUp(ctx, report, nextIndices(live, desired-len(live)))
	case len(live) > desired:
		c.scaleDown(ctx, report, live, len(live)-desired)
	}

	// A converged pass changed nothing; don't write an audit event for it.
	if len(report.Outcomes) > 0 {
		c.Driver.RecordEvent(0, models.EventReconcile, report.Summary())
	}
	return report, nil
}

// nextIndices picks count unused indices, lowest first, starting at 1.
// Indices of live instances are never reused while the instance exists.
func nextIndices(live []models.Instance, count int) []int {
	used := make(map[int]bool, len(live))
	for _, inst := range live {
		used[inst.Index] = true
	}
	indices := make([]int, 0, count)
	for i := 1; len(indices) < count; i++ {
		if !used[i] {
			indices = append(indices, i)
		}
	}
	return indices
}

// scaleDown decommissions count instances, highest index first.
func (c *Controller) scaleDown(ctx context.Context, report *Report, live []models.Instance, count int) {
	sort.Slice(live, func(i, j int) bool { return live[i].Index > live[j].Index })
	for _, inst := range live[:count] {
		outcome := Outcome{Index: inst.Index, Action: "decommission", OK: true}
		if err := c.Decommission(ctx, inst.Index); err != nil {
			outcome.OK = false
			outcome.Reason = err.Error()
		}
		report.add(outcome)
	}
}

// Replace decommissions the instance at index and provisions a fresh clone
// under the same index. The new instance gets a new domain identity and
// re-acquires a GPU slice through the normal assignment path.
func (c *Controller) Replace(ctx context.Context, index int) (*Report, error) {
	var inst models.Instance
	if err := c.DB.Where("`index` = ?", index).First(&inst).Error; err != nil {
		return nil, fmt.Errorf("fleet: instance %d not found: %w", index, err)
	}

	report := &Report{}
	outcome := Outcome{Index: index, Action: "replace", OK: true}

	if lifecycle.Live(inst.State) {
		if err := c.Decommission(ctx, index); err != nil {
			outcome.OK = false
			outcome.Reason = fmt.Sprintf("decommission old instance: %v", err)
			report.add(outcome)
			return report, nil
		}
	}

	if err := c.provisionOne(ctx, index); err != nil {
		outcome.OK = false
		outcome.Reason = err.Error()
	}
	report.add(outcome)

	if outcome.OK {
		c.Driver.RecordEvent(index, models.EventStateChange, "replaced with fresh clone")
	}
	return report, nil
}
