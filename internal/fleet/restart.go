package fleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
)

// RestartWorker restarts the game client inside the guest via the agent,
// leaving the VM itself untouched. Used by `gf restart` and by the health
// monitor when a worker degrades.
func (c *Controller) RestartWorker(ctx context.Context, index int) error {
	var inst models.Instance
	if err := c.DB.Where("`index` = ?", index).First(&inst).Error; err != nil {
		return fmt.Errorf("fleet: instance %d not found: %w", index, err)
	}
	if !lifecycle.Live(inst.State) {
		return fmt.Errorf("fleet: instance %d is %s, cannot restart worker", index, inst.State)
	}

	args := strings.Fields(c.Cfg.Health.RestartCommand)
	if len(args) == 0 {
		return fmt.Errorf("fleet: no restart command configured")
	}

	execCtx, cancel := context.WithTimeout(ctx, c.Cfg.Health.ProbeTimeout.D())
	defer cancel()
	if _, err := c.CLI.GuestExec(execCtx, inst.Name, args); err != nil {
		return fmt.Errorf("fleet: restart worker in %s: %w", inst.Name, err)
	}
	c.Driver.RecordEvent(index, models.EventStateChange, "worker restarted in guest")
	fmt.Fprintf(c.Out, "Instance %d: worker restarted\n", index)
	return nil
}
