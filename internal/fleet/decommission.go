package fleet

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/virt"
)

// Decommission removes the instance at index from the host: graceful
// shutdown with a bounded wait, forced power-off as fallback, undefine with
// storage removal, slice release. The registry row is kept in state
// Destroyed as an audit record.
func (c *Controller) Decommission(ctx context.Context, index int) error {
	var inst models.Instance
	if err := c.DB.Where("`index` = ?", index).First(&inst).Error; err != nil {
		return fmt.Errorf("fleet: instance %d not found: %w", index, err)
	}
	name := inst.Name

	if err := c.Driver.SetState(index, lifecycle.StateStopping); err != nil {
		return err
	}

	state, err := c.CLI.DomState(name)
	if err != nil {
		log.Printf("fleet: read state of %s before shutdown: %v", name, err)
		state = virt.DomainUnknown
	}

	if state != virt.DomainShutOff {
		if err := c.CLI.Shutdown(name); err != nil {
			log.Printf("fleet: graceful shutdown of %s: %v", name, err)
		}
		if err := c.waitShutOff(ctx, name); err != nil {
			fmt.Fprintf(c.Out, "Instance %d: graceful shutdown timed out, forcing off\n", index)
			if err := c.CLI.ForceOff(name); err != nil {
				return fmt.Errorf("fleet: force off %s: %w", name, err)
			}
		}
	}

	if err := c.CLI.Undefine(name); err != nil {
		return fmt.Errorf("fleet: undefine %s: %w", name, err)
	}

	c.Pool.Release(index)
	err = c.DB.Model(&models.Instance{}).Where("`index` = ?", index).
		Updates(map[string]interface{}{
			"state":           lifecycle.StateDestroyed,
			"resource_id":     "",
			"replace_pending": false,
		}).Error
	if err != nil {
		return fmt.Errorf("fleet: record destroy of %d: %w", index, err)
	}
	c.Driver.RecordEvent(index, models.EventStateChange, "decommissioned")
	fmt.Fprintf(c.Out, "Instance %d: decommissioned\n", index)
	return nil
}

// waitShutOff polls until the domain reports shut off or the shutdown
// timeout expires.
func (c *Controller) waitShutOff(ctx context.Context, name string) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.Cfg.Provision.ShutdownTimeout.D())
	defer cancel()

	return retry.Do(
		func() error {
			state, err := c.CLI.DomState(name)
			if err != nil {
				return err
			}
			if state != virt.DomainShutOff {
				return fmt.Errorf("domain %s is %s", name, state)
			}
			return nil
		},
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
