package fleet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
)

// scaleUp provisions the given indices in three phases: prepare (clone,
// configure, GPU assignment) runs concurrently bounded by the configured
// parallelism; starts are issued strictly in increasing index order with the
// configured stagger between them; agent-ready waits run concurrently again.
// An index that fails a phase is dropped from later phases.
func (c *Controller) scaleUp(ctx context.Context, report *Report, indices []int) {
	type result struct {
		index int
		err   error
	}

	prepared := make([]int, 0, len(indices))
	results := make([]result, len(indices))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.Cfg.Provision.Parallelism)
	for i, index := range indices {
		wg.Add(1)
		go func(i, index int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = result{index: index, err: c.prepare(index)}
		}(i, index)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			report.add(Outcome{Index: r.index, Action: "provision", Reason: r.err.Error()})
			continue
		}
		prepared = append(prepared, r.index)
	}

	// Starts go out one at a time, lowest index first, so the host absorbs
	// boot load gradually.
	started := make([]int, 0, len(prepared))
	for i, index := range prepared {
		if i > 0 {
			if err := sleepCtx(ctx, c.Cfg.Provision.StartStagger.D()); err != nil {
				report.add(Outcome{Index: index, Action: "provision", Reason: err.Error()})
				continue
			}
		}
		if err := c.Driver.Start(index); err != nil {
			report.add(Outcome{Index: index, Action: "provision", Reason: err.Error()})
			continue
		}
		fmt.Fprintf(c.Out, "Instance %d: started\n", index)
		started = append(started, index)
	}

	waits := make([]result, len(started))
	for i, index := range started {
		wg.Add(1)
		go func(i, index int) {
			defer wg.Done()
			waits[i] = result{index: index, err: c.waitReady(ctx, index)}
		}(i, index)
	}
	wg.Wait()

	for _, r := range waits {
		outcome := Outcome{Index: r.index, Action: "provision", OK: r.err == nil}
		if r.err != nil {
			outcome.Reason = r.err.Error()
		} else {
			fmt.Fprintf(c.Out, "Instance %d: agent ready\n", r.index)
		}
		report.add(outcome)
	}
}

// prepare takes an instance from nothing to resource-assigned. A leftover
// row from a previous failed attempt at the same index is cleared first so
// the index can be reprovisioned.
func (c *Controller) prepare(index int) error {
	err := c.DB.Where("`index` = ? AND state IN ?", index,
		[]string{lifecycle.StateAbsent, lifecycle.StateDestroyed}).
		Delete(&models.Instance{}).Error
	if err != nil {
		return fmt.Errorf("fleet: clear stale row for %d: %w", index, err)
	}

	if _, err := c.Driver.Create(index); err != nil {
		return err
	}
	if err := c.Driver.Configure(index); err != nil {
		// The clone boots with template settings; configuration is retried
		// on the next pass.
		var cfgErr *lifecycle.ConfigureError
		if !errors.As(err, &cfgErr) {
			return err
		}
		log.Printf("fleet: configure instance %d: %v", index, err)
	}
	return c.Driver.AssignResource(index)
}

// waitReady waits for the started instance to reach Running and then for its
// agent, finishing with the in-guest handoff.
func (c *Controller) waitReady(ctx context.Context, index int) error {
	if err := c.Driver.WaitRunning(ctx, index); err != nil {
		return err
	}
	if err := c.Driver.WaitAgentReady(ctx, index); err != nil {
		return err
	}
	return c.Driver.FinalizeGuest(ctx, index)
}

// provisionOne runs the full pipeline for a single index, used by replace
// and single-instance restart.
func (c *Controller) provisionOne(ctx context.Context, index int) error {
	if err := c.prepare(index); err != nil {
		return err
	}
	if err := c.Driver.Start(index); err != nil {
		return err
	}
	return c.waitReady(ctx, index)
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
