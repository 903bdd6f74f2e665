// Package health probes running instances through the guest agent and
// escalates persistent failures toward replacement.
package health

import (
	"context"
	"fmt"

	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/virt"
)

// Health classifications recorded on the instance row.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
	Unknown   = "unknown"
)

// Result is one probe observation for one instance.
type Result struct {
	Classification string
	PingOK         bool
	ProcessOK      bool
	Detail         string
}

// probedStates are the lifecycle states worth probing. Unreachable stays in
// the set so a recovered guest is noticed and promoted back.
var probedStates = []string{
	lifecycle.StateRunning,
	lifecycle.StateAgentReady,
	lifecycle.StateDegraded,
	lifecycle.StateUnreachable,
}

func probed(state string) bool {
	for _, s := range probedStates {
		if s == state {
			return true
		}
	}
	return false
}

// Probe classifies one instance: agent ping failure is Unhealthy, ping OK
// with the watched process missing is Degraded, both OK is Healthy.
// Instances outside the probed states report Unknown.
func Probe(ctx context.Context, cli virt.CLI, inst models.Instance, watched string) Result {
	if !probed(inst.State) {
		return Result{Classification: Unknown, Detail: "state " + inst.State + " not probed"}
	}

	if err := cli.GuestPing(ctx, inst.Name); err != nil {
		return Result{
			Classification: Unhealthy,
			Detail:         fmt.Sprintf("agent ping: %v", err),
		}
	}

	if _, err := cli.GuestExec(ctx, inst.Name, []string{"pidof", watched}); err != nil {
		return Result{
			Classification: Degraded,
			PingOK:         true,
			Detail:         fmt.Sprintf("process %s not running: %v", watched, err),
		}
	}

	return Result{Classification: Healthy, PingOK: true, ProcessOK: true}
}
