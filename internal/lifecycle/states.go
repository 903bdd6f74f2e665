// Package lifecycle drives a single instance through its startup state
// machine: create, configure, assign a GPU slice, start, wait for the
// in-guest agent.
package lifecycle

// Instance lifecycle states. Transitions are only legal along the edges in
// transitions below; Destroyed is terminal.
const (
	StateAbsent           = "absent"
	StateCreating         = "creating"
	StateConfiguring      = "configuring"
	StateResourceAssigned = "resource_assigned"
	StateStarting         = "starting"
	StateRunning          = "running"
	StateAgentReady       = "agent_ready"
	StateDegraded         = "degraded"
	StateUnreachable      = "unreachable"
	StateStopping         = "stopping"
	StateDestroyed        = "destroyed"
)

// transitions lists the legal forward and side edges. Stopping is reachable
// from every non-terminal state (scale-down and forced cleanup), so it is
// handled in CanTransition rather than listed per state.
var transitions = map[string][]string{
	StateAbsent:           {StateCreating},
	StateCreating:         {StateConfiguring, StateAbsent},
	StateConfiguring:      {StateResourceAssigned},
	StateResourceAssigned: {StateStarting},
	StateStarting:         {StateRunning},
	StateRunning:          {StateAgentReady, StateUnreachable},
	StateAgentReady:       {StateDegraded, StateUnreachable},
	StateDegraded:         {StateAgentReady, StateUnreachable},
	StateUnreachable:      {StateAgentReady},
	StateStopping:         {StateDestroyed},
	StateDestroyed:        {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	// Any non-terminal state can begin stopping.
	if to == StateStopping {
		return from != StateDestroyed
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Live reports whether a state counts toward the current fleet size.
func Live(state string) bool {
	return state != StateAbsent && state != StateDestroyed
}
