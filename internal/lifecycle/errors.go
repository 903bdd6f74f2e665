package lifecycle

import (
	"errors"
	"fmt"
)

// ErrAgentTimeout is returned when an instance's agent never answered the
// liveness probe within the ready timeout.
var ErrAgentTimeout = errors.New("lifecycle: agent ready wait timed out")

// CreateError wraps a failed clone. Not retried automatically; the fleet
// controller may retry on its next reconciliation pass.
type CreateError struct {
	Index int
	Err   error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("lifecycle: create instance %d: %v", e.Index, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// ConfigureError wraps a failed compute/network configuration step. Non-fatal:
// the instance proceeds and configuration is retried next pass.
type ConfigureError struct {
	Index int
	Err   error
}

func (e *ConfigureError) Error() string {
	return fmt.Sprintf("lifecycle: configure instance %d: %v", e.Index, e.Err)
}

func (e *ConfigureError) Unwrap() error { return e.Err }

// StartError wraps a failed start call.
type StartError struct {
	Index int
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("lifecycle: start instance %d: %v", e.Index, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// TransitionError reports an attempted illegal state transition. It signals
// a logic bug, not an operational condition.
type TransitionError struct {
	Index int
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lifecycle: instance %d: illegal transition %s -> %s", e.Index, e.From, e.To)
}
