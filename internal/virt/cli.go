// Package virt is the boundary to the host virtualization CLI. All raw
// command output is parsed here into typed values; nothing downstream ever
// re-parses CLI text.
package virt

import "context"

// DomainState is the typed lifecycle state reported by the hypervisor.
type DomainState string

const (
	DomainRunning  DomainState = "running"
	DomainPaused   DomainState = "paused"
	DomainShutOff  DomainState = "shut off"
	DomainCrashed  DomainState = "crashed"
	DomainShutdown DomainState = "in shutdown"
	DomainUnknown  DomainState = "unknown"
)

// CLI abstracts virtualization host operations for testability. Guest-agent
// round trips take a context because they block on the guest responding;
// the remaining calls are local control-plane commands.
type CLI interface {
	Clone(template, name string) error
	DomUUID(name string) (string, error)
	SetVCPUs(name string, count int) error
	SetMemory(name string, mib int) error
	SetDescription(name, desc string) error
	AttachMdev(name, uuid string) error
	DetachMdev(name, uuid string) error
	Start(name string) error
	Shutdown(name string) error
	ForceOff(name string) error
	Undefine(name string) error
	DomState(name string) (DomainState, error)
	GuestPing(ctx context.Context, name string) error
	GuestExec(ctx context.Context, name string, args []string) (string, error)
	GuestIP(name string) (string, error)
	WriteGuestFile(ctx context.Context, name, path string, content []byte) error
	ListMdevs() ([]string, error)
	SnapshotCreate(name, snapshot string) error
}

// DefaultCLI is the default implementation used by the package.
// Set to RealCLI{} in cli_real.go (excluded from test builds via build tag).
var DefaultCLI CLI = RealCLI{}
