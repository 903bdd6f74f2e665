//go:build unittest

package virt

import "context"

// RealCLI is a no-op stub used during unit testing (build tag: unittest).
// The real implementation is in cli_real.go.
type RealCLI struct{}

func (RealCLI) Clone(template, name string) error                { return nil }
func (RealCLI) DomUUID(name string) (string, error)              { return "", nil }
func (RealCLI) SetVCPUs(name string, count int) error            { return nil }
func (RealCLI) SetMemory(name string, mib int) error             { return nil }
func (RealCLI) SetDescription(name, desc string) error           { return nil }
func (RealCLI) AttachMdev(name, uuid string) error               { return nil }
func (RealCLI) DetachMdev(name, uuid string) error               { return nil }
func (RealCLI) Start(name string) error                          { return nil }
func (RealCLI) Shutdown(name string) error                       { return nil }
func (RealCLI) ForceOff(name string) error                       { return nil }
func (RealCLI) Undefine(name string) error                       { return nil }
func (RealCLI) DomState(name string) (DomainState, error)        { return DomainUnknown, nil }
func (RealCLI) GuestPing(ctx context.Context, name string) error { return nil }
func (RealCLI) GuestExec(ctx context.Context, name string, args []string) (string, error) {
	return "", nil
}
func (RealCLI) GuestIP(name string) (string, error) { return "", nil }
func (RealCLI) WriteGuestFile(ctx context.Context, name, path string, content []byte) error {
	return nil
}
func (RealCLI) ListMdevs() ([]string, error)               { return nil, nil }
func (RealCLI) SnapshotCreate(name, snapshot string) error { return nil }
