//go:build !unittest

package virt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RealCLI is the production implementation that shells out to virsh,
// virt-clone, and mdevctl on the host.
type RealCLI struct{}

// run executes a command and returns trimmed combined output, wrapping
// failures with the output so the caller's error message carries the
// hypervisor's diagnostic.
func run(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return "", fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), text, err)
	}
	return text, nil
}

func runCtx(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return "", fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), text, err)
	}
	return text, nil
}

func (RealCLI) Clone(template, name string) error {
	_, err := run("virt-clone", "--original", template, "--name", name, "--auto-clone")
	return err
}

func (RealCLI) DomUUID(name string) (string, error) {
	out, err := run("virsh", "domuuid", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (RealCLI) SetVCPUs(name string, count int) error {
	_, err := run("virsh", "setvcpus", name, fmt.Sprintf("%d", count), "--config", "--maximum")
	if err != nil {
		return err
	}
	_, err = run("virsh", "setvcpus", name, fmt.Sprintf("%d", count), "--config")
	return err
}

func (RealCLI) SetMemory(name string, mib int) error {
	kib := fmt.Sprintf("%d", mib*1024)
	if _, err := run("virsh", "setmaxmem", name, kib, "--config"); err != nil {
		return err
	}
	_, err := run("virsh", "setmem", name, kib, "--config")
	return err
}

func (RealCLI) SetDescription(name, desc string) error {
	_, err := run("virsh", "desc", name, "--config", desc)
	return err
}

// mdevDeviceXML is the hostdev element attached for a vGPU slice.
const mdevDeviceXML = `<hostdev mode='subsystem' type='mdev' model='vfio-pci' managed='no'>
  <source>
    <address uuid='%s'/>
  </source>
</hostdev>
`

// withMdevXML writes the hostdev XML for uuid to a temp file and invokes fn
// with its path. virsh attach/detach-device only accept XML files.
func withMdevXML(uuid string, fn func(path string) error) error {
	f, err := os.CreateTemp("", "gamefleet-mdev-*.xml")
	if err != nil {
		return fmt.Errorf("virt: mdev xml temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := fmt.Fprintf(f, mdevDeviceXML, uuid); err != nil {
		f.Close()
		return fmt.Errorf("virt: write mdev xml: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("virt: close mdev xml: %w", err)
	}
	return fn(f.Name())
}

func (RealCLI) AttachMdev(name, uuid string) error {
	return withMdevXML(uuid, func(path string) error {
		_, err := run("virsh", "attach-device", name, path, "--config")
		return err
	})
}

func (RealCLI) DetachMdev(name, uuid string) error {
	return withMdevXML(uuid, func(path string) error {
		_, err := run("virsh", "detach-device", name, path, "--config")
		return err
	})
}

func (RealCLI) Start(name string) error {
	_, err := run("virsh", "start", name)
	return err
}

func (RealCLI) Shutdown(name string) error {
	_, err := run("virsh", "shutdown", name)
	return err
}

func (RealCLI) ForceOff(name string) error {
	_, err := run("virsh", "destroy", name)
	return err
}

func (RealCLI) Undefine(name string) error {
	_, err := run("virsh", "undefine", name, "--remove-all-storage", "--nvram")
	return err
}

func (RealCLI) DomState(name string) (DomainState, error) {
	out, err := run("virsh", "domstate", name)
	if err != nil {
		return DomainUnknown, err
	}
	return ParseDomainState(out), nil
}

func (RealCLI) GuestPing(ctx context.Context, name string) error {
	_, err := runCtx(ctx, "virsh", "qemu-agent-command", name, `{"execute":"guest-ping"}`)
	return err
}

// GuestExec runs a command inside the guest via the agent: guest-exec starts
// the process, then guest-exec-status is polled until it exits. Returns the
// captured stdout; a nonzero guest exit code is an error.
func (RealCLI) GuestExec(ctx context.Context, name string, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("virt: guest exec: empty command")
	}

	req := map[string]interface{}{
		"execute": "guest-exec",
		"arguments": map[string]interface{}{
			"path":           args[0],
			"arg":            args[1:],
			"capture-output": true,
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("virt: guest exec request: %w", err)
	}

	out, err := runCtx(ctx, "virsh", "qemu-agent-command", name, string(payload))
	if err != nil {
		return "", err
	}
	pid, err := ParseGuestExecPID(out)
	if err != nil {
		return "", err
	}

	for {
		statusReq := fmt.Sprintf(`{"execute":"guest-exec-status","arguments":{"pid":%d}}`, pid)
		out, err := runCtx(ctx, "virsh", "qemu-agent-command", name, statusReq)
		if err != nil {
			return "", err
		}
		status, err := ParseGuestExecStatus(out)
		if err != nil {
			return "", err
		}
		if status.Exited {
			if status.ExitCode != 0 {
				return status.Stdout, fmt.Errorf("virt: guest exec %s: exit code %d", args[0], status.ExitCode)
			}
			return status.Stdout, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (RealCLI) GuestIP(name string) (string, error) {
	out, err := run("virsh", "domifaddr", name, "--source", "agent")
	if err != nil {
		return "", err
	}
	return ParseDomIfAddr(out)
}

// WriteGuestFile writes content to a path inside the guest using the agent's
// file API (open, write, close).
func (RealCLI) WriteGuestFile(ctx context.Context, name, path string, content []byte) error {
	openReq := fmt.Sprintf(`{"execute":"guest-file-open","arguments":{"path":%q,"mode":"w"}}`, path)
	out, err := runCtx(ctx, "virsh", "qemu-agent-command", name, openReq)
	if err != nil {
		return err
	}
	handle, err := ParseGuestFileHandle(out)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	writeReq := fmt.Sprintf(`{"execute":"guest-file-write","arguments":{"handle":%d,"buf-b64":%q}}`, handle, encoded)
	if _, err := runCtx(ctx, "virsh", "qemu-agent-command", name, writeReq); err != nil {
		return err
	}

	closeReq := fmt.Sprintf(`{"execute":"guest-file-close","arguments":{"handle":%d}}`, handle)
	_, err = runCtx(ctx, "virsh", "qemu-agent-command", name, closeReq)
	return err
}

func (RealCLI) ListMdevs() ([]string, error) {
	out, err := run("mdevctl", "list")
	if err != nil {
		return nil, err
	}
	return ParseMdevList(out), nil
}

func (RealCLI) SnapshotCreate(name, snapshot string) error {
	_, err := run("virsh", "snapshot-create-as", name, snapshot, "--atomic")
	return err
}
