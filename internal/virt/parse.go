package virt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseDomainState maps virsh domstate output to a DomainState.
func ParseDomainState(out string) DomainState {
	switch strings.TrimSpace(out) {
	case "running":
		return DomainRunning
	case "paused":
		return DomainPaused
	case "shut off":
		return DomainShutOff
	case "crashed":
		return DomainCrashed
	case "in shutdown":
		return DomainShutdown
	default:
		return DomainUnknown
	}
}

// ParseDomIfAddr extracts the first non-loopback IPv4 address from virsh
// domifaddr output. The output is a header, a separator line, and one row
// per interface.
func ParseDomIfAddr(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[2] != "ipv4" {
			continue
		}
		addr := fields[3]
		if i := strings.IndexByte(addr, '/'); i >= 0 {
			addr = addr[:i]
		}
		if strings.HasPrefix(addr, "127.") {
			continue
		}
		return addr, nil
	}
	return "", fmt.Errorf("virt: no guest IPv4 address in domifaddr output")
}

// ParseMdevList extracts mediated device UUIDs from mdevctl list output.
// Each line is "UUID PARENT TYPE ...".
func ParseMdevList(out string) []string {
	var uuids []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		// Mdev UUIDs are 36 chars with four dashes; skip anything else.
		if len(fields[0]) == 36 && strings.Count(fields[0], "-") == 4 {
			uuids = append(uuids, fields[0])
		}
	}
	return uuids
}

// GuestExecStatus is the decoded result of a guest-exec-status call.
type GuestExecStatus struct {
	Exited   bool
	ExitCode int
	Stdout   string
}

// ParseGuestExecPID decodes the pid from a guest-exec response.
func ParseGuestExecPID(out string) (int, error) {
	var resp struct {
		Return struct {
			PID int `json:"pid"`
		} `json:"return"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return 0, fmt.Errorf("virt: decode guest-exec response: %w", err)
	}
	if resp.Return.PID == 0 {
		return 0, fmt.Errorf("virt: guest-exec returned no pid")
	}
	return resp.Return.PID, nil
}

// ParseGuestExecStatus decodes a guest-exec-status response, including the
// base64 stdout capture.
func ParseGuestExecStatus(out string) (GuestExecStatus, error) {
	var resp struct {
		Return struct {
			Exited   bool   `json:"exited"`
			ExitCode int    `json:"exitcode"`
			OutData  string `json:"out-data"`
		} `json:"return"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return GuestExecStatus{}, fmt.Errorf("virt: decode guest-exec-status response: %w", err)
	}
	status := GuestExecStatus{
		Exited:   resp.Return.Exited,
		ExitCode: resp.Return.ExitCode,
	}
	if resp.Return.OutData != "" {
		decoded, err := base64.StdEncoding.DecodeString(resp.Return.OutData)
		if err != nil {
			return GuestExecStatus{}, fmt.Errorf("virt: decode guest-exec stdout: %w", err)
		}
		status.Stdout = string(decoded)
	}
	return status, nil
}

// ParseGuestFileHandle decodes the handle from a guest-file-open response.
func ParseGuestFileHandle(out string) (int, error) {
	var resp struct {
		Return int `json:"return"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return 0, fmt.Errorf("virt: decode guest-file-open response: %w", err)
	}
	return resp.Return, nil
}
