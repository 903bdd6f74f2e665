// Package guest defines the contract between provisioned instances and the
// external registration endpoint. The controller never serves this endpoint;
// it writes a WorkerConfig into each guest so the game client knows where
// and how to report.
package guest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Statuses a guest reports to the registration endpoint.
const (
	StatusStarting = "starting"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// Registration is the initial POST /register payload a guest sends.
type Registration struct {
	WorkerID     int      `json:"worker_id"`
	Hostname     string   `json:"hostname"`
	IPAddress    string   `json:"ip_address"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
}

// HealthReport is the periodic POST /health payload a guest sends.
type HealthReport struct {
	WorkerID  int                    `json:"worker_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// WorkerConfig is the file written into each guest once its agent is up. The
// in-guest reporter reads it to learn its worker_id and the registry URL.
type WorkerConfig struct {
	WorkerID          int      `json:"worker_id"`
	RegistryURL       string   `json:"registry_url"`
	ReportIntervalSec int      `json:"report_interval_seconds"`
	Capabilities      []string `json:"capabilities"`
}

// RenderWorkerConfig produces the JSON document written into a guest.
// hasGPU controls whether the gpu capability is advertised.
func RenderWorkerConfig(workerID int, registryURL string, reportInterval time.Duration, hasGPU bool) ([]byte, error) {
	caps := []string{"game-client"}
	if hasGPU {
		caps = append([]string{"gpu"}, caps...)
	}
	cfg := WorkerConfig{
		WorkerID:          workerID,
		RegistryURL:       registryURL,
		ReportIntervalSec: int(reportInterval.Seconds()),
		Capabilities:      caps,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("guest: marshal worker config: %w", err)
	}
	return append(data, '\n'), nil
}
