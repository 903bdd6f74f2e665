// Package status collects and renders a point-in-time view of the fleet.
package status

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/pool"
	"gorm.io/gorm"
)

// InstanceStatus is one instance's row in the fleet view.
type InstanceStatus struct {
	Index          int       `json:"index"`
	Name           string    `json:"name"`
	State          string    `json:"state"`
	Health         string    `json:"health"`
	IPAddress      string    `json:"ip_address,omitempty"`
	ResourceID     string    `json:"resource_id,omitempty"`
	RetryCount     int       `json:"retry_count"`
	ReplacePending bool      `json:"replace_pending"`
	Uptime         string    `json:"uptime,omitempty"`
	LastHealthAt   time.Time `json:"last_health_at,omitempty"`
}

// FleetStatus is the full fleet view.
type FleetStatus struct {
	Name        string           `json:"name"`
	Desired     int              `json:"desired"`
	Live        int              `json:"live"`
	PoolSize    int              `json:"pool_size"`
	PoolFree    int              `json:"pool_free"`
	Instances   []InstanceStatus `json:"instances"`
	CollectedAt time.Time        `json:"collected_at"`
}

// Collect builds the fleet view from the registry and the pool.
func Collect(db *gorm.DB, p *pool.Pool, cfg *config.Config) (*FleetStatus, error) {
	var instances []models.Instance
	err := db.Where("state NOT IN ?", []string{lifecycle.StateAbsent, lifecycle.StateDestroyed}).
		Order("`index`").Find(&instances).Error
	if err != nil {
		return nil, fmt.Errorf("status: load instances: %w", err)
	}

	fs := &FleetStatus{
		Name:        cfg.Name,
		Desired:     cfg.Fleet.Workers,
		Live:        len(instances),
		PoolSize:    p.Size(),
		PoolFree:    p.Free(),
		CollectedAt: time.Now(),
	}
	for _, inst := range instances {
		fs.Instances = append(fs.Instances, InstanceStatus{
			Index:          inst.Index,
			Name:           inst.Name,
			State:          inst.State,
			Health:         inst.Health,
			IPAddress:      inst.IPAddress,
			ResourceID:     inst.ResourceID,
			RetryCount:     inst.RetryCount,
			ReplacePending: inst.ReplacePending,
			Uptime:         uptime(inst.CreatedAt),
			LastHealthAt:   inst.LastHealthAt,
		})
	}
	return fs, nil
}

// Format renders the fleet view as a fixed-width table. Unknown values show
// as "-".
func Format(w io.Writer, fs *FleetStatus) {
	fmt.Fprintf(w, "Fleet %s: %d/%d live, %d/%d GPU slices free\n\n",
		fs.Name, fs.Live, fs.Desired, fs.PoolFree, fs.PoolSize)

	if len(fs.Instances) == 0 {
		fmt.Fprintln(w, "No instances.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDX\tNAME\tSTATE\tHEALTH\tIP\tGPU\tUPTIME\tRETRIES")
	for _, inst := range fs.Instances {
		retries := fmt.Sprintf("%d", inst.RetryCount)
		if inst.ReplacePending {
			retries += " (replace pending)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.Index, inst.Name, inst.State,
			orDash(inst.Health), orDash(inst.IPAddress), orDash(inst.ResourceID),
			orDash(inst.Uptime), retries)
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" || s == "unknown" {
		return "-"
	}
	return s
}

// uptime renders the age of an instance, second precision below an hour,
// minute precision above.
func uptime(createdAt time.Time) string {
	if createdAt.IsZero() {
		return ""
	}
	d := time.Since(createdAt)
	if d < 0 {
		return ""
	}
	if d >= time.Hour {
		return d.Truncate(time.Minute).String()
	}
	return d.Truncate(time.Second).String()
}
