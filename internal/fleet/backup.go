package fleet

import (
	"fmt"
	"time"

	"github.com/halverson/gamefleet/internal/models"
)

// Backup snapshots the instance at index. The snapshot name carries a
// timestamp so repeated backups never collide.
func (c *Controller) Backup(index int) error {
	var inst models.Instance
	if err := c.DB.Where("`index` = ?", index).First(&inst).Error; err != nil {
		return fmt.Errorf("fleet: instance %d not found: %w", index, err)
	}

	snap := fmt.Sprintf("gf-%s", time.Now().Format("20060102-150405"))
	if err := c.CLI.SnapshotCreate(inst.Name, snap); err != nil {
		return fmt.Errorf("fleet: snapshot %s of %s: %w", snap, inst.Name, err)
	}
	c.Driver.RecordEvent(index, models.EventBackup, "snapshot "+snap)
	fmt.Fprintf(c.Out, "Instance %d: snapshot %s created\n", index, snap)
	return nil
}

// BackupAll snapshots every live instance, continuing past individual
// failures.
func (c *Controller) BackupAll() (*Report, error) {
	live, err := c.Live()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, inst := range live {
		outcome := Outcome{Index: inst.Index, Action: "backup", OK: true}
		if err := c.Backup(inst.Index); err != nil {
			outcome.OK = false
			outcome.Reason = err.Error()
		}
		report.add(outcome)
	}
	return report, nil
}
