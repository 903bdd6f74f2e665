package fleet

import (
	"fmt"

	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"gorm.io/gorm"
)

// InvariantError reports an impossible registry state. It signals a bug and
// aborts the current reconciliation pass; it is never an operational
// condition.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "fleet: invariant violation: " + e.Msg
}

// CheckInvariants verifies the registry before a reconciliation pass:
// no GPU slice may be held by two live instances, and no live instance may
// share a name with another.
func CheckInvariants(db *gorm.DB) error {
	var instances []models.Instance
	if err := db.Find(&instances).Error; err != nil {
		return fmt.Errorf("fleet: load registry: %w", err)
	}

	holders := make(map[string]int)
	names := make(map[string]int)
	for _, inst := range instances {
		if !lifecycle.Live(inst.State) {
			continue
		}
		if inst.ResourceID != "" {
			if other, ok := holders[inst.ResourceID]; ok {
				return &InvariantError{Msg: fmt.Sprintf(
					"slice %s held by instances %d and %d", inst.ResourceID, other, inst.Index)}
			}
			holders[inst.ResourceID] = inst.Index
		}
		if other, ok := names[inst.Name]; ok {
			return &InvariantError{Msg: fmt.Sprintf(
				"name %s used by instances %d and %d", inst.Name, other, inst.Index)}
		}
		names[inst.Name] = inst.Index
	}
	return nil
}
