package fleet

import (
	"fmt"
	"strings"
)

// Outcome is the recorded result of one per-instance operation. Batch
// operations collect outcomes instead of aborting on the first failure.
type Outcome struct {
	Index  int
	Action string // "provision", "decommission", "replace", "backup"
	OK     bool
	Reason string
}

// Report summarizes one reconciliation or batch operation.
type Report struct {
	Desired        int
	Provisioned    int
	Decommissioned int
	Failed         int
	Outcomes       []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if !o.OK {
		r.Failed++
		return
	}
	switch o.Action {
	case "provision", "replace":
		r.Provisioned++
	case "decommission":
		r.Decommissioned++
	}
}

// Summary renders the batch result line, including failure reasons.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d provisioned, %d decommissioned, %d failed", r.Provisioned, r.Decommissioned, r.Failed)
	for _, o := range r.Outcomes {
		if !o.OK {
			fmt.Fprintf(&b, "\n  instance %d (%s): %s", o.Index, o.Action, o.Reason)
		}
	}
	return b.String()
}
