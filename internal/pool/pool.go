// Package pool tracks the host's assignable GPU slices and which instance
// holds each one. Slices are discovered once at startup; only their holder
// changes afterwards.
package pool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/virt"
)

// Pool is a mutex-guarded assignment table over a fixed set of slice IDs.
// Acquire hands out the lowest-ordered free slice so repeated reconciliation
// passes are deterministic and never thrash ownership.
type Pool struct {
	mu      sync.Mutex
	ids     []string       // all discovered slice IDs, sorted
	holder  map[string]int // slice ID -> holding instance index
	byIndex map[int]string // instance index -> held slice ID
}

// New creates a Pool over the given slice IDs.
func New(ids []string) *Pool {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return &Pool{
		ids:     sorted,
		holder:  make(map[string]int),
		byIndex: make(map[int]string),
	}
}

// Discover enumerates available GPU slices from the host. Enumeration
// failure is not fatal: the returned pool is empty and the error is
// informational so the caller can log a degraded-mode warning.
func Discover(cli virt.CLI) (*Pool, error) {
	ids, err := cli.ListMdevs()
	if err != nil {
		return New(nil), fmt.Errorf("pool: discover GPU slices: %w", err)
	}
	return New(ids), nil
}

// Rehydrate re-marks slices held by live instances, so a fresh controller
// process agrees with the registry about ownership. Returns an error if two
// instances claim the same slice or an instance claims an unknown slice.
func (p *Pool) Rehydrate(instances []models.Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	known := make(map[string]bool, len(p.ids))
	for _, id := range p.ids {
		known[id] = true
	}

	for _, inst := range instances {
		if inst.ResourceID == "" {
			continue
		}
		if !known[inst.ResourceID] {
			return fmt.Errorf("pool: instance %d claims unknown slice %s", inst.Index, inst.ResourceID)
		}
		if other, taken := p.holder[inst.ResourceID]; taken {
			return fmt.Errorf("pool: slice %s claimed by both instance %d and %d", inst.ResourceID, other, inst.Index)
		}
		p.holder[inst.ResourceID] = inst.Index
		p.byIndex[inst.Index] = inst.ResourceID
	}
	return nil
}

// Acquire marks the lowest-ordered free slice as held by index and returns
// it. Returns ("", false) when no slice is free — a valid GPU-less outcome,
// not an error. Acquiring again for an index that already holds a slice
// returns the held slice.
func (p *Pool) Acquire(index int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byIndex[index]; ok {
		return id, true
	}
	for _, id := range p.ids {
		if _, taken := p.holder[id]; !taken {
			p.holder[id] = index
			p.byIndex[index] = id
			return id, true
		}
	}
	return "", false
}

// Release frees any slice held by index. No-op if none held.
func (p *Pool) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.byIndex[index]
	if !ok {
		return
	}
	delete(p.byIndex, index)
	delete(p.holder, id)
}

// AssignmentOf returns the slice held by index, if any.
func (p *Pool) AssignmentOf(index int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byIndex[index]
	return id, ok
}

// Size returns the number of discovered slices.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// Free returns the number of unheld slices.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids) - len(p.holder)
}

// Assignments returns a copy of the slice -> holder table.
func (p *Pool) Assignments() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.holder))
	for id, idx := range p.holder {
		out[id] = idx
	}
	return out
}
