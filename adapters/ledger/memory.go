package ledger

import (
	"context"
	"sort"
	"sync"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal/errors"
)

// MemoryLedger keeps reports for the life of the process.
type MemoryLedger struct {
	mu      sync.RWMutex
	reports map[core.RunID]leakage.Report
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *MemoryLedger {
	return &MemoryLedger{reports: make(map[core.RunID]leakage.Report)}
}

func (m *MemoryLedger) Save(_ context.Context, report *leakage.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.RunID]; ok {
		return errors.DatabaseError("run " + report.RunID.String() + " already saved")
	}
	m.reports[report.RunID] = *report
	return nil
}

func (m *MemoryLedger) Get(_ context.Context, id core.RunID) (*leakage.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, errors.Wrapf(core.ErrRunNotFound, "run %s", id)
	}
	return &r, nil
}

func (m *MemoryLedger) List(_ context.Context, target string, limit int) ([]*leakage.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	out := make([]*leakage.Report, 0, len(m.reports))
	for _, r := range m.reports {
		if target != "" && r.Target != target {
			continue
		}
		r := r
		out = append(out, &r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
