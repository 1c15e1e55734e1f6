package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"shopfloor/internal/domain"
)

// MemoryTransitionsRepo append-only in-memory transition log.
type MemoryTransitionsRepo struct {
	mu     sync.RWMutex
	events []domain.StageTransitionEvent
}

func NewMemoryTransitionsRepo() *MemoryTransitionsRepo {
	return &MemoryTransitionsRepo{}
}

var _ TransitionsRepo = (*MemoryTransitionsRepo)(nil)

func (r *MemoryTransitionsRepo) Append(_ context.Context, ev domain.StageTransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryTransitionsRepo) ListByBatch(_ context.Context, batchID string) ([]domain.StageTransitionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.StageTransitionEvent
	for _, ev := range r.events {
		if ev.BatchID == batchID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// MemoryCostsRepo append-only in-memory cost entry log.
type MemoryCostsRepo struct {
	mu      sync.RWMutex
	entries []domain.CostEntry
}

func NewMemoryCostsRepo() *MemoryCostsRepo {
	return &MemoryCostsRepo{}
}

var _ CostsRepo = (*MemoryCostsRepo)(nil)

func (r *MemoryCostsRepo) Append(_ context.Context, e domain.CostEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryCostsRepo) ListByBatch(_ context.Context, batchID string) ([]domain.CostEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.CostEntry
	for _, e := range r.entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *MemoryCostsRepo) HasExplicitOverhead(_ context.Context, batchID, stageID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.BatchID == batchID && e.StageID == stageID && e.CostType == domain.CostOverhead && !e.Auto {
			return true, nil
		}
	}
	return false, nil
}

// MemoryMachineEventsRepo append-only in-memory machine event log.
type MemoryMachineEventsRepo struct {
	mu     sync.RWMutex
	events []domain.MachineEvent
}

func NewMemoryMachineEventsRepo() *MemoryMachineEventsRepo {
	return &MemoryMachineEventsRepo{}
}

var _ MachineEventsRepo = (*MemoryMachineEventsRepo)(nil)

func (r *MemoryMachineEventsRepo) Append(_ context.Context, ev domain.MachineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryMachineEventsRepo) ListByWindow(_ context.Context, machineID string, start, end time.Time) ([]domain.MachineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.MachineEvent
	for _, ev := range r.events {
		if ev.MachineID != machineID {
			continue
		}
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// MemoryAlertsRepo in-memory alert store.
type MemoryAlertsRepo struct {
	mu     sync.RWMutex
	alerts map[string]domain.Alert
}

func NewMemoryAlertsRepo() *MemoryAlertsRepo {
	return &MemoryAlertsRepo{alerts: map[string]domain.Alert{}}
}

var _ AlertsRepo = (*MemoryAlertsRepo)(nil)

func (r *MemoryAlertsRepo) Create(_ context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[a.AlertID] = *a
	return nil
}

func (r *MemoryAlertsRepo) Get(_ context.Context, alertID string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[alertID]
	if !ok {
		return nil, domain.NewNotFound("alert", alertID)
	}
	return &a, nil
}

func (r *MemoryAlertsRepo) Update(_ context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[a.AlertID]; !ok {
		return domain.NewNotFound("alert", a.AlertID)
	}
	r.alerts[a.AlertID] = *a
	return nil
}

func (r *MemoryAlertsRepo) List(_ context.Context, f AlertFilters) ([]domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Alert
	for _, a := range r.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.MachineID != "" && a.MachineID != f.MachineID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryAlertsRepo) FindOpen(_ context.Context, machineID, alertType string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var newest *domain.Alert
	for id := range r.alerts {
		a := r.alerts[id]
		if a.MachineID != machineID || a.AlertType != alertType || !a.Open() {
			continue
		}
		if newest == nil || a.TriggeredAt.After(newest.TriggeredAt) {
			cp := a
			newest = &cp
		}
	}
	return newest, nil
}
