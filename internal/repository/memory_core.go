package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"shopfloor/internal/domain"
)

// MemoryMachinesRepo supports running without a database (tests, demos).
type MemoryMachinesRepo struct {
	mu       sync.RWMutex
	machines map[string]domain.Machine
}

func NewMemoryMachinesRepo() *MemoryMachinesRepo {
	return &MemoryMachinesRepo{machines: map[string]domain.Machine{}}
}

var _ MachinesRepo = (*MemoryMachinesRepo)(nil)

func (r *MemoryMachinesRepo) Get(_ context.Context, machineID string) (*domain.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[machineID]
	if !ok {
		return nil, domain.NewNotFound("machine", machineID)
	}
	return &m, nil
}

func (r *MemoryMachinesRepo) List(_ context.Context) ([]domain.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]domain.Machine, 0, len(r.machines))
	for _, m := range r.machines {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	return all, nil
}

func (r *MemoryMachinesRepo) Create(_ context.Context, m *domain.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[m.MachineID] = *m
	return nil
}

func (r *MemoryMachinesRepo) UpdateStatus(_ context.Context, machineID, status string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[machineID]
	if !ok {
		return domain.NewNotFound("machine", machineID)
	}
	m.Status = status
	m.UpdatedAt = at
	r.machines[machineID] = m
	return nil
}

// MemoryRoutingsRepo in-memory routing store.
type MemoryRoutingsRepo struct {
	mu       sync.RWMutex
	routings map[string]domain.Routing
}

func NewMemoryRoutingsRepo() *MemoryRoutingsRepo {
	return &MemoryRoutingsRepo{routings: map[string]domain.Routing{}}
}

var _ RoutingsRepo = (*MemoryRoutingsRepo)(nil)

func (r *MemoryRoutingsRepo) GetRouting(_ context.Context, routingID string) (*domain.Routing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routing, ok := r.routings[routingID]
	if !ok {
		return nil, domain.NewNotFound("routing", routingID)
	}
	cp := routing
	cp.Stages = append([]domain.ProductionStage(nil), routing.Stages...)
	return &cp, nil
}

func (r *MemoryRoutingsRepo) ListRoutings(_ context.Context) ([]domain.Routing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]domain.Routing, 0, len(r.routings))
	for _, routing := range r.routings {
		cp := routing
		cp.Stages = append([]domain.ProductionStage(nil), routing.Stages...)
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (r *MemoryRoutingsRepo) CreateRouting(_ context.Context, routing *domain.Routing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *routing
	cp.Stages = append([]domain.ProductionStage(nil), routing.Stages...)
	sort.Slice(cp.Stages, func(i, j int) bool { return cp.Stages[i].Seq < cp.Stages[j].Seq })
	r.routings[routing.RoutingID] = cp
	return nil
}

// MemoryBatchesRepo in-memory batch store.
type MemoryBatchesRepo struct {
	mu      sync.RWMutex
	batches map[string]domain.WIPBatch
}

func NewMemoryBatchesRepo() *MemoryBatchesRepo {
	return &MemoryBatchesRepo{batches: map[string]domain.WIPBatch{}}
}

var _ BatchesRepo = (*MemoryBatchesRepo)(nil)

func (r *MemoryBatchesRepo) Get(_ context.Context, batchID string) (*domain.WIPBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[batchID]
	if !ok {
		return nil, domain.NewNotFound("batch", batchID)
	}
	return &b, nil
}

func (r *MemoryBatchesRepo) Create(_ context.Context, b *domain.WIPBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.BatchID] = *b
	return nil
}

func (r *MemoryBatchesRepo) Update(_ context.Context, b *domain.WIPBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[b.BatchID]; !ok {
		return domain.NewNotFound("batch", b.BatchID)
	}
	r.batches[b.BatchID] = *b
	return nil
}

func (r *MemoryBatchesRepo) AddCost(_ context.Context, batchID, costType string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return domain.NewNotFound("batch", batchID)
	}
	switch costType {
	case domain.CostMaterial:
		b.CostMaterial += amount
	case domain.CostLabor:
		b.CostLabor += amount
	case domain.CostOverhead:
		b.CostOverhead += amount
	default:
		return domain.NewValidationError("cost_type", "unknown cost type "+costType)
	}
	r.batches[batchID] = b
	return nil
}

func (r *MemoryBatchesRepo) ListOpenByRouting(_ context.Context, routingID string) ([]domain.WIPBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var open []domain.WIPBatch
	for _, b := range r.batches {
		if b.RoutingID != routingID {
			continue
		}
		if b.Status == domain.BatchOpen || b.Status == domain.BatchInProgress {
			open = append(open, b)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].StartedAt.Before(open[j].StartedAt) })
	return open, nil
}
