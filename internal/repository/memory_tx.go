package repository

import (
	"context"

	"shopfloor/internal/domain"
)

// MemoryBatchWriter couples the in-memory logs and batch store. The batch
// write runs first: it is the only step that can fail, so a failure leaves
// the log untouched.
type MemoryBatchWriter struct {
	transitions *MemoryTransitionsRepo
	costs       *MemoryCostsRepo
	batches     *MemoryBatchesRepo
}

func NewMemoryBatchWriter(transitions *MemoryTransitionsRepo, costs *MemoryCostsRepo, batches *MemoryBatchesRepo) *MemoryBatchWriter {
	return &MemoryBatchWriter{transitions: transitions, costs: costs, batches: batches}
}

var _ TransitionWriter = (*MemoryBatchWriter)(nil)
var _ CostWriter = (*MemoryBatchWriter)(nil)

func (w *MemoryBatchWriter) ApplyTransition(ctx context.Context, ev domain.StageTransitionEvent, b *domain.WIPBatch) error {
	if err := w.batches.Update(ctx, b); err != nil {
		return err
	}
	return w.transitions.Append(ctx, ev)
}

func (w *MemoryBatchWriter) ApplyCost(ctx context.Context, e domain.CostEntry) error {
	if err := w.batches.AddCost(ctx, e.BatchID, e.CostType, e.Amount); err != nil {
		return err
	}
	return w.costs.Append(ctx, e)
}
