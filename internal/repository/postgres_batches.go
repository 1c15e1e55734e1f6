package repository

import (
	"context"
	"database/sql"
	"fmt"

	"shopfloor/internal/domain"
)

// PostgresBatchesRepo 在制批次仓库实现
type PostgresBatchesRepo struct {
	db *sql.DB
}

// NewPostgresBatchesRepo 创建在制批次仓库
func NewPostgresBatchesRepo(db *sql.DB) *PostgresBatchesRepo {
	return &PostgresBatchesRepo{db: db}
}

var _ BatchesRepo = (*PostgresBatchesRepo)(nil)

const batchColumns = `batch_id, work_order_ref, routing_id, current_stage_id,
	qty_started, qty_completed, qty_rejected, status,
	cost_material, cost_labor, cost_overhead, started_at, completed_at`

func scanBatch(row interface{ Scan(...interface{}) error }) (*domain.WIPBatch, error) {
	var b domain.WIPBatch
	var completedAt sql.NullTime
	err := row.Scan(
		&b.BatchID, &b.WorkOrderRef, &b.RoutingID, &b.CurrentStageID,
		&b.QtyStarted, &b.QtyCompleted, &b.QtyRejected, &b.Status,
		&b.CostMaterial, &b.CostLabor, &b.CostOverhead, &b.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}

func (r *PostgresBatchesRepo) Get(ctx context.Context, batchID string) (*domain.WIPBatch, error) {
	query := fmt.Sprintf(`SELECT %s FROM wip_batches WHERE batch_id = $1`, batchColumns)

	b, err := scanBatch(r.db.QueryRowContext(ctx, query, batchID))
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFound("batch", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

func (r *PostgresBatchesRepo) Create(ctx context.Context, b *domain.WIPBatch) error {
	query := `
		INSERT INTO wip_batches (batch_id, work_order_ref, routing_id, current_stage_id,
			qty_started, qty_completed, qty_rejected, status,
			cost_material, cost_labor, cost_overhead, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		b.BatchID, b.WorkOrderRef, b.RoutingID, b.CurrentStageID,
		b.QtyStarted, b.QtyCompleted, b.QtyRejected, b.Status,
		b.CostMaterial, b.CostLabor, b.CostOverhead, b.StartedAt, b.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (r *PostgresBatchesRepo) Update(ctx context.Context, b *domain.WIPBatch) error {
	query := `
		UPDATE wip_batches SET
			current_stage_id = $2, qty_started = $3, qty_completed = $4, qty_rejected = $5,
			status = $6, cost_material = $7, cost_labor = $8, cost_overhead = $9,
			completed_at = $10
		WHERE batch_id = $1`

	res, err := r.db.ExecContext(ctx, query,
		b.BatchID, b.CurrentStageID, b.QtyStarted, b.QtyCompleted, b.QtyRejected,
		b.Status, b.CostMaterial, b.CostLabor, b.CostOverhead, b.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound("batch", b.BatchID)
	}
	return nil
}

func (r *PostgresBatchesRepo) AddCost(ctx context.Context, batchID, costType string, amount float64) error {
	var column string
	switch costType {
	case domain.CostMaterial:
		column = "cost_material"
	case domain.CostLabor:
		column = "cost_labor"
	case domain.CostOverhead:
		column = "cost_overhead"
	default:
		return domain.NewValidationError("cost_type", "unknown cost type "+costType)
	}

	query := fmt.Sprintf(`UPDATE wip_batches SET %s = %s + $2 WHERE batch_id = $1`, column, column)
	res, err := r.db.ExecContext(ctx, query, batchID, amount)
	if err != nil {
		return fmt.Errorf("failed to add cost: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound("batch", batchID)
	}
	return nil
}

func (r *PostgresBatchesRepo) ListOpenByRouting(ctx context.Context, routingID string) ([]domain.WIPBatch, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM wip_batches
		WHERE routing_id = $1 AND status IN ('open', 'in_progress')
		ORDER BY started_at ASC`, batchColumns)

	rows, err := r.db.QueryContext(ctx, query, routingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.WIPBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}
