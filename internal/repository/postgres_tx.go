package repository

import (
	"context"
	"database/sql"
	"fmt"

	"shopfloor/internal/domain"
)

// PostgresBatchWriter 事件日志与批次快照的同事务写入。
// 追加与更新在一个数据库事务内提交，任一步失败则整体回滚。
type PostgresBatchWriter struct {
	db *sql.DB
}

// NewPostgresBatchWriter 创建同事务批次写入器
func NewPostgresBatchWriter(db *sql.DB) *PostgresBatchWriter {
	return &PostgresBatchWriter{db: db}
}

var _ TransitionWriter = (*PostgresBatchWriter)(nil)
var _ CostWriter = (*PostgresBatchWriter)(nil)

func (w *PostgresBatchWriter) ApplyTransition(ctx context.Context, ev domain.StageTransitionEvent, b *domain.WIPBatch) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.DurabilityError{Op: "begin transition tx", Err: err}
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO stage_transition_events
			(event_id, batch_id, from_stage_id, to_stage_id, qty_good, qty_rejected,
			 operator_id, machine_id, shift, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, insert,
		ev.EventID, ev.BatchID, ev.FromStageID, ev.ToStageID, ev.QtyGood, ev.QtyRejected,
		ev.OperatorID, ev.MachineID, ev.Shift, ev.Timestamp,
	); err != nil {
		return &domain.DurabilityError{Op: "append transition event", Err: err}
	}

	update := `
		UPDATE wip_batches SET
			current_stage_id = $2, qty_started = $3, qty_completed = $4, qty_rejected = $5,
			status = $6, cost_material = $7, cost_labor = $8, cost_overhead = $9,
			completed_at = $10
		WHERE batch_id = $1`
	res, err := tx.ExecContext(ctx, update,
		b.BatchID, b.CurrentStageID, b.QtyStarted, b.QtyCompleted, b.QtyRejected,
		b.Status, b.CostMaterial, b.CostLabor, b.CostOverhead, b.CompletedAt,
	)
	if err != nil {
		return &domain.DurabilityError{Op: "update batch snapshot", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound("batch", b.BatchID)
	}

	if err := tx.Commit(); err != nil {
		return &domain.DurabilityError{Op: "commit transition tx", Err: err}
	}
	return nil
}

func (w *PostgresBatchWriter) ApplyCost(ctx context.Context, e domain.CostEntry) error {
	var column string
	switch e.CostType {
	case domain.CostMaterial:
		column = "cost_material"
	case domain.CostLabor:
		column = "cost_labor"
	case domain.CostOverhead:
		column = "cost_overhead"
	default:
		return domain.NewValidationError("cost_type", "unknown cost type "+e.CostType)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.DurabilityError{Op: "begin cost tx", Err: err}
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO cost_entries (entry_id, batch_id, stage_id, cost_type, amount, source_ref, auto_generated, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, insert,
		e.EntryID, e.BatchID, e.StageID, e.CostType, e.Amount, e.SourceRef, e.Auto, e.Timestamp,
	); err != nil {
		return &domain.DurabilityError{Op: "append cost entry", Err: err}
	}

	update := fmt.Sprintf(`UPDATE wip_batches SET %s = %s + $2 WHERE batch_id = $1`, column, column)
	res, err := tx.ExecContext(ctx, update, e.BatchID, e.Amount)
	if err != nil {
		return &domain.DurabilityError{Op: "add batch cost", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound("batch", e.BatchID)
	}

	if err := tx.Commit(); err != nil {
		return &domain.DurabilityError{Op: "commit cost tx", Err: err}
	}
	return nil
}
