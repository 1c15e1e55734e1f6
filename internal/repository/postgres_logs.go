package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shopfloor/internal/domain"
)

// PostgresTransitionsRepo 工序流转事件日志实现（追加写入）
type PostgresTransitionsRepo struct {
	db *sql.DB
}

// NewPostgresTransitionsRepo 创建流转事件日志
func NewPostgresTransitionsRepo(db *sql.DB) *PostgresTransitionsRepo {
	return &PostgresTransitionsRepo{db: db}
}

var _ TransitionsRepo = (*PostgresTransitionsRepo)(nil)

func (r *PostgresTransitionsRepo) Append(ctx context.Context, ev domain.StageTransitionEvent) error {
	query := `
		INSERT INTO stage_transition_events
			(event_id, batch_id, from_stage_id, to_stage_id, qty_good, qty_rejected,
			 operator_id, machine_id, shift, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		ev.EventID, ev.BatchID, ev.FromStageID, ev.ToStageID, ev.QtyGood, ev.QtyRejected,
		ev.OperatorID, ev.MachineID, ev.Shift, ev.Timestamp,
	)
	if err != nil {
		return &domain.DurabilityError{Op: "append transition event", Err: err}
	}
	return nil
}

func (r *PostgresTransitionsRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.StageTransitionEvent, error) {
	query := `
		SELECT event_id, batch_id, from_stage_id, to_stage_id, qty_good, qty_rejected,
			operator_id, machine_id, shift, ts
		FROM stage_transition_events
		WHERE batch_id = $1
		ORDER BY ts ASC, event_id ASC`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transition events: %w", err)
	}
	defer rows.Close()

	var events []domain.StageTransitionEvent
	for rows.Next() {
		var ev domain.StageTransitionEvent
		if err := rows.Scan(
			&ev.EventID, &ev.BatchID, &ev.FromStageID, &ev.ToStageID, &ev.QtyGood, &ev.QtyRejected,
			&ev.OperatorID, &ev.MachineID, &ev.Shift, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PostgresCostsRepo 成本分录日志实现（追加写入）
type PostgresCostsRepo struct {
	db *sql.DB
}

// NewPostgresCostsRepo 创建成本分录日志
func NewPostgresCostsRepo(db *sql.DB) *PostgresCostsRepo {
	return &PostgresCostsRepo{db: db}
}

var _ CostsRepo = (*PostgresCostsRepo)(nil)

func (r *PostgresCostsRepo) Append(ctx context.Context, e domain.CostEntry) error {
	query := `
		INSERT INTO cost_entries (entry_id, batch_id, stage_id, cost_type, amount, source_ref, auto_generated, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		e.EntryID, e.BatchID, e.StageID, e.CostType, e.Amount, e.SourceRef, e.Auto, e.Timestamp,
	)
	if err != nil {
		return &domain.DurabilityError{Op: "append cost entry", Err: err}
	}
	return nil
}

func (r *PostgresCostsRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.CostEntry, error) {
	query := `
		SELECT entry_id, batch_id, stage_id, cost_type, amount, source_ref, auto_generated, ts
		FROM cost_entries
		WHERE batch_id = $1
		ORDER BY ts ASC, entry_id ASC`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cost entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CostEntry
	for rows.Next() {
		var e domain.CostEntry
		if err := rows.Scan(
			&e.EntryID, &e.BatchID, &e.StageID, &e.CostType, &e.Amount, &e.SourceRef, &e.Auto, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cost entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresCostsRepo) HasExplicitOverhead(ctx context.Context, batchID, stageID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM cost_entries
			WHERE batch_id = $1 AND stage_id = $2 AND cost_type = 'overhead' AND auto_generated = false
		)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, batchID, stageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check explicit overhead: %w", err)
	}
	return exists, nil
}

// PostgresMachineEventsRepo 机台事件日志实现（追加写入）
type PostgresMachineEventsRepo struct {
	db *sql.DB
}

// NewPostgresMachineEventsRepo 创建机台事件日志
func NewPostgresMachineEventsRepo(db *sql.DB) *PostgresMachineEventsRepo {
	return &PostgresMachineEventsRepo{db: db}
}

var _ MachineEventsRepo = (*PostgresMachineEventsRepo)(nil)

func (r *PostgresMachineEventsRepo) Append(ctx context.Context, ev domain.MachineEvent) error {
	query := `
		INSERT INTO machine_events
			(event_id, machine_id, event_type, minutes, units_produced, units_good, units_scrap, shift, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		ev.EventID, ev.MachineID, ev.EventType, ev.Minutes,
		ev.UnitsProduced, ev.UnitsGood, ev.UnitsScrap, ev.Shift, ev.Timestamp,
	)
	if err != nil {
		return &domain.DurabilityError{Op: "append machine event", Err: err}
	}
	return nil
}

func (r *PostgresMachineEventsRepo) ListByWindow(ctx context.Context, machineID string, start, end time.Time) ([]domain.MachineEvent, error) {
	query := `
		SELECT event_id, machine_id, event_type, minutes, units_produced, units_good, units_scrap, shift, ts
		FROM machine_events
		WHERE machine_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`

	rows, err := r.db.QueryContext(ctx, query, machineID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list machine events: %w", err)
	}
	defer rows.Close()

	var events []domain.MachineEvent
	for rows.Next() {
		var ev domain.MachineEvent
		if err := rows.Scan(
			&ev.EventID, &ev.MachineID, &ev.EventType, &ev.Minutes,
			&ev.UnitsProduced, &ev.UnitsGood, &ev.UnitsScrap, &ev.Shift, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan machine event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
