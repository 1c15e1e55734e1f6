package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shopfloor/internal/domain"
)

// PostgresMachinesRepo 机台仓库实现
type PostgresMachinesRepo struct {
	db *sql.DB
}

// NewPostgresMachinesRepo 创建机台仓库
func NewPostgresMachinesRepo(db *sql.DB) *PostgresMachinesRepo {
	return &PostgresMachinesRepo{db: db}
}

// 确保实现了接口
var _ MachinesRepo = (*PostgresMachinesRepo)(nil)

const machineColumns = `machine_id, code, name, status, ideal_cycle_time_hours, scheduled_hours_per_day, updated_at`

func scanMachine(row interface{ Scan(...interface{}) error }) (*domain.Machine, error) {
	var m domain.Machine
	err := row.Scan(
		&m.MachineID, &m.Code, &m.Name, &m.Status,
		&m.IdealCycleTimeHours, &m.ScheduledHoursPerDay, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresMachinesRepo) Get(ctx context.Context, machineID string) (*domain.Machine, error) {
	query := fmt.Sprintf(`SELECT %s FROM machines WHERE machine_id = $1`, machineColumns)

	m, err := scanMachine(r.db.QueryRowContext(ctx, query, machineID))
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFound("machine", machineID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get machine: %w", err)
	}
	return m, nil
}

func (r *PostgresMachinesRepo) List(ctx context.Context) ([]domain.Machine, error) {
	query := fmt.Sprintf(`SELECT %s FROM machines ORDER BY code`, machineColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	defer rows.Close()

	var machines []domain.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, *m)
	}
	return machines, rows.Err()
}

func (r *PostgresMachinesRepo) Create(ctx context.Context, m *domain.Machine) error {
	query := `
		INSERT INTO machines (machine_id, code, name, status, ideal_cycle_time_hours, scheduled_hours_per_day, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		m.MachineID, m.Code, m.Name, m.Status,
		m.IdealCycleTimeHours, m.ScheduledHoursPerDay, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create machine: %w", err)
	}
	return nil
}

func (r *PostgresMachinesRepo) UpdateStatus(ctx context.Context, machineID, status string, at time.Time) error {
	query := `UPDATE machines SET status = $2, updated_at = $3 WHERE machine_id = $1`

	res, err := r.db.ExecContext(ctx, query, machineID, status, at)
	if err != nil {
		return fmt.Errorf("failed to update machine status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound("machine", machineID)
	}
	return nil
}
