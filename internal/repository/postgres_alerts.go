package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"shopfloor/internal/domain"
)

// PostgresAlertsRepo 报警仓库实现
type PostgresAlertsRepo struct {
	db *sql.DB
}

// NewPostgresAlertsRepo 创建报警仓库
func NewPostgresAlertsRepo(db *sql.DB) *PostgresAlertsRepo {
	return &PostgresAlertsRepo{db: db}
}

var _ AlertsRepo = (*PostgresAlertsRepo)(nil)

const alertColumns = `alert_id, machine_id, stage_id, alert_type, severity, threshold, observed,
	status, acknowledged_by, acknowledged_at, resolved_by, resolved_at, triggered_at, updated_at`

func scanAlert(row interface{ Scan(...interface{}) error }) (*domain.Alert, error) {
	var a domain.Alert
	var ackBy, resBy sql.NullString
	var ackAt, resAt sql.NullTime
	err := row.Scan(
		&a.AlertID, &a.MachineID, &a.StageID, &a.AlertType, &a.Severity, &a.Threshold, &a.Observed,
		&a.Status, &ackBy, &ackAt, &resBy, &resAt, &a.TriggeredAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ackBy.Valid {
		a.AcknowledgedBy = &ackBy.String
	}
	if ackAt.Valid {
		a.AcknowledgedAt = &ackAt.Time
	}
	if resBy.Valid {
		a.ResolvedBy = &resBy.String
	}
	if resAt.Valid {
		a.ResolvedAt = &resAt.Time
	}
	return &a, nil
}

func (r *PostgresAlertsRepo) Create(ctx context.Context, a *domain.Alert) error {
	query := `
		INSERT INTO alerts (alert_id, machine_id, stage_id, alert_type, severity, threshold, observed,
			status, acknowledged_by, acknowledged_at, resolved_by, resolved_at, triggered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		a.AlertID, a.MachineID, a.StageID, a.AlertType, a.Severity, a.Threshold, a.Observed,
		a.Status, a.AcknowledgedBy, a.AcknowledgedAt, a.ResolvedBy, a.ResolvedAt, a.TriggeredAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *PostgresAlertsRepo) Get(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE alert_id = $1`, alertColumns)

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFound("alert", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

func (r *PostgresAlertsRepo) Update(ctx context.Context, a *domain.Alert) error {
	query := `
		UPDATE alerts SET
			status = $2, acknowledged_by = $3, acknowledged_at = $4,
			resolved_by = $5, resolved_at = $6, updated_at = $7
		WHERE alert_id = $1`

	res, err := r.db.ExecContext(ctx, query,
		a.AlertID, a.Status, a.AcknowledgedBy, a.AcknowledgedAt,
		a.ResolvedBy, a.ResolvedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound("alert", a.AlertID)
	}
	return nil
}

func (r *PostgresAlertsRepo) List(ctx context.Context, f AlertFilters) ([]domain.Alert, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argN := 1

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, f.Status)
		argN++
	}
	if f.MachineID != "" {
		where = append(where, fmt.Sprintf("machine_id = $%d", argN))
		args = append(args, f.MachineID)
		argN++
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE %s ORDER BY triggered_at DESC LIMIT %d`,
		alertColumns, strings.Join(where, " AND "), limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (r *PostgresAlertsRepo) FindOpen(ctx context.Context, machineID, alertType string) (*domain.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alerts
		WHERE machine_id = $1 AND alert_type = $2 AND status IN ('active', 'acknowledged')
		ORDER BY triggered_at DESC
		LIMIT 1`, alertColumns)

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, machineID, alertType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open alert: %w", err)
	}
	return a, nil
}
