package repository

import (
	"context"
	"database/sql"
	"fmt"

	"shopfloor/internal/domain"
)

// PostgresRoutingsRepo 工艺路线仓库实现
type PostgresRoutingsRepo struct {
	db *sql.DB
}

// NewPostgresRoutingsRepo 创建工艺路线仓库
func NewPostgresRoutingsRepo(db *sql.DB) *PostgresRoutingsRepo {
	return &PostgresRoutingsRepo{db: db}
}

var _ RoutingsRepo = (*PostgresRoutingsRepo)(nil)

func (r *PostgresRoutingsRepo) GetRouting(ctx context.Context, routingID string) (*domain.Routing, error) {
	query := `SELECT routing_id, name FROM routings WHERE routing_id = $1`

	var routing domain.Routing
	err := r.db.QueryRowContext(ctx, query, routingID).Scan(&routing.RoutingID, &routing.Name)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFound("routing", routingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get routing: %w", err)
	}

	stages, err := r.listStages(ctx, routingID)
	if err != nil {
		return nil, err
	}
	routing.Stages = stages
	return &routing, nil
}

func (r *PostgresRoutingsRepo) listStages(ctx context.Context, routingID string) ([]domain.ProductionStage, error) {
	query := `
		SELECT stage_id, routing_id, name, seq, rework_predecessor_id
		FROM production_stages
		WHERE routing_id = $1
		ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, routingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []domain.ProductionStage
	for rows.Next() {
		var s domain.ProductionStage
		var rework sql.NullString
		if err := rows.Scan(&s.StageID, &s.RoutingID, &s.Name, &s.Seq, &rework); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		if rework.Valid {
			s.ReworkPredecessorID = &rework.String
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func (r *PostgresRoutingsRepo) ListRoutings(ctx context.Context) ([]domain.Routing, error) {
	query := `SELECT routing_id, name FROM routings ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list routings: %w", err)
	}
	defer rows.Close()

	var routings []domain.Routing
	for rows.Next() {
		var routing domain.Routing
		if err := rows.Scan(&routing.RoutingID, &routing.Name); err != nil {
			return nil, fmt.Errorf("failed to scan routing: %w", err)
		}
		routings = append(routings, routing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range routings {
		stages, err := r.listStages(ctx, routings[i].RoutingID)
		if err != nil {
			return nil, err
		}
		routings[i].Stages = stages
	}
	return routings, nil
}

func (r *PostgresRoutingsRepo) CreateRouting(ctx context.Context, routing *domain.Routing) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO routings (routing_id, name) VALUES ($1, $2)`,
		routing.RoutingID, routing.Name,
	); err != nil {
		return fmt.Errorf("failed to insert routing: %w", err)
	}

	for _, s := range routing.Stages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO production_stages (stage_id, routing_id, name, seq, rework_predecessor_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.StageID, routing.RoutingID, s.Name, s.Seq, s.ReworkPredecessorID,
		); err != nil {
			return fmt.Errorf("failed to insert stage: %w", err)
		}
	}

	return tx.Commit()
}
