package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"shopfloor/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"batch_id", "work_order_ref", "routing_id", "current_stage_id",
		"qty_started", "qty_completed", "qty_rejected", "status",
		"cost_material", "cost_labor", "cost_overhead", "started_at", "completed_at",
	})
}

func TestPostgresBatchesGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM wip_batches WHERE batch_id = $1")).
		WithArgs("BT-1").
		WillReturnRows(batchRows().AddRow(
			"BT-1", "WO-1", "rt-1", "st-2",
			100, 0, 5, "in_progress",
			120.5, 80.0, 30.0, started, nil,
		))

	repo := NewPostgresBatchesRepo(db)
	b, err := repo.Get(context.Background(), "BT-1")
	require.NoError(t, err)
	assert.Equal(t, "st-2", b.CurrentStageID)
	assert.Equal(t, 95, b.InProcess())
	assert.InDelta(t, 230.5, b.TotalCost(), 1e-9)
	assert.Nil(t, b.CompletedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchesGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM wip_batches WHERE batch_id = $1")).
		WithArgs("BT-404").
		WillReturnRows(batchRows())

	repo := NewPostgresBatchesRepo(db)
	_, err = repo.Get(context.Background(), "BT-404")
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchesAddCost(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 成本累加是列级原子更新，与数量写入方互不覆盖
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wip_batches SET cost_material = cost_material + $2 WHERE batch_id = $1")).
		WithArgs("BT-1", 99.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresBatchesRepo(db)
	require.NoError(t, repo.AddCost(context.Background(), "BT-1", domain.CostMaterial, 99.5))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchesUpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE wip_batches SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresBatchesRepo(db)
	err = repo.Update(context.Background(), &domain.WIPBatch{BatchID: "BT-404"})
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionsAppendDurabilityError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO stage_transition_events").
		WillReturnError(errors.New("connection reset"))

	repo := NewPostgresTransitionsRepo(db)
	err = repo.Append(context.Background(), domain.StageTransitionEvent{
		EventID: "ev-1", BatchID: "BT-1", FromStageID: "st-1", ToStageID: "st-2",
		QtyGood: 10, Timestamp: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.True(t, domain.IsDurability(err))

	require.NoError(t, mock.ExpectationsWereMet())
}
