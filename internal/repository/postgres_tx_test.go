package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopfloor/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransition() (domain.StageTransitionEvent, *domain.WIPBatch) {
	ev := domain.StageTransitionEvent{
		EventID: "ev-1", BatchID: "BT-1", FromStageID: "st-1", ToStageID: "st-2",
		QtyGood: 95, QtyRejected: 5, Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	b := &domain.WIPBatch{
		BatchID: "BT-1", WorkOrderRef: "WO-1", RoutingID: "rt-1",
		CurrentStageID: "st-2", QtyStarted: 100, QtyRejected: 5,
		Status: domain.BatchInProgress, StartedAt: ev.Timestamp.Add(-time.Hour),
	}
	return ev, b
}

func TestPostgresBatchWriterApplyTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ev, b := sampleTransition()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO stage_transition_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wip_batches SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := NewPostgresBatchWriter(db)
	require.NoError(t, w.ApplyTransition(context.Background(), ev, b))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchWriterRollsBackOnUpdateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ev, b := sampleTransition()

	// 快照更新失败：事件追加随事务一起回滚，日志与快照不会分叉
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO stage_transition_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wip_batches SET").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	w := NewPostgresBatchWriter(db)
	err = w.ApplyTransition(context.Background(), ev, b)
	require.Error(t, err)
	assert.True(t, domain.IsDurability(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchWriterApplyTransitionBatchMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ev, b := sampleTransition()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO stage_transition_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wip_batches SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	w := NewPostgresBatchWriter(db)
	err = w.ApplyTransition(context.Background(), ev, b)
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchWriterApplyCost(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := domain.CostEntry{
		EntryID: "c-1", BatchID: "BT-1", StageID: "st-1",
		CostType: domain.CostMaterial, Amount: 120, SourceRef: "PO-7",
		Timestamp: time.Now().UTC(),
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cost_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wip_batches SET cost_material").
		WithArgs("BT-1", 120.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := NewPostgresBatchWriter(db)
	require.NoError(t, w.ApplyCost(context.Background(), e))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchWriterApplyCostRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := domain.CostEntry{
		EntryID: "c-1", BatchID: "BT-1", StageID: "st-1",
		CostType: domain.CostLabor, Amount: 60, Timestamp: time.Now().UTC(),
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cost_entries").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	w := NewPostgresBatchWriter(db)
	err = w.ApplyCost(context.Background(), e)
	require.Error(t, err)
	assert.True(t, domain.IsDurability(err))

	require.NoError(t, mock.ExpectationsWereMet())
}
