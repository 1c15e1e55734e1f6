package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shopfloor/internal/alerting"
	"shopfloor/internal/costing"
	"shopfloor/internal/domain"
	"shopfloor/internal/repository"
	"shopfloor/internal/store"
	"shopfloor/internal/trace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*Router, *repository.MemoryAlertsRepo) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	batches := repository.NewMemoryBatchesRepo()
	routings := repository.NewMemoryRoutingsRepo()
	transitions := repository.NewMemoryTransitionsRepo()
	costs := repository.NewMemoryCostsRepo()
	alerts := repository.NewMemoryAlertsRepo()

	require.NoError(t, routings.CreateRouting(ctx, &domain.Routing{
		RoutingID: "rt-1", Name: "gear assembly",
		Stages: []domain.ProductionStage{
			{StageID: "st-1", RoutingID: "rt-1", Name: "cutting", Seq: 1},
			{StageID: "st-2", RoutingID: "rt-1", Name: "qa", Seq: 2},
		},
	}))
	require.NoError(t, batches.Create(ctx, &domain.WIPBatch{
		BatchID: "BT-1", WorkOrderRef: "WO-1", RoutingID: "rt-1",
		CurrentStageID: "st-1", QtyStarted: 50,
		Status: domain.BatchOpen, StartedAt: time.Now().UTC(),
		CostMaterial: 100,
	}))

	writer := repository.NewMemoryBatchWriter(transitions, costs, batches)
	acc := costing.NewAccumulator(costs, batches, routings, writer, costing.Policy{}, logger)
	index := trace.NewIndex(batches, transitions, costs, store.NewMemoryKV(), time.Second, logger)
	eval := alerting.NewEvaluator(alerts, nil, nil, logger)

	r := NewRouter(logger)
	r.RegisterHealthRoutes()
	r.RegisterBatchRoutes(NewBatchHandler(batches, acc, index, logger))
	r.RegisterAlertRoutes(NewAlertHandler(alerts, eval, logger))
	return r, alerts
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetBatch(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/floor/api/v1/batches/BT-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res Result[batchView]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "BT-1", res.Result.BatchID)
	assert.Equal(t, 50, res.Result.InProcessQty)
	assert.InDelta(t, 100, res.Result.Costs.Total, 1e-9)
}

func TestGetBatchNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/floor/api/v1/batches/BT-404", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchMethodNotAllowed(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/floor/api/v1/batches/BT-1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAlertActions(t *testing.T) {
	r, alerts := newTestRouter(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, alerts.Create(ctx, &domain.Alert{
		AlertID: "al-1", MachineID: "M-01", AlertType: "oee_low",
		Severity: domain.SeverityHigh, Threshold: 0.6, Observed: 0.5,
		Status: domain.AlertActive, TriggeredAt: now, UpdatedAt: now,
	}))

	// actor 缺失 → 400
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/floor/api/v1/alerts/al-1/acknowledge", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/floor/api/v1/alerts/al-1/acknowledge", strings.NewReader(`{"actor":"op-7"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/floor/api/v1/alerts/al-1/resolve", strings.NewReader(`{"actor":"op-7"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	// 已解除报警再确认 → 409
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/floor/api/v1/alerts/al-1/acknowledge", strings.NewReader(`{"actor":"op-7"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/floor/api/v1/alerts?status=resolved", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res Result[[]domain.Alert]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Result, 1)
	assert.Equal(t, "al-1", res.Result[0].AlertID)
}
