package httpapi

import (
	"net/http"

	"shopfloor/internal/alerting"
	"shopfloor/internal/repository"

	"go.uber.org/zap"
)

// AlertHandler 报警查询与操作员动作
type AlertHandler struct {
	alerts    repository.AlertsRepo
	evaluator *alerting.Evaluator
	logger    *zap.Logger
}

// NewAlertHandler 创建报警处理器
func NewAlertHandler(alerts repository.AlertsRepo, evaluator *alerting.Evaluator, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, evaluator: evaluator, logger: logger}
}

// List GET /floor/api/v1/alerts?status=&machine_id=&limit=
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := repository.AlertFilters{
		Status:    q.Get("status"),
		MachineID: q.Get("machine_id"),
		Limit:     parseInt(q.Get("limit"), 100),
	}

	alerts, err := h.alerts.List(r.Context(), filters)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

// actionRequest 操作员动作请求体
type actionRequest struct {
	Actor string `json:"actor"`
}

// Acknowledge POST /floor/api/v1/alerts/{id}/acknowledge
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request, alertID string) {
	var req actionRequest
	if err := readBodyJSON(r, 64<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, Fail("actor is required"))
		return
	}

	a, err := h.evaluator.Acknowledge(r.Context(), alertID, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(a))
}

// Resolve POST /floor/api/v1/alerts/{id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request, alertID string) {
	var req actionRequest
	if err := readBodyJSON(r, 64<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, Fail("actor is required"))
		return
	}

	a, err := h.evaluator.Resolve(r.Context(), alertID, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(a))
}
