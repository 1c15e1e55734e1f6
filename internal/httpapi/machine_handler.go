package httpapi

import (
	"net/http"
	"time"

	"shopfloor/internal/oee"
	"shopfloor/internal/repository"

	"go.uber.org/zap"
)

// MachineHandler 机台查询与 OEE 聚合
type MachineHandler struct {
	machines repository.MachinesRepo
	oee      *oee.WindowService
	logger   *zap.Logger
}

// NewMachineHandler 创建机台处理器
func NewMachineHandler(machines repository.MachinesRepo, oee *oee.WindowService, logger *zap.Logger) *MachineHandler {
	return &MachineHandler{machines: machines, oee: oee, logger: logger}
}

// List GET /floor/api/v1/machines
func (h *MachineHandler) List(w http.ResponseWriter, r *http.Request) {
	machines, err := h.machines.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(machines))
}

// GetOEE GET /floor/api/v1/machines/{id}/oee?start=...&end=...
// start/end 为 RFC3339；缺省为截止当前的最近 24 小时
func (h *MachineHandler) GetOEE(w http.ResponseWriter, r *http.Request, machineID string) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid start, expected RFC3339"))
			return
		}
		start = t
	}
	if s := r.URL.Query().Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid end, expected RFC3339"))
			return
		}
		end = t
	}

	window, err := h.oee.ComputeWindow(r.Context(), machineID, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(window))
}
