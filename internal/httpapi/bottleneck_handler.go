package httpapi

import (
	"net/http"

	"shopfloor/internal/bottleneck"

	"go.uber.org/zap"
)

// BottleneckHandler 瓶颈扫描查询
type BottleneckHandler struct {
	detector *bottleneck.Detector
	logger   *zap.Logger
}

// NewBottleneckHandler 创建瓶颈处理器
func NewBottleneckHandler(detector *bottleneck.Detector, logger *zap.Logger) *BottleneckHandler {
	return &BottleneckHandler{detector: detector, logger: logger}
}

// Scan GET /floor/api/v1/bottlenecks?routing={routing_id}
func (h *BottleneckHandler) Scan(w http.ResponseWriter, r *http.Request) {
	routingID := r.URL.Query().Get("routing")
	if routingID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("routing query parameter is required"))
		return
	}

	loads, err := h.detector.Scan(r.Context(), routingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(loads))
}
