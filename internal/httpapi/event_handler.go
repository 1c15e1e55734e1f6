package httpapi

import (
	"net/http"

	"shopfloor/internal/ingest"

	"go.uber.org/zap"
)

// EventHandler 生产事件提交入口（网关/终端直接 HTTP 提交时走这里，
// 与 MQTT / Redis Stream 路径共用同一个摄入器与幂等键空间）
type EventHandler struct {
	ingestor *ingest.Ingestor
	logger   *zap.Logger
}

// NewEventHandler 创建事件提交处理器
func NewEventHandler(ingestor *ingest.Ingestor, logger *zap.Logger) *EventHandler {
	return &EventHandler{ingestor: ingestor, logger: logger}
}

// Submit POST /floor/api/v1/events
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var ev ingest.Event
	if err := readBodyJSON(r, 1<<20, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	res, err := h.ingestor.Process(r.Context(), ev)
	if err != nil {
		h.logger.Debug("Event rejected",
			zap.String("idempotency_key", ev.IdempotencyKey),
			zap.String("reason", res.Reason),
		)
		writeDomainError(w, err)
		return
	}

	status := http.StatusAccepted
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, Ok(res))
}
