package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"shopfloor/internal/costing"
	"shopfloor/internal/domain"
	"shopfloor/internal/repository"
	"shopfloor/internal/trace"

	"go.uber.org/zap"
)

// BatchHandler 批次查询、成本汇总与追溯
type BatchHandler struct {
	batches     repository.BatchesRepo
	accumulator *costing.Accumulator
	index       *trace.Index
	logger      *zap.Logger
}

// NewBatchHandler 创建批次处理器
func NewBatchHandler(
	batches repository.BatchesRepo,
	accumulator *costing.Accumulator,
	index *trace.Index,
	logger *zap.Logger,
) *BatchHandler {
	return &BatchHandler{
		batches:     batches,
		accumulator: accumulator,
		index:       index,
		logger:      logger,
	}
}

// batchView 批次详情（含派生在制数量与成本汇总）
type batchView struct {
	*domain.WIPBatch
	InProcessQty int            `json:"in_process_qty"`
	Costs        costing.Totals `json:"costs"`
}

// Get GET /floor/api/v1/batches/{id}
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request, batchID string) {
	b, err := h.batches.Get(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	totals, err := h.accumulator.TotalWIPValue(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(batchView{
		WIPBatch:     b,
		InProcessQty: b.InProcess(),
		Costs:        totals,
	}))
}

// Trace GET /floor/api/v1/batches/{id}/trace
func (h *BatchHandler) Trace(w http.ResponseWriter, r *http.Request, batchID string) {
	res, err := h.index.Trace(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// ExportTrace GET /floor/api/v1/batches/{id}/trace/export
// 导出批次追溯 Excel（质量审计用）
func (h *BatchHandler) ExportTrace(w http.ResponseWriter, r *http.Request, batchID string) {
	res, err := h.index.Trace(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data, err := GenerateTraceExport(res)
	if err != nil {
		h.logger.Error("Failed to generate trace export",
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("trace_%s_%s.xlsx", batchID, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
