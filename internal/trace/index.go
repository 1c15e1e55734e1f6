package trace

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"
	"shopfloor/internal/store"

	"go.uber.org/zap"
)

// Record 追溯记录（流转或成本，按时间升序合并）
type Record struct {
	Kind       string                       `json:"kind"` // "transition" / "cost"
	Timestamp  time.Time                    `json:"timestamp"`
	Transition *domain.StageTransitionEvent `json:"transition,omitempty"`
	Cost       *domain.CostEntry            `json:"cost,omitempty"`
}

// ShiftRecord 批次经过的生产班次汇总
type ShiftRecord struct {
	Shift      string    `json:"shift"`
	MachineID  string    `json:"machine_id"`
	OperatorID string    `json:"operator_id"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// Result 批次完整追溯结果
type Result struct {
	BatchID string        `json:"batch_id"`
	Records []Record      `json:"records"`
	Shifts  []ShiftRecord `json:"shifts"`
}

// Index 追溯索引。
// 对追加日志的纯读取；结果只做短 TTL 缓存，
// 因为 in_progress 批次的底层日志仍可能收到新条目。
type Index struct {
	batches     repository.BatchesRepo
	transitions repository.TransitionsRepo
	costs       repository.CostsRepo
	cache       store.KV
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewIndex 创建追溯索引
func NewIndex(
	batches repository.BatchesRepo,
	transitions repository.TransitionsRepo,
	costs repository.CostsRepo,
	cache store.KV,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Index {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	return &Index{
		batches:     batches,
		transitions: transitions,
		costs:       costs,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// Trace 返回批次的完整有序事件历史
func (ix *Index) Trace(ctx context.Context, batchID string) (*Result, error) {
	cacheKey := "shopfloor:trace:" + batchID
	if ix.cache != nil {
		if cached, err := ix.cache.Get(ctx, cacheKey); err == nil {
			var res Result
			if err := json.Unmarshal([]byte(cached), &res); err == nil {
				return &res, nil
			}
		}
	}

	if _, err := ix.batches.Get(ctx, batchID); err != nil {
		return nil, err
	}

	transitions, err := ix.transitions.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	costs, err := ix.costs.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	res := &Result{BatchID: batchID}
	for i := range transitions {
		ev := transitions[i]
		res.Records = append(res.Records, Record{
			Kind:       "transition",
			Timestamp:  ev.Timestamp,
			Transition: &ev,
		})
	}
	for i := range costs {
		e := costs[i]
		res.Records = append(res.Records, Record{
			Kind:      "cost",
			Timestamp: e.Timestamp,
			Cost:      &e,
		})
	}
	sort.SliceStable(res.Records, func(i, j int) bool {
		return res.Records[i].Timestamp.Before(res.Records[j].Timestamp)
	})
	res.Shifts = collectShifts(transitions)

	if ix.cache != nil {
		if data, err := json.Marshal(res); err == nil {
			if err := ix.cache.Set(ctx, cacheKey, string(data), ix.cacheTTL); err != nil {
				ix.logger.Warn("Failed to cache trace result",
					zap.String("batch_id", batchID),
					zap.Error(err),
				)
			}
		}
	}
	return res, nil
}

// collectShifts 从流转事件提取 (shift, machine, operator) 汇总
func collectShifts(events []domain.StageTransitionEvent) []ShiftRecord {
	type key struct{ shift, machine, operator string }
	seen := map[key]*ShiftRecord{}
	var order []key
	for _, ev := range events {
		if ev.Shift == "" && ev.MachineID == "" && ev.OperatorID == "" {
			continue
		}
		k := key{ev.Shift, ev.MachineID, ev.OperatorID}
		rec, ok := seen[k]
		if !ok {
			seen[k] = &ShiftRecord{
				Shift:      ev.Shift,
				MachineID:  ev.MachineID,
				OperatorID: ev.OperatorID,
				FirstSeen:  ev.Timestamp,
				LastSeen:   ev.Timestamp,
			}
			order = append(order, k)
			continue
		}
		if ev.Timestamp.Before(rec.FirstSeen) {
			rec.FirstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(rec.LastSeen) {
			rec.LastSeen = ev.Timestamp
		}
	}
	var out []ShiftRecord
	for _, k := range order {
		out = append(out, *seen[k])
	}
	return out
}
