package services

import (
	"context"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/pkg/batch"
)

// BatchedMetricsService wraps MetricsService so high-frequency hub and
// handler paths enqueue instead of taking the metrics lock per event.
// Reads bypass the batcher and may trail pending updates by one flush
// interval.
type BatchedMetricsService struct {
	base    *MetricsService
	batcher *batch.Batcher
}

// metricsOp defers one recorder call until the batch flushes.
type metricsOp struct {
	apply func()
}

func (op *metricsOp) Execute(ctx context.Context) error {
	op.apply()
	return nil
}

type metricsBatchProcessor struct{}

func (p *metricsBatchProcessor) ProcessBatch(ctx context.Context, operations []batch.Operation) error {
	for _, op := range operations {
		_ = op.Execute(ctx)
	}
	return nil
}

func NewBatchedMetricsService(base *MetricsService, batchSize int, batchInterval time.Duration) *BatchedMetricsService {
	return &BatchedMetricsService{
		base:    base,
		batcher: batch.NewBatcher(batchSize, batchInterval, &metricsBatchProcessor{}),
	}
}

func (b *BatchedMetricsService) RecordEvent(room domain.RoomID, typ domain.EventType) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.RecordEvent(room, typ) }})
}

func (b *BatchedMetricsService) RecordBroadcast(room domain.RoomID, receivers int) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.RecordBroadcast(room, receivers) }})
}

func (b *BatchedMetricsService) RecordSignal(session domain.SessionID, kind domain.SignalKind) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.RecordSignal(session, kind) }})
}

func (b *BatchedMetricsService) RecordFetch(session domain.SessionID, count int) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.RecordFetch(session, count) }})
}

func (b *BatchedMetricsService) RecordLinkQuality(q domain.LinkQuality) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.RecordLinkQuality(q) }})
}

func (b *BatchedMetricsService) SetRoomParticipants(room domain.RoomID, count int) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.SetRoomParticipants(room, count) }})
}

func (b *BatchedMetricsService) SetSessionViewers(session domain.SessionID, count int) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.SetSessionViewers(session, count) }})
}

func (b *BatchedMetricsService) SetLiveSessions(count int) {
	b.batcher.Add(&metricsOp{apply: func() { b.base.SetLiveSessions(count) }})
}

// GetRoomMetrics reads the base service directly.
func (b *BatchedMetricsService) GetRoomMetrics(room domain.RoomID) *domain.RoomMetrics {
	return b.base.GetRoomMetrics(room)
}

// GetSessionMetrics reads the base service directly.
func (b *BatchedMetricsService) GetSessionMetrics(session domain.SessionID) *domain.SessionMetrics {
	return b.base.GetSessionMetrics(session)
}

// GetLinkQuality reads the base service directly.
func (b *BatchedMetricsService) GetLinkQuality(session domain.SessionID) (domain.LinkQuality, bool) {
	return b.base.GetLinkQuality(session)
}

// Flush applies all pending operations now.
func (b *BatchedMetricsService) Flush(ctx context.Context) error {
	return b.batcher.Flush(ctx)
}

// Stop flushes and stops the batcher.
func (b *BatchedMetricsService) Stop() {
	b.batcher.Stop()
}
