package moderation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/unibazzar/ai-service/internal/database/types"
	"go.uber.org/zap"
)

// AuditStore is the persistence surface for the moderation audit log.
type AuditStore interface {
	Append(ctx context.Context, record *types.ModerationRecord) error
}

// auditWriter persists audit records from a bounded queue so moderation
// verdicts never wait on the database. When the queue is full, records are
// dropped and counted rather than blocking the caller.
type auditWriter struct {
	store   AuditStore
	queue   chan *types.ModerationRecord
	dropped atomic.Int64
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func newAuditWriter(store AuditStore, bufferSize int, logger *zap.Logger) *auditWriter {
	w := &auditWriter{
		store:  store,
		queue:  make(chan *types.ModerationRecord, bufferSize),
		logger: logger.Named("audit"),
	}

	w.wg.Add(1)

	go w.drain()

	return w
}

// enqueue hands a record to the writer without blocking.
func (w *auditWriter) enqueue(record *types.ModerationRecord) {
	select {
	case w.queue <- record:
	default:
		dropped := w.dropped.Add(1)
		w.logger.Warn("Dropped audit record, queue full",
			zap.Int64("contentID", record.ContentID),
			zap.Int64("totalDropped", dropped))
	}
}

// Dropped returns how many records were dropped because the queue was full.
func (w *auditWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops accepting records and waits for the queue to flush.
func (w *auditWriter) Close() {
	close(w.queue)
	w.wg.Wait()
}

func (w *auditWriter) drain() {
	defer w.wg.Done()

	for record := range w.queue {
		if err := w.store.Append(context.Background(), record); err != nil {
			w.logger.Error("Failed to persist audit record",
				zap.Int64("contentID", record.ContentID),
				zap.Error(err))
		}
	}
}
