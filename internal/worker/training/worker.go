package training

import (
	"context"
	"errors"
	"time"

	"github.com/unibazzar/ai-service/internal/jobs"
	"github.com/unibazzar/ai-service/internal/worker/core"
	"go.uber.org/zap"
)

const (
	// auditRetention is how long moderation audit records are kept.
	auditRetention = 90 * 24 * time.Hour

	// auditPurgeInterval is how often the retention pass runs.
	auditPurgeInterval = 24 * time.Hour
)

// AuditLog is the retention surface for the moderation audit log.
type AuditLog interface {
	PurgeOld(ctx context.Context, cutoff time.Time) error
}

// Worker runs the training pipelines on a schedule, prunes the moderation
// audit log past its retention window, and watches the worker fleet for
// stalled heartbeats. Manual triggers through the services share the same
// per-type locks, so a scheduled run quietly skips a cycle when a manual job
// is already in flight.
type Worker struct {
	runner          *jobs.Runner
	reporter        *core.StatusReporter
	monitor         *core.Monitor
	audit           AuditLog
	reembed         jobs.TrainFunc
	retrain         jobs.TrainFunc
	reembedInterval time.Duration
	retrainInterval time.Duration
	logger          *zap.Logger
}

// New creates a scheduled training worker.
func New(
	runner *jobs.Runner, reporter *core.StatusReporter,
	monitor *core.Monitor, audit AuditLog,
	reembed, retrain jobs.TrainFunc,
	reembedInterval, retrainInterval time.Duration,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		runner:          runner,
		reporter:        reporter,
		monitor:         monitor,
		audit:           audit,
		reembed:         reembed,
		retrain:         retrain,
		reembedInterval: reembedInterval,
		retrainInterval: retrainInterval,
		logger:          logger,
	}
}

// Start begins the training worker's main loop. It blocks until the context
// is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Training worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	// Catch up on retention immediately in case the worker was down past a
	// purge cycle
	w.purgeAudit(ctx)

	reembedTicker := time.NewTicker(w.reembedInterval)
	defer reembedTicker.Stop()

	retrainTicker := time.NewTicker(w.retrainInterval)
	defer retrainTicker.Stop()

	purgeTicker := time.NewTicker(auditPurgeInterval)
	defer purgeTicker.Stop()

	healthTicker := time.NewTicker(core.StaleThreshold)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Training worker stopped")
			return
		case <-reembedTicker.C:
			w.trigger(ctx, jobs.TypeEmbedding, w.reembed)
		case <-retrainTicker.C:
			w.trigger(ctx, jobs.TypeCollaborative, w.retrain)
		case <-purgeTicker.C:
			w.purgeAudit(ctx)
		case <-healthTicker.C:
			w.checkWorkerHealth(ctx)
		}
	}
}

func (w *Worker) trigger(ctx context.Context, jobType string, train jobs.TrainFunc) {
	w.reporter.SetHealthy(true)
	w.reporter.UpdateStatus("Triggering "+jobType+" training", 0)

	job, err := w.runner.Run(ctx, jobType, train)
	if err != nil {
		if errors.Is(err, jobs.ErrTrainingInProgress) {
			w.logger.Info("Skipping scheduled training, job already running",
				zap.String("type", jobType))

			return
		}

		w.logger.Error("Failed to trigger scheduled training",
			zap.String("type", jobType),
			zap.Error(err))
		w.reporter.SetHealthy(false)

		return
	}

	w.reporter.UpdateStatus("Queued "+jobType+" training", 100)
	w.logger.Info("Scheduled training queued",
		zap.String("type", jobType),
		zap.String("jobID", job.ID))
}

// purgeAudit drops moderation audit records past the retention window.
func (w *Worker) purgeAudit(ctx context.Context) {
	if err := w.audit.PurgeOld(ctx, time.Now().UTC().Add(-auditRetention)); err != nil {
		w.logger.Error("Failed to purge old audit records", zap.Error(err))
	}
}

// checkWorkerHealth logs workers that stopped heartbeating.
func (w *Worker) checkWorkerHealth(ctx context.Context) {
	stale, err := w.monitor.StaleWorkers(ctx)
	if err != nil {
		w.logger.Error("Failed to check worker statuses", zap.Error(err))
		return
	}

	for _, status := range stale {
		w.logger.Warn("Worker heartbeat is stale",
			zap.String("workerID", status.WorkerID),
			zap.String("workerType", status.WorkerType),
			zap.Time("lastSeen", status.LastSeen))
	}
}
