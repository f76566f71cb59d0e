package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

var ErrTrainingInProgress = errors.New("a training job of this type is already in progress")

// Locks expire on their own so a crashed trainer cannot wedge its job type.
const trainingLockTTL = 2 * time.Hour

// TrainFunc performs one training run, reporting progress as it goes.
type TrainFunc func(ctx context.Context, report func(progress float64, message string)) error

// Runner executes training jobs asynchronously. At most one job per type runs
// at a time, enforced through a Redis lock so the guarantee holds across
// processes.
type Runner struct {
	tracker *Tracker
	client  rueidis.Client
	logger  *zap.Logger
}

// NewRunner creates a training job runner.
func NewRunner(tracker *Tracker, client rueidis.Client, logger *zap.Logger) *Runner {
	return &Runner{
		tracker: tracker,
		client:  client,
		logger:  logger.Named("runner"),
	}
}

// Run queues a training job and starts it in the background. The returned job
// is in the queued state; callers poll the tracker for progress. If a job of
// the same type is already running, no job is created.
func (r *Runner) Run(ctx context.Context, jobType string, train TrainFunc) (*Job, error) {
	job, err := r.tracker.Create(ctx, jobType)
	if err != nil {
		return nil, err
	}

	acquired, err := r.acquireLock(ctx, jobType, job.ID)
	if err != nil {
		return nil, err
	}

	if !acquired {
		if err := r.tracker.MarkFailed(ctx, job.ID, ErrTrainingInProgress); err != nil {
			r.logger.Error("Failed to mark rejected job", zap.Error(err))
		}

		return nil, fmt.Errorf("%w: %s", ErrTrainingInProgress, jobType)
	}

	// The job must outlive the request that triggered it
	runCtx := context.WithoutCancel(ctx)

	go r.execute(runCtx, job, train)

	return job, nil
}

func (r *Runner) execute(ctx context.Context, job *Job, train TrainFunc) {
	defer r.releaseLock(ctx, job.Type)

	logger := r.logger.With(zap.String("jobID", job.ID), zap.String("type", job.Type))

	if err := r.tracker.MarkRunning(ctx, job.ID); err != nil {
		logger.Error("Failed to mark job running", zap.Error(err))
		return
	}

	report := func(progress float64, message string) {
		if err := r.tracker.UpdateProgress(ctx, job.ID, progress, message); err != nil {
			logger.Warn("Failed to record job progress", zap.Error(err))
		}
	}

	start := time.Now()

	if err := train(ctx, report); err != nil {
		logger.Error("Training job failed", zap.Error(err))

		if markErr := r.tracker.MarkFailed(ctx, job.ID, err); markErr != nil {
			logger.Error("Failed to mark job failed", zap.Error(markErr))
		}

		return
	}

	if err := r.tracker.MarkCompleted(ctx, job.ID, "training completed"); err != nil {
		logger.Error("Failed to mark job completed", zap.Error(err))
		return
	}

	logger.Info("Training job completed", zap.Duration("duration", time.Since(start)))
}

func (r *Runner) acquireLock(ctx context.Context, jobType, jobID string) (bool, error) {
	resp := r.client.Do(ctx, r.client.B().
		Set().Key(lockKey(jobType)).Value(jobID).
		Nx().Ex(trainingLockTTL).Build())

	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to acquire training lock: %w", err)
	}

	return true, nil
}

func (r *Runner) releaseLock(ctx context.Context, jobType string) {
	if err := r.client.Do(ctx, r.client.B().Del().Key(lockKey(jobType)).Build()).Error(); err != nil {
		r.logger.Error("Failed to release training lock",
			zap.String("type", jobType), zap.Error(err))
	}
}

func lockKey(jobType string) string {
	return "training_lock:" + jobType
}
