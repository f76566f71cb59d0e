// Package jobs tracks asynchronous training jobs in Redis so every process
// can answer status queries regardless of which one runs the training.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

var (
	ErrJobNotFound       = errors.New("training job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Job type determines which model family a training job rebuilds.
const (
	TypeEmbedding     = "embedding"
	TypeCollaborative = "collaborative"
)

// Job status values. A job only moves forward: queued to running, running to
// completed or failed.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Completed jobs stay queryable for a day before Redis expires them.
const completedJobTTL = 24 * time.Hour

// statusRank orders statuses so transitions can only move forward.
var statusRank = map[string]int{
	StatusQueued:    0,
	StatusRunning:   1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// Job is the persisted state of one training job. Progress is a completion
// percentage from 0 to 100.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Tracker persists job state in Redis.
type Tracker struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewTracker creates a job tracker on the given Redis client.
func NewTracker(client rueidis.Client, logger *zap.Logger) *Tracker {
	return &Tracker{
		client: client,
		logger: logger.Named("jobs"),
	}
}

// Create persists a new queued job and returns it.
func (t *Tracker) Create(ctx context.Context, jobType string) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    StatusQueued,
		Message:   "queued",
		CreatedAt: time.Now().UTC(),
	}

	if err := t.save(ctx, job, 0); err != nil {
		return nil, err
	}

	t.logger.Info("Created training job",
		zap.String("jobID", job.ID),
		zap.String("type", jobType))

	return job, nil
}

// Get returns the job with the given id.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Job, error) {
	resp := t.client.Do(ctx, t.client.B().Get().Key(jobKey(jobID)).Build())

	data, err := resp.AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}

		return nil, fmt.Errorf("failed to get job state: %w", err)
	}

	var job Job
	if err := sonic.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job state: %w", err)
	}

	return &job, nil
}

// MarkRunning transitions a queued job to running.
func (t *Tracker) MarkRunning(ctx context.Context, jobID string) error {
	return t.transition(ctx, jobID, StatusRunning, func(job *Job) {
		now := time.Now().UTC()
		job.StartedAt = &now
		job.Progress = 0
		job.Message = "training started"
	})
}

// UpdateProgress records training progress, as a percentage from 0 to 100,
// on a running job.
func (t *Tracker) UpdateProgress(ctx context.Context, jobID string, progress float64, message string) error {
	job, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != StatusRunning {
		return fmt.Errorf("%w: progress update on %s job", ErrInvalidTransition, job.Status)
	}

	job.Progress = progress
	job.Message = message

	return t.save(ctx, job, 0)
}

// MarkCompleted transitions a running job to completed.
func (t *Tracker) MarkCompleted(ctx context.Context, jobID, message string) error {
	return t.transition(ctx, jobID, StatusCompleted, func(job *Job) {
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.Progress = 100
		job.Message = message
	})
}

// MarkFailed transitions a job to failed with the training error.
func (t *Tracker) MarkFailed(ctx context.Context, jobID string, trainErr error) error {
	return t.transition(ctx, jobID, StatusFailed, func(job *Job) {
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.Message = "training failed"
		job.Error = trainErr.Error()
	})
}

func (t *Tracker) transition(ctx context.Context, jobID, status string, apply func(*Job)) error {
	job, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if statusRank[status] <= statusRank[job.Status] {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	apply(job)

	var ttl time.Duration
	if status == StatusCompleted || status == StatusFailed {
		ttl = completedJobTTL
	}

	return t.save(ctx, job, ttl)
}

func (t *Tracker) save(ctx context.Context, job *Job, ttl time.Duration) error {
	data, err := sonic.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job state: %w", err)
	}

	builder := t.client.B().Set().Key(jobKey(job.ID)).Value(rueidis.BinaryString(data))

	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}

	if err := t.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save job state: %w", err)
	}

	return nil
}

func jobKey(jobID string) string {
	return "job:" + jobID
}
