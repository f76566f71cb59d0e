package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibazzar/ai-service/internal/jobs"
	"go.uber.org/zap"
)

func setupTracker(t *testing.T) (*jobs.Tracker, rueidis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return jobs.NewTracker(client, zap.NewNop()), client
}

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()

	tracker, _ := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Create(ctx, jobs.TypeEmbedding)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, job.Status)
	assert.NotEmpty(t, job.ID)

	require.NoError(t, tracker.MarkRunning(ctx, job.ID))

	running, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)

	require.NoError(t, tracker.UpdateProgress(ctx, job.ID, 50, "halfway"))

	halfway, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, halfway.Progress, 1e-9)

	require.NoError(t, tracker.MarkCompleted(ctx, job.ID, "done"))

	// A finished job reports 100 percent
	completed, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, completed.Status)
	assert.InDelta(t, 100.0, completed.Progress, 1e-9)
	require.NotNil(t, completed.CompletedAt)
}

func TestTrackerForwardOnly(t *testing.T) {
	t.Parallel()

	tracker, _ := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Create(ctx, jobs.TypeCollaborative)
	require.NoError(t, err)

	require.NoError(t, tracker.MarkRunning(ctx, job.ID))
	require.NoError(t, tracker.MarkCompleted(ctx, job.ID, "done"))

	// A terminal job cannot move again
	require.ErrorIs(t, tracker.MarkRunning(ctx, job.ID), jobs.ErrInvalidTransition)
	require.ErrorIs(t, tracker.MarkFailed(ctx, job.ID, errors.New("late")), jobs.ErrInvalidTransition)
	require.ErrorIs(t, tracker.UpdateProgress(ctx, job.ID, 20, "late"), jobs.ErrInvalidTransition)
}

func TestTrackerGetUnknownJob(t *testing.T) {
	t.Parallel()

	tracker, _ := setupTracker(t)

	_, err := tracker.Get(context.Background(), "no-such-job")
	require.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestRunnerCompletesJob(t *testing.T) {
	t.Parallel()

	tracker, client := setupTracker(t)
	runner := jobs.NewRunner(tracker, client, zap.NewNop())
	ctx := context.Background()

	job, err := runner.Run(ctx, jobs.TypeEmbedding, func(_ context.Context, report func(float64, string)) error {
		report(50, "halfway")
		return nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := tracker.Get(ctx, job.ID)
		return err == nil && current.Status == jobs.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	completed, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, completed.Progress, 1e-9)
}

func TestRunnerRecordsFailure(t *testing.T) {
	t.Parallel()

	tracker, client := setupTracker(t)
	runner := jobs.NewRunner(tracker, client, zap.NewNop())
	ctx := context.Background()

	job, err := runner.Run(ctx, jobs.TypeEmbedding, func(_ context.Context, _ func(float64, string)) error {
		return errors.New("corpus unavailable")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := tracker.Get(ctx, job.ID)
		return err == nil && current.Status == jobs.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	failed, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "corpus unavailable", failed.Error)
}

func TestRunnerRejectsConcurrentSameType(t *testing.T) {
	t.Parallel()

	tracker, client := setupTracker(t)
	runner := jobs.NewRunner(tracker, client, zap.NewNop())
	ctx := context.Background()

	release := make(chan struct{})
	blocking := func(_ context.Context, _ func(float64, string)) error {
		<-release
		return nil
	}

	first, err := runner.Run(ctx, jobs.TypeCollaborative, blocking)
	require.NoError(t, err)

	// Same type is rejected while the first job holds the lock
	_, err = runner.Run(ctx, jobs.TypeCollaborative, blocking)
	require.ErrorIs(t, err, jobs.ErrTrainingInProgress)

	// A different type is unaffected
	other, err := runner.Run(ctx, jobs.TypeEmbedding, func(_ context.Context, _ func(float64, string)) error {
		return nil
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)

	close(release)

	require.Eventually(t, func() bool {
		current, err := tracker.Get(ctx, first.ID)
		return err == nil && current.Status == jobs.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// The lock is released once the job finishes
	_, err = runner.Run(ctx, jobs.TypeCollaborative, func(_ context.Context, _ func(float64, string)) error {
		return nil
	})
	require.NoError(t, err)
}
