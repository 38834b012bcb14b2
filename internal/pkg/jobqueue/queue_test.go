package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueueWithClient(offlineClient(t), tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.workerPool)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
			assert.Equal(t, 2*time.Minute, queue.retryDelay(2))
		})
	}
}

func TestConstants(t *testing.T) {
	// Test Redis key constants
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)

	// Test job settings constants
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func TestQueue_HandleReplacesHandler(t *testing.T) {
	queue := NewQueueWithClient(offlineClient(t), 1)

	_, ok := queue.handler(JobTypeMeetingProcessing)
	assert.False(t, ok)

	var calls []string
	queue.Handle(JobTypeMeetingProcessing, func(ctx context.Context, job *Job) error {
		calls = append(calls, "first")
		return nil
	})
	queue.Handle(JobTypeMeetingProcessing, func(ctx context.Context, job *Job) error {
		calls = append(calls, "second")
		return nil
	})

	h, ok := queue.handler(JobTypeMeetingProcessing)
	require.True(t, ok)
	require.NoError(t, h(context.Background(), &Job{}))
	assert.Equal(t, []string{"second"}, calls)
}

func TestQueue_RunHandlerRecoversPanic(t *testing.T) {
	queue := NewQueueWithClient(offlineClient(t), 1)

	err := queue.runHandler(context.Background(), func(ctx context.Context, job *Job) error {
		panic("boom")
	}, &Job{ID: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestQueue_EnqueueAndProcess(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	queue := NewQueueWithClient(client, 2)

	var handled atomic.Int32
	var seen atomic.Value
	queue.Handle(JobTypeMeetingProcessing, func(ctx context.Context, job *Job) error {
		payload, err := MeetingProcessingJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		seen.Store(payload.MeetingID)
		handled.Add(1)
		return nil
	})

	ctx := context.Background()
	job, err := queue.EnqueueJob(ctx, JobTypeMeetingProcessing, MeetingProcessingJobPayload{
		MeetingID:     "m-queue",
		TranscriptURL: "https://cdn.example.com/q.jsonl",
	}.ToMap())
	require.NoError(t, err)

	size, err := queue.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	queue.Start()
	defer queue.Stop()

	require.Eventually(t, func() bool { return handled.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "m-queue", seen.Load())

	// Completed jobs are removed from Redis.
	require.Eventually(t, func() bool {
		_, err := queue.GetJob(ctx, job.ID)
		return errors.Is(err, redis.Nil)
	}, 2*time.Second, 20*time.Millisecond)

	stats, err := queue.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])
	assert.Equal(t, int64(1), stats[JobStatusPending])
}

func TestQueue_RetriesFailedJob(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	queue := NewQueueWithClient(client, 1)
	queue.SetRetryDelay(func(int) time.Duration { return 10 * time.Millisecond })

	var attempts atomic.Int32
	queue.Handle(JobTypeMeetingProcessing, func(ctx context.Context, job *Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transcript not reachable yet")
		}
		return nil
	})

	_, err := queue.EnqueueJob(context.Background(), JobTypeMeetingProcessing, map[string]interface{}{"meetingId": "m"})
	require.NoError(t, err)

	queue.Start()
	defer queue.Stop()

	require.Eventually(t, func() bool { return attempts.Load() == 3 }, 10*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		stats, err := queue.GetJobStats(context.Background())
		return err == nil && stats[JobStatusCompleted] == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_UnknownJobTypeFailsPermanently(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	queue := NewQueueWithClient(client, 1)
	queue.SetRetryDelay(func(int) time.Duration { return time.Millisecond })

	ctx := context.Background()
	job, err := queue.EnqueueJob(ctx, JobType("meetings/unknown"), nil)
	require.NoError(t, err)

	queue.Start()
	defer queue.Stop()

	require.Eventually(t, func() bool {
		stats, err := queue.GetJobStats(ctx)
		return err == nil && stats[JobStatusFailed] == 1
	}, 10*time.Second, 20*time.Millisecond)

	stored, err := queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, DefaultMaxRetries, stored.RetryCount)
	assert.Contains(t, stored.ErrorMsg, ErrUnknownJobType.Error())
}
