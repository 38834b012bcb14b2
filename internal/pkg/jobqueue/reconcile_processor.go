package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ApexAgent/app/models"
)

const (
	reconcileKeyPrefix = "reconcile:meeting:"
	reconcileBatchSize = 50

	DefaultReconcileInterval = 30 * time.Minute
)

// StuckMeetings lists meetings that have a transcript but are still processing
type StuckMeetings interface {
	ListStuckProcessing(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Meeting, error)
}

// Reconciler re-sends the processing job for meetings whose trigger was lost
type Reconciler struct {
	queue    *Queue
	meetings StuckMeetings
	client   *redis.Client
	interval time.Duration
	now      func() time.Time
}

func NewReconciler(queue *Queue, meetings StuckMeetings, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		queue:    queue,
		meetings: meetings,
		client:   queue.client,
		interval: interval,
		now:      time.Now,
	}
}

// Interval is both the staleness threshold and the sweep period
func (r *Reconciler) Interval() time.Duration {
	return r.interval
}

// RunOnce enqueues one processing job per stuck meeting. A meeting is
// re-enqueued at most once per interval across all instances.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.interval)
	meetings, err := r.meetings.ListStuckProcessing(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stuck meetings: %w", err)
	}

	enqueued := 0
	for _, meeting := range meetings {
		if meeting.TranscriptURL == nil || *meeting.TranscriptURL == "" {
			continue
		}
		claimed, err := r.client.SetNX(ctx, reconcileKeyPrefix+meeting.ID, r.now().Unix(), r.interval).Result()
		if err != nil {
			return enqueued, fmt.Errorf("claim reconcile of meeting %s: %w", meeting.ID, err)
		}
		if !claimed {
			continue
		}

		payload := MeetingProcessingJobPayload{MeetingID: meeting.ID, TranscriptURL: *meeting.TranscriptURL}
		if _, err := r.queue.EnqueueJob(ctx, JobTypeMeetingProcessing, payload.ToMap()); err != nil {
			_ = r.client.Del(ctx, reconcileKeyPrefix+meeting.ID).Err()
			return enqueued, err
		}
		log.Warnf("[Reconcile] Re-enqueued processing for meeting %s stuck since %s", meeting.ID, meeting.UpdatedAt.Format(time.RFC3339))
		enqueued++
	}
	return enqueued, nil
}
