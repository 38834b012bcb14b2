//go:build test
// +build test

package jobqueue

import (
	"time"
)

// TestJobFactory creates test jobs for different types
func TestJobFactory() map[JobType]*Job {
	now := time.Now()

	return map[JobType]*Job{
		JobTypeMeetingProcessing: {
			ID:     "test-meeting-job",
			Type:   JobTypeMeetingProcessing,
			Status: JobStatusPending,
			Payload: MeetingProcessingJobPayload{
				MeetingID:     "test-meeting-id",
				TranscriptURL: "https://cdn.example.com/test-meeting-id.jsonl",
			}.ToMap(),
			CreatedAt:  now,
			UpdatedAt:  now,
			RetryCount: 0,
			MaxRetries: 3,
		},
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
