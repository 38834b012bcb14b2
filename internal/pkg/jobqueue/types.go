package jobqueue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeMeetingProcessing turns a finished meeting's transcript into its
	// stored summary and completes the meeting.
	JobTypeMeetingProcessing JobType = "meetings/processing"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// MeetingProcessingJobPayload is the message sent when a meeting's transcript
// becomes available. Keys match the webhook notifier's data.
type MeetingProcessingJobPayload struct {
	MeetingID     string `json:"meetingId"`
	TranscriptURL string `json:"transcriptUrl"`
}

// ToMap converts the payload to a map for storage
func (p MeetingProcessingJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"meetingId":     p.MeetingID,
		"transcriptUrl": p.TranscriptURL,
	}
}

// Validate checks the fields a processing job cannot run without
func (p MeetingProcessingJobPayload) Validate() error {
	if strings.TrimSpace(p.MeetingID) == "" {
		return errors.New("meetingId is required")
	}
	if strings.TrimSpace(p.TranscriptURL) == "" {
		return errors.New("transcriptUrl is required")
	}
	return nil
}

// MeetingProcessingJobPayloadFromMap creates a payload from a map
func MeetingProcessingJobPayloadFromMap(data map[string]interface{}) (*MeetingProcessingJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload MeetingProcessingJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
