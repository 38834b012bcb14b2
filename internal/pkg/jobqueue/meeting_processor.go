package jobqueue

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ApexAgent/app/models"
)

// maxTranscriptBytes caps the transcript download
const maxTranscriptBytes = 16 << 20

// ProcessingMeetings is the meeting store seen by the processing job
type ProcessingMeetings interface {
	GetByID(ctx context.Context, id string) (*models.Meeting, error)
	CompleteIfProcessing(ctx context.Context, id, summary string) (bool, error)
}

type ProcessingAgents interface {
	GetByID(ctx context.Context, id string) (*models.Agent, error)
}

type ProcessingUsers interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TranscriptItem is one line of the platform's JSONL transcript
type TranscriptItem struct {
	SpeakerID string `json:"speaker_id"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	StartTS   int64  `json:"start_ts"`
	StopTS    int64  `json:"stop_ts"`
}

// MeetingProcessor completes meetings whose transcript is available
type MeetingProcessor struct {
	meetings   ProcessingMeetings
	agents     ProcessingAgents
	users      ProcessingUsers
	httpClient *http.Client
}

func NewMeetingProcessor(meetings ProcessingMeetings, agents ProcessingAgents, users ProcessingUsers, httpClient *http.Client) *MeetingProcessor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &MeetingProcessor{
		meetings:   meetings,
		agents:     agents,
		users:      users,
		httpClient: httpClient,
	}
}

// Handle is the queue handler for JobTypeMeetingProcessing
func (p *MeetingProcessor) Handle(ctx context.Context, job *Job) error {
	payload, err := MeetingProcessingJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid meeting processing payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid meeting processing payload: %w", err)
	}
	return p.Process(ctx, *payload)
}

// Process renders the transcript into the meeting summary and completes the
// meeting. Meetings that already left processing are skipped.
func (p *MeetingProcessor) Process(ctx context.Context, payload MeetingProcessingJobPayload) error {
	meeting, err := p.meetings.GetByID(ctx, payload.MeetingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[JobQueue] Meeting %s no longer exists, skipping processing", payload.MeetingID)
			return nil
		}
		return fmt.Errorf("load meeting %s: %w", payload.MeetingID, err)
	}
	if meeting.Status != models.MeetingStatusProcessing {
		log.Infof("[JobQueue] Meeting %s is %s, nothing to process", meeting.ID, meeting.Status)
		return nil
	}

	items, err := p.fetchTranscript(ctx, payload.TranscriptURL)
	if err != nil {
		return err
	}

	summary := RenderTranscript(items, p.speakerNames(ctx, meeting))
	completed, err := p.meetings.CompleteIfProcessing(ctx, meeting.ID, summary)
	if err != nil {
		return fmt.Errorf("complete meeting %s: %w", meeting.ID, err)
	}
	if !completed {
		log.Infof("[JobQueue] Meeting %s left processing while its transcript was rendered", meeting.ID)
		return nil
	}
	log.Infof("[JobQueue] Meeting %s completed (%d transcript lines)", meeting.ID, len(items))
	return nil
}

func (p *MeetingProcessor) fetchTranscript(ctx context.Context, url string) ([]TranscriptItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download transcript: unexpected status %d", resp.StatusCode)
	}
	return ParseTranscript(io.LimitReader(resp.Body, maxTranscriptBytes))
}

// speakerNames maps speaker ids to display names: the agent by name, the
// meeting owner by name when known.
func (p *MeetingProcessor) speakerNames(ctx context.Context, meeting *models.Meeting) map[string]string {
	names := make(map[string]string, 2)
	if agent, err := p.agents.GetByID(ctx, meeting.AgentID); err == nil {
		names[agent.ID] = agent.Name
	} else {
		log.Debugf("[JobQueue] Agent %s for meeting %s not found: %v", meeting.AgentID, meeting.ID, err)
	}
	if p.users != nil {
		if user, err := p.users.GetByID(ctx, meeting.UserID); err == nil && user.Name != "" {
			names[user.ID] = user.Name
		}
	}
	return names
}

// ParseTranscript reads JSONL transcript items. Blank and malformed lines are
// skipped.
func ParseTranscript(r io.Reader) ([]TranscriptItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var items []TranscriptItem
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var item TranscriptItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			log.Warnf("[JobQueue] Skipping malformed transcript line %d: %v", line, err)
			continue
		}
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return items, nil
}

// RenderTranscript formats items as "[mm:ss] Speaker: text" lines. Speakers
// missing from names are shown as "User".
func RenderTranscript(items []TranscriptItem, names map[string]string) string {
	var b strings.Builder
	for _, item := range items {
		speaker, ok := names[item.SpeakerID]
		if !ok || speaker == "" {
			speaker = "User"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", formatOffset(item.StartTS), speaker, strings.TrimSpace(item.Text))
	}
	return b.String()
}

func formatOffset(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
