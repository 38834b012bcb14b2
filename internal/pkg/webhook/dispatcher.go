package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/streamvideo"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ProcessingEvent is the job name sent once a transcript is available
const ProcessingEvent = "meetings/processing"

// MeetingStore is the part of the meeting repository the dispatcher writes through
type MeetingStore interface {
	GetByID(ctx context.Context, id string) (*models.Meeting, error)
	StartIfUpcoming(ctx context.Context, id string, startedAt time.Time) (*models.Meeting, error)
	RevertStart(ctx context.Context, id string) (bool, error)
	EndIfActive(ctx context.Context, id string, endedAt time.Time) (bool, error)
	SetTranscriptURL(ctx context.Context, id, url string) (*models.Meeting, error)
	SetRecordingURL(ctx context.Context, id, url string) (*models.Meeting, error)
}

type AgentStore interface {
	GetByID(ctx context.Context, id string) (*models.Agent, error)
}

// AgentSession is a live AI participant connection
type AgentSession interface {
	UpdateSession(ctx context.Context, update streamvideo.SessionUpdate) error
	Close()
}

// Platform is the video platform as seen by the dispatcher
type Platform interface {
	EndCall(ctx context.Context, callType, callID string) error
	SessionParticipants(ctx context.Context, callType, callID string) ([]streamvideo.Participant, error)
	ConnectAgent(ctx context.Context, req streamvideo.ConnectAgentRequest) (AgentSession, error)
	DisconnectAgent(callID string)
}

// Notifier hands work to the background job queue
type Notifier interface {
	Send(ctx context.Context, name string, data map[string]interface{}) error
}

// Outcome names what a delivery did
type Outcome string

const (
	OutcomeStarted       Outcome = "started"
	OutcomeEnded         Outcome = "ended"
	OutcomeCallEnded     Outcome = "call_ended"
	OutcomeTranscriptSet Outcome = "transcript_set"
	OutcomeRecordingSet  Outcome = "recording_set"
	OutcomeNoop          Outcome = "noop"
	OutcomeIgnored       Outcome = "ignored"
)

type Result struct {
	Outcome   Outcome
	MeetingID string
}

type Dependencies struct {
	Meetings MeetingStore
	Agents   AgentStore
	Platform Platform
	Notifier Notifier
	Now      func() time.Time
}

// Dispatcher applies verified webhook events to meeting state. It keeps no
// state between deliveries; concurrent deliveries race only on the guarded
// updates of the meeting store.
type Dispatcher struct {
	meetings MeetingStore
	agents   AgentStore
	platform Platform
	notifier Notifier
	now      func() time.Time
}

func NewDispatcher(deps Dependencies) *Dispatcher {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		meetings: deps.Meetings,
		agents:   deps.Agents,
		platform: deps.Platform,
		notifier: deps.Notifier,
		now:      now,
	}
}

// Dispatch applies one event. Errors are classified with StatusCode.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (Result, error) {
	switch ev := event.(type) {
	case SessionStarted:
		return d.sessionStarted(ctx, ev)
	case ParticipantLeft:
		return d.participantLeft(ctx, ev)
	case SessionEnded:
		return d.sessionEnded(ctx, ev)
	case TranscriptionReady:
		return d.transcriptionReady(ctx, ev)
	case RecordingReady:
		return d.recordingReady(ctx, ev)
	default:
		return Result{Outcome: OutcomeIgnored, MeetingID: event.Metadata().MeetingID}, nil
	}
}

func (d *Dispatcher) sessionStarted(ctx context.Context, ev SessionStarted) (Result, error) {
	meeting, err := d.meetings.StartIfUpcoming(ctx, ev.MeetingID, d.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return Result{}, ErrMeetingNotFound
		}
		return Result{}, fmt.Errorf("start meeting %s: %w", ev.MeetingID, err)
	}

	agent, err := d.agents.GetByID(ctx, meeting.AgentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrAgentNotFound
		}
		return Result{}, d.undoStart(ctx, meeting.ID, fmt.Errorf("load agent %s: %w", meeting.AgentID, err))
	}

	session, err := d.platform.ConnectAgent(ctx, streamvideo.ConnectAgentRequest{
		CallType:    callTypeOf(ev.Meta),
		CallID:      meeting.ID,
		AgentUserID: agent.ID,
	})
	if err != nil {
		return Result{}, d.undoStart(ctx, meeting.ID, fmt.Errorf("connect agent to %s: %w", meeting.ID, err))
	}
	if err := session.UpdateSession(ctx, streamvideo.SessionUpdate{Instructions: agent.Instructions}); err != nil {
		session.Close()
		return Result{}, d.undoStart(ctx, meeting.ID, fmt.Errorf("configure agent on %s: %w", meeting.ID, err))
	}

	log.Infof("[Webhook] Meeting %s started, agent %s connected", meeting.ID, agent.ID)
	return Result{Outcome: OutcomeStarted, MeetingID: meeting.ID}, nil
}

// undoStart puts a meeting back to upcoming when provisioning the agent failed
// with a retryable error, so the platform's redelivery can start it again.
func (d *Dispatcher) undoStart(ctx context.Context, meetingID string, cause error) error {
	reverted, err := d.meetings.RevertStart(ctx, meetingID)
	if err != nil {
		log.Errorf("[Webhook] Could not revert start of meeting %s: %v", meetingID, err)
	} else if reverted {
		log.Warnf("[Webhook] Reverted start of meeting %s: %v", meetingID, cause)
	}
	return cause
}

// participantLeft ends the call once no human is left in it. Anyone who is not
// the meeting's agent counts as human.
func (d *Dispatcher) participantLeft(ctx context.Context, ev ParticipantLeft) (Result, error) {
	agentID := ""
	meeting, err := d.meetings.GetByID(ctx, ev.MeetingID)
	switch {
	case err == nil:
		if meeting.Status.CallEnded() {
			return Result{Outcome: OutcomeNoop, MeetingID: ev.MeetingID}, nil
		}
		agentID = meeting.AgentID
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Debugf("[Webhook] Participant left unknown meeting %s", ev.MeetingID)
	default:
		return Result{}, fmt.Errorf("load meeting %s: %w", ev.MeetingID, err)
	}

	if agentID != "" && ev.UserID == agentID {
		return Result{Outcome: OutcomeNoop, MeetingID: ev.MeetingID}, nil
	}

	callType := callTypeOf(ev.Meta)
	participants, err := d.platform.SessionParticipants(ctx, callType, ev.MeetingID)
	if err != nil {
		return Result{}, fmt.Errorf("list participants of %s: %w", ev.MeetingID, err)
	}
	for _, p := range participants {
		if p.UserSessionID != "" && p.UserSessionID == ev.UserSessionID {
			continue
		}
		if p.User.ID == ev.UserID || p.User.ID == agentID {
			continue
		}
		return Result{Outcome: OutcomeNoop, MeetingID: ev.MeetingID}, nil
	}

	if err := d.platform.EndCall(ctx, callType, ev.MeetingID); err != nil {
		return Result{}, fmt.Errorf("end call %s: %w", ev.MeetingID, err)
	}
	log.Infof("[Webhook] Last human left meeting %s, call ended", ev.MeetingID)
	return Result{Outcome: OutcomeCallEnded, MeetingID: ev.MeetingID}, nil
}

func (d *Dispatcher) sessionEnded(ctx context.Context, ev SessionEnded) (Result, error) {
	d.platform.DisconnectAgent(ev.MeetingID)

	ended, err := d.meetings.EndIfActive(ctx, ev.MeetingID, d.now().UTC())
	if err != nil {
		return Result{}, fmt.Errorf("end meeting %s: %w", ev.MeetingID, err)
	}
	if !ended {
		log.Debugf("[Webhook] session_ended for meeting %s that is not active, ignoring", ev.MeetingID)
		return Result{Outcome: OutcomeNoop, MeetingID: ev.MeetingID}, nil
	}
	return Result{Outcome: OutcomeEnded, MeetingID: ev.MeetingID}, nil
}

func (d *Dispatcher) transcriptionReady(ctx context.Context, ev TranscriptionReady) (Result, error) {
	meeting, err := d.meetings.SetTranscriptURL(ctx, ev.MeetingID, ev.TranscriptURL)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrMeetingNotFound
		}
		return Result{}, fmt.Errorf("store transcript of %s: %w", ev.MeetingID, err)
	}

	// The first stored transcript wins over a later, different URL.
	transcriptURL := ev.TranscriptURL
	if meeting.TranscriptURL != nil && *meeting.TranscriptURL != transcriptURL {
		log.Warnf("[Webhook] Meeting %s already has transcript %s, ignoring %s", meeting.ID, *meeting.TranscriptURL, transcriptURL)
		transcriptURL = *meeting.TranscriptURL
	}

	// The transcript pointer stays stored even if the trigger is lost; the
	// reconcile sweep sends it again.
	err = d.notifier.Send(ctx, ProcessingEvent, map[string]interface{}{
		"meetingId":     meeting.ID,
		"transcriptUrl": transcriptURL,
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to enqueue %s for meeting %s: %v", ProcessingEvent, meeting.ID, err)
	}
	return Result{Outcome: OutcomeTranscriptSet, MeetingID: meeting.ID}, nil
}

func (d *Dispatcher) recordingReady(ctx context.Context, ev RecordingReady) (Result, error) {
	meeting, err := d.meetings.SetRecordingURL(ctx, ev.MeetingID, ev.RecordingURL)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrMeetingNotFound
		}
		return Result{}, fmt.Errorf("store recording of %s: %w", ev.MeetingID, err)
	}
	return Result{Outcome: OutcomeRecordingSet, MeetingID: meeting.ID}, nil
}

func callTypeOf(meta Meta) string {
	if meta.CallType != "" {
		return meta.CallType
	}
	return streamvideo.DefaultCallType
}
