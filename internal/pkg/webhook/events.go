package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event types sent by the video platform
const (
	TypeSessionStarted     = "call.session_started"
	TypeParticipantLeft    = "call.session_participant_left"
	TypeSessionEnded       = "call.session_ended"
	TypeTranscriptionReady = "call.transcription_ready"
	TypeRecordingReady     = "call.recording_ready"
)

// Event is one parsed webhook delivery. The concrete type is one of
// SessionStarted, ParticipantLeft, SessionEnded, TranscriptionReady,
// RecordingReady or Unrecognized.
type Event interface {
	Metadata() Meta
}

// Meta holds the fields shared by every event
type Meta struct {
	Type      string
	MeetingID string
	CallType  string
	SessionID string
}

func (m Meta) Metadata() Meta { return m }

type SessionStarted struct {
	Meta
}

type ParticipantLeft struct {
	Meta
	UserID        string
	UserSessionID string
}

type SessionEnded struct {
	Meta
}

type TranscriptionReady struct {
	Meta
	TranscriptURL string
}

type RecordingReady struct {
	Meta
	RecordingURL string
}

// Unrecognized is any event type the service does not act on
type Unrecognized struct {
	Meta
}

type rawEvent struct {
	Type      string `json:"type"`
	CallCID   string `json:"call_cid"`
	SessionID string `json:"session_id"`
	Call      *struct {
		ID     string                 `json:"id"`
		Type   string                 `json:"type"`
		CID    string                 `json:"cid"`
		Custom map[string]interface{} `json:"custom"`
	} `json:"call"`
	Participant *struct {
		UserSessionID string `json:"user_session_id"`
		User          struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"participant"`
	CallTranscription *struct {
		URL string `json:"url"`
	} `json:"call_transcription"`
	CallRecording *struct {
		URL string `json:"url"`
	} `json:"call_recording"`
}

// Parse decodes a verified webhook body into a typed event and checks the
// fields its type requires.
func Parse(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	meta := Meta{
		Type:      strings.TrimSpace(raw.Type),
		SessionID: raw.SessionID,
	}
	meta.CallType, meta.MeetingID = raw.meetingRef()

	switch meta.Type {
	case TypeSessionStarted, TypeParticipantLeft, TypeSessionEnded, TypeTranscriptionReady, TypeRecordingReady:
	default:
		return Unrecognized{Meta: meta}, nil
	}

	if meta.MeetingID == "" {
		return nil, ErrMissingMeetingID
	}

	switch meta.Type {
	case TypeSessionStarted:
		return SessionStarted{Meta: meta}, nil
	case TypeParticipantLeft:
		ev := ParticipantLeft{Meta: meta}
		if raw.Participant != nil {
			ev.UserID = raw.Participant.User.ID
			ev.UserSessionID = raw.Participant.UserSessionID
		}
		return ev, nil
	case TypeSessionEnded:
		return SessionEnded{Meta: meta}, nil
	case TypeTranscriptionReady:
		if raw.CallTranscription == nil || strings.TrimSpace(raw.CallTranscription.URL) == "" {
			return nil, fmt.Errorf("%w: call_transcription.url is required", ErrInvalidPayload)
		}
		return TranscriptionReady{Meta: meta, TranscriptURL: strings.TrimSpace(raw.CallTranscription.URL)}, nil
	default:
		if raw.CallRecording == nil || strings.TrimSpace(raw.CallRecording.URL) == "" {
			return nil, fmt.Errorf("%w: call_recording.url is required", ErrInvalidPayload)
		}
		return RecordingReady{Meta: meta, RecordingURL: strings.TrimSpace(raw.CallRecording.URL)}, nil
	}
}

// meetingRef returns the call type and meeting id. call.custom.meetingId wins,
// then the id part of call_cid ("<type>:<meetingId>").
func (r rawEvent) meetingRef() (string, string) {
	cid := r.CallCID
	callType := ""
	meetingID := ""

	if r.Call != nil {
		if id, ok := r.Call.Custom["meetingId"].(string); ok {
			meetingID = strings.TrimSpace(id)
		}
		callType = r.Call.Type
		if cid == "" {
			cid = r.Call.CID
		}
	}

	if parts := strings.SplitN(cid, ":", 2); len(parts) == 2 {
		if callType == "" {
			callType = parts[0]
		}
		if meetingID == "" {
			meetingID = strings.TrimSpace(parts[1])
		}
	}
	return callType, meetingID
}
