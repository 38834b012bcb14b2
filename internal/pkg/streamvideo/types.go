package streamvideo

import "time"

// DefaultCallType is the call type every meeting is created with
const DefaultCallType = "default"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a platform user. Agents are registered as users too so they can
// join calls.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Image string `json:"image,omitempty"`
}

type TranscriptionSettings struct {
	Mode              string `json:"mode"`
	Language          string `json:"language,omitempty"`
	ClosedCaptionMode string `json:"closed_caption_mode,omitempty"`
}

type RecordingSettings struct {
	Mode    string `json:"mode"`
	Quality string `json:"quality,omitempty"`
}

type CallSettings struct {
	Transcription *TranscriptionSettings `json:"transcription,omitempty"`
	Recording     *RecordingSettings     `json:"recording,omitempty"`
}

// CreateCallRequest describes a call to create or fetch
type CreateCallRequest struct {
	CreatedByID string                 `json:"created_by_id"`
	Custom      map[string]interface{} `json:"custom,omitempty"`
	Settings    *CallSettings          `json:"settings_override,omitempty"`
}

// MeetingCallRequest returns the call settings used for every meeting:
// transcription and recording start automatically.
func MeetingCallRequest(createdByID, meetingID, meetingName string) CreateCallRequest {
	return CreateCallRequest{
		CreatedByID: createdByID,
		Custom: map[string]interface{}{
			"meetingId":   meetingID,
			"meetingName": meetingName,
		},
		Settings: &CallSettings{
			Transcription: &TranscriptionSettings{
				Mode:              "auto-on",
				Language:          "en",
				ClosedCaptionMode: "auto-on",
			},
			Recording: &RecordingSettings{
				Mode:    "auto-on",
				Quality: "1080p",
			},
		},
	}
}

// Participant is a member of a running call session
type Participant struct {
	UserSessionID string    `json:"user_session_id"`
	User          User      `json:"user"`
	Role          string    `json:"role"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Call is the subset of the platform call resource the service reads
type Call struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	CID     string                 `json:"cid"`
	Custom  map[string]interface{} `json:"custom"`
	Session *CallSession           `json:"session"`
}

type CallSession struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
}

type callResponse struct {
	Call Call `json:"call"`
}
