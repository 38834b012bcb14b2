package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingStatusUpcoming   MeetingStatus = "upcoming"
	MeetingStatusActive     MeetingStatus = "active"
	MeetingStatusProcessing MeetingStatus = "processing"
	MeetingStatusCompleted  MeetingStatus = "completed"
	MeetingStatusCancelled  MeetingStatus = "cancelled"
)

// MeetingStatuses lists every status in lifecycle order.
var MeetingStatuses = []MeetingStatus{
	MeetingStatusUpcoming,
	MeetingStatusActive,
	MeetingStatusProcessing,
	MeetingStatusCompleted,
	MeetingStatusCancelled,
}

// IsValid reports whether s is one of the known statuses.
func (s MeetingStatus) IsValid() bool {
	for _, known := range MeetingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further lifecycle transition is possible.
func (s MeetingStatus) IsTerminal() bool {
	return s == MeetingStatusCompleted || s == MeetingStatusCancelled
}

// CallEnded reports whether the video call behind a meeting in this status is over.
func (s MeetingStatus) CallEnded() bool {
	return s == MeetingStatusProcessing || s.IsTerminal()
}

// Meeting is a scheduled or past call with an AI agent. Its ID doubles as the
// video platform call id.
type Meeting struct {
	ID            string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string        `gorm:"type:varchar(255);not null" json:"name" validate:"required,min=1,max=255"`
	UserID        string        `gorm:"type:varchar(36);not null;index" json:"userId" validate:"required"`
	AgentID       string        `gorm:"type:varchar(36);not null;index" json:"agentId" validate:"required"`
	Status        MeetingStatus `gorm:"type:varchar(20);not null;default:'upcoming';index" json:"status"`
	StartedAt     *time.Time    `gorm:"type:timestamp;default:null" json:"startedAt"`
	EndedAt       *time.Time    `gorm:"type:timestamp;default:null" json:"endedAt"`
	TranscriptURL *string       `gorm:"type:text" json:"transcriptUrl"`
	RecordingURL  *string       `gorm:"type:text" json:"recordingUrl"`
	Summary       *string       `gorm:"type:longtext" json:"summary"`
	Agent         *Agent        `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"agent,omitempty" validate:"-"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (m *Meeting) Validate() error {
	v := validator.New()
	return v.Struct(m)
}

// BeforeCreate assigns an id and the initial status.
func (m *Meeting) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = MeetingStatusUpcoming
	}
	return nil
}

// Duration returns the call length in seconds once both timestamps are known.
func (m *Meeting) Duration() *float64 {
	if m.StartedAt == nil || m.EndedAt == nil {
		return nil
	}
	d := m.EndedAt.Sub(*m.StartedAt).Seconds()
	if d < 0 {
		d = 0
	}
	return &d
}
