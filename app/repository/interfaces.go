package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/constants"
	"gorm.io/gorm"
)

// ErrPreconditionFailed is returned by guarded updates whose WHERE clause no
// longer matches: the row is missing or not in the required status.
var ErrPreconditionFailed = errors.New("meeting precondition no longer holds")

// MeetingFilter narrows meeting listings for a single owner
type MeetingFilter struct {
	UserID   string
	Search   string
	Status   models.MeetingStatus
	AgentID  string
	Page     int
	PageSize int
}

// AgentFilter narrows agent listings for a single owner
type AgentFilter struct {
	UserID   string
	Search   string
	Page     int
	PageSize int
}

// AgentWithMeetingCount is an agent plus the number of meetings it is assigned to
type AgentWithMeetingCount struct {
	models.Agent
	MeetingCount int64 `json:"meetingCount"`
}

// MeetingRepository defines the meeting record store. Every lifecycle write is a
// conditional update; zero affected rows means the precondition did not hold.
type MeetingRepository interface {
	Create(ctx context.Context, meeting *models.Meeting) error
	GetByID(ctx context.Context, id string) (*models.Meeting, error)
	GetByIDForUser(ctx context.Context, id, userID string) (*models.Meeting, error)
	List(ctx context.Context, filter MeetingFilter) ([]models.Meeting, int64, error)
	Update(ctx context.Context, meeting *models.Meeting) error
	DeleteForUser(ctx context.Context, id, userID string) (*models.Meeting, error)

	StartIfUpcoming(ctx context.Context, id string, startedAt time.Time) (*models.Meeting, error)
	RevertStart(ctx context.Context, id string) (bool, error)
	EndIfActive(ctx context.Context, id string, endedAt time.Time) (bool, error)
	SetTranscriptURL(ctx context.Context, id, url string) (*models.Meeting, error)
	SetRecordingURL(ctx context.Context, id, url string) (*models.Meeting, error)
	CompleteIfProcessing(ctx context.Context, id, summary string) (bool, error)
	CancelIfOpen(ctx context.Context, id, userID string) (*models.Meeting, error)
	ListStuckProcessing(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Meeting, error)
}

// AgentRepository defines agent lookups and owner-scoped CRUD
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	GetByID(ctx context.Context, id string) (*models.Agent, error)
	GetByIDForUser(ctx context.Context, id, userID string) (*models.Agent, error)
	List(ctx context.Context, filter AgentFilter) ([]AgentWithMeetingCount, int64, error)
	Update(ctx context.Context, agent *models.Agent) error
	DeleteForUser(ctx context.Context, id, userID string) (*models.Agent, error)
}

// UserRepository defines the user lookups needed by API key authentication and issuance
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	SaveAPIKey(ctx context.Context, user *models.User) error
	TouchAPIKeyUsage(ctx context.Context, id string) error
}

// WebhookDeliveryRepository persists inbound webhook deliveries for deduplication
type WebhookDeliveryRepository interface {
	CreateIfNotExists(ctx context.Context, delivery *models.WebhookDelivery) (bool, *models.WebhookDelivery, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
	Release(ctx context.Context, id uint) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Meeting         MeetingRepository
	Agent           AgentRepository
	User            UserRepository
	WebhookDelivery WebhookDeliveryRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Meeting:         NewMeetingRepository(db),
		Agent:           NewAgentRepository(db),
		User:            NewUserRepository(db),
		WebhookDelivery: NewWebhookDeliveryRepository(db),
	}
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = constants.DefaultPage
	}
	if pageSize < constants.MinPageSize {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return page, pageSize
}
