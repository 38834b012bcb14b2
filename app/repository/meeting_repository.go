package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"gorm.io/gorm"
)

// meetingRepository implements the MeetingRepository interface
type meetingRepository struct {
	db *gorm.DB
}

// NewMeetingRepository creates a new meeting repository instance
func NewMeetingRepository(db *gorm.DB) MeetingRepository {
	return &meetingRepository{db: db}
}

// statuses from which a session_started event may activate a meeting are the
// complement of this list.
var notStartableStatuses = []models.MeetingStatus{
	models.MeetingStatusCompleted,
	models.MeetingStatusActive,
	models.MeetingStatusCancelled,
	models.MeetingStatusProcessing,
}

func (r *meetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	return r.db.WithContext(ctx).Create(meeting).Error
}

func (r *meetingRepository) GetByID(ctx context.Context, id string) (*models.Meeting, error) {
	var meeting models.Meeting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&meeting).Error; err != nil {
		return nil, err
	}
	return &meeting, nil
}

func (r *meetingRepository) GetByIDForUser(ctx context.Context, id, userID string) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.db.WithContext(ctx).Preload("Agent").
		Where("id = ? AND user_id = ?", id, userID).
		First(&meeting).Error
	if err != nil {
		return nil, err
	}
	return &meeting, nil
}

// List returns one page of the owner's meetings, newest first, and the total
// number of matches.
func (r *meetingRepository) List(ctx context.Context, filter MeetingFilter) ([]models.Meeting, int64, error) {
	page, pageSize := normalizePaging(filter.Page, filter.PageSize)

	q := r.db.WithContext(ctx).Model(&models.Meeting{}).Where("user_id = ?", filter.UserID)
	if filter.Search != "" {
		q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AgentID != "" {
		q = q.Where("agent_id = ?", filter.AgentID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var meetings []models.Meeting
	err := q.Preload("Agent").
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&meetings).Error
	return meetings, total, err
}

func (r *meetingRepository) Update(ctx context.Context, meeting *models.Meeting) error {
	return r.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("id = ? AND user_id = ?", meeting.ID, meeting.UserID).
		Updates(map[string]interface{}{
			"name":     meeting.Name,
			"agent_id": meeting.AgentID,
		}).Error
}

func (r *meetingRepository) DeleteForUser(ctx context.Context, id, userID string) (*models.Meeting, error) {
	meeting, err := r.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	tx := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Meeting{})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return meeting, nil
}

// StartIfUpcoming moves a meeting to active and stamps startedAt. A replayed
// session_started for a meeting that is already active, processing, completed
// or cancelled matches zero rows and yields ErrPreconditionFailed, as does a
// missing row.
func (r *meetingRepository) StartIfUpcoming(ctx context.Context, id string, startedAt time.Time) (*models.Meeting, error) {
	tx := r.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("id = ? AND status NOT IN ?", id, notStartableStatuses).
		Updates(map[string]interface{}{
			"status":     models.MeetingStatusActive,
			"started_at": startedAt,
		})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, ErrPreconditionFailed
	}
	return r.GetByID(ctx, id)
}

// RevertStart returns an active meeting to upcoming and clears startedAt. It is
// the compensation for a start whose agent could not be provisioned.
func (r *meetingRepository) RevertStart(ctx context.Context, id string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("id = ? AND status = ?", id, models.MeetingStatusActive).
		Updates(map[string]interface{}{
			"status":     models.MeetingStatusUpcoming,
			"started_at": nil,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// EndIfActive moves an active meeting to processing and stamps endedAt. It
// reports false when the meeting was not active, which makes a duplicate
// session_ended a no-op.
func (r *meetingRepository) EndIfActive(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("id = ? AND status = ?", id, models.MeetingStatusActive).
		Updates(map[string]interface{}{
			"status":   models.MeetingStatusProcessing,
			"ended_at": endedAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *meetingRepository) SetTranscriptURL(ctx context.Context, id, url string) (*models.Meeting, error) {
	return r.setArtifactURL(ctx, id, "transcript_url", url)
}

func (r *meetingRepository) SetRecordingURL(ctx context.Context, id, url string) (*models.Meeting, error) {
	return r.setArtifactURL(ctx, id, "recording_url", url)
}

// setArtifactURL stores an artifact locator regardless of status. A locator is
// set at most once: writing the stored URL again matches the row, a different
// URL leaves the first one in place. Either way the stored row is returned.
func (r *meetingRepository) setArtifactURL(ctx context.Context, id, column, url string) (*models.Meeting, error) {
	if url == "" {
		return nil, errors.New("artifact url is required")
	}
	tx := r.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("id = ? AND ("+column+" IS NULL OR "+column+" = ?)", id, url).
		Update(column, url)
	if tx.Error != nil {
		return nil, tx.Error
	}
	// zero rows means a missing meeting or one that already has another URL
	return r.GetByID(ctx, id)
}

// CompleteIfProcessing closes the lifecycle once post-call processing is done.
func (r *meetingRepository) CompleteIfProcessing(ctx context.Context, id, summary string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("id = ? AND status = ?", id, models.MeetingStatusProcessing).
		Updates(map[string]interface{}{
			"status":  models.MeetingStatusCompleted,
			"summary": summary,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// CancelIfOpen cancels an owned meeting that has not already finished.
// Returns gorm.ErrRecordNotFound for unknown or foreign meetings and
// ErrPreconditionFailed for completed or cancelled ones.
func (r *meetingRepository) CancelIfOpen(ctx context.Context, id, userID string) (*models.Meeting, error) {
	if _, err := r.GetByIDForUser(ctx, id, userID); err != nil {
		return nil, err
	}
	tx := r.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("id = ? AND user_id = ? AND status NOT IN ?", id, userID, []models.MeetingStatus{
			models.MeetingStatusCompleted,
			models.MeetingStatusCancelled,
		}).
		Update("status", models.MeetingStatusCancelled)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, ErrPreconditionFailed
	}
	return r.GetByIDForUser(ctx, id, userID)
}

// ListStuckProcessing finds meetings whose transcript arrived but which never
// left processing, oldest first.
func (r *meetingRepository) ListStuckProcessing(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Meeting, error) {
	var meetings []models.Meeting
	err := r.db.WithContext(ctx).
		Where("status = ? AND transcript_url IS NOT NULL AND updated_at < ?", models.MeetingStatusProcessing, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&meetings).Error
	return meetings, err
}
