package repository

import (
	"context"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"gorm.io/gorm"
)

// agentRepository implements the AgentRepository interface
type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates a new agent repository instance
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Create(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

// GetByID is the unscoped lookup used by webhook processing
func (r *agentRepository) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) GetByIDForUser(ctx context.Context, id, userID string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context, filter AgentFilter) ([]AgentWithMeetingCount, int64, error) {
	page, pageSize := normalizePaging(filter.Page, filter.PageSize)

	q := r.db.WithContext(ctx).Model(&models.Agent{}).Where("agents.user_id = ?", filter.UserID)
	if filter.Search != "" {
		q = q.Where("LOWER(agents.name) LIKE LOWER(?)", "%"+filter.Search+"%")
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var agents []AgentWithMeetingCount
	err := q.Select("agents.*, (SELECT COUNT(*) FROM meetings WHERE meetings.agent_id = agents.id) AS meeting_count").
		Order("agents.created_at DESC").Order("agents.id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Scan(&agents).Error
	return agents, total, err
}

func (r *agentRepository) Update(ctx context.Context, agent *models.Agent) error {
	tx := r.db.WithContext(ctx).Model(&models.Agent{}).
		Where("id = ? AND user_id = ?", agent.ID, agent.UserID).
		Updates(map[string]interface{}{
			"name":         agent.Name,
			"instructions": agent.Instructions,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *agentRepository) DeleteForUser(ctx context.Context, id, userID string) (*models.Agent, error) {
	agent, err := r.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Agent{}).Error; err != nil {
		return nil, err
	}
	return agent, nil
}
