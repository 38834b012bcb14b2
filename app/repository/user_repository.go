package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an API key hash to its owner
func (r *userRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	var user models.User
	if hash == "" {
		return nil, gorm.ErrRecordNotFound
	}
	if err := r.db.WithContext(ctx).Where("api_key_hash = ?", hash).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchAPIKeyUsage refreshes the last-used timestamp of a user's API key
func (r *userRepository) TouchAPIKeyUsage(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("api_key_last_used_at", time.Now()).Error
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveAPIKey persists the key material set by models.User.IssueAPIKey
func (r *userRepository) SaveAPIKey(ctx context.Context, user *models.User) error {
	tx := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"api_key_hash":         user.APIKeyHash,
			"api_key_prefix":       user.APIKeyPrefix,
			"api_key_created_at":   user.APIKeyCreatedAt,
			"api_key_last_used_at": user.APIKeyLastUsedAt,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
