package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"gorm.io/gorm"
)

type webhookDeliveryRepository struct {
	db *gorm.DB
}

// NewWebhookDeliveryRepository creates a webhook delivery repository backed by GORM.
func NewWebhookDeliveryRepository(db *gorm.DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{db: db}
}

// CreateIfNotExists inserts the delivery unless (provider, delivery_id) is
// already known. It reports whether a new row was created and returns the
// stored row either way. A concurrent insert of the same key loses on the
// unique index and falls back to the winner's row.
func (r *webhookDeliveryRepository) CreateIfNotExists(ctx context.Context, delivery *models.WebhookDelivery) (bool, *models.WebhookDelivery, error) {
	stored, err := r.find(ctx, delivery.Provider, delivery.DeliveryID)
	if err == nil {
		return false, stored, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil, err
	}

	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		if stored, findErr := r.find(ctx, delivery.Provider, delivery.DeliveryID); findErr == nil {
			return false, stored, nil
		}
		return false, nil, err
	}
	return true, delivery, nil
}

func (r *webhookDeliveryRepository) find(ctx context.Context, provider, deliveryID string) (*models.WebhookDelivery, error) {
	var stored models.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("provider = ? AND delivery_id = ?", provider, deliveryID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *webhookDeliveryRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("id = ?", id).Updates(updates).Error
}

// Release forgets a delivery so the sender's redelivery is processed again.
func (r *webhookDeliveryRepository) Release(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.WebhookDelivery{}).Error
}
