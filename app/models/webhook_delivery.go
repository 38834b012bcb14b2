package models

import "time"

const WebhookProviderStream = "stream"

// WebhookDelivery stores inbound webhook deliveries with deduplication
// metadata so a redelivered event is applied at most once.
type WebhookDelivery struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_deliveries_provider_delivery,unique,priority:1" json:"provider"`
	DeliveryID      string     `gorm:"type:varchar(191);not null;index:ux_webhook_deliveries_provider_delivery,unique,priority:2" json:"delivery_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	MeetingID       string     `gorm:"type:varchar(36);index" json:"meeting_id"`
	Attempt         int        `gorm:"default:1" json:"attempt"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
