package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Agent configures the AI participant that joins a meeting.
type Agent struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	UserID       string    `gorm:"type:varchar(36);not null;index" json:"userId" validate:"required"`
	Instructions string    `gorm:"type:text;not null" json:"instructions" validate:"required,min=1"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (a *Agent) Validate() error {
	v := validator.New()
	return v.Struct(a)
}

func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
