package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

// User is the account that owns agents and meetings. Sign-in itself is handled
// by the identity provider; this row only carries what the API needs.
type User struct {
	ID               string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name             string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	Email            string     `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Image            string     `gorm:"type:varchar(255);default:null" json:"image" validate:"max=255"`
	Status           string     `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	APIKeyHash       string     `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string     `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time `json:"api_key_last_used_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "apx_"

func (u *User) Validate() error {
	v := validator.New()
	return v.Struct(u)
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Status == "" {
		u.Status = STATUS_ACTIVE
	}
	return nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// IssueAPIKey generates a new API key, stores its hash on the struct and returns
// the raw secret. Callers must persist the user afterwards.
func (u *User) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	u.APIKeyHash = hash
	u.APIKeyPrefix = prefix
	u.APIKeyCreatedAt = &now
	u.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(apiKeyEncoding.EncodeToString(b))
	rawKey := apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:16]
	return rawKey, prefix, HashAPIKey(rawKey), nil
}

// HasActiveAPIKey reports whether an API key has been issued
func (u *User) HasActiveAPIKey() bool {
	return u.APIKeyHash != ""
}
