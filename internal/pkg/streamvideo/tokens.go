package streamvideo

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type userClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateUserToken issues a client token for userID that expires after ttl
func (c *Client) GenerateUserToken(userID string, ttl time.Duration) (string, error) {
	if err := c.configured(); err != nil {
		return "", err
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	now := c.now()
	claims := userClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.Secret))
}

func (c *Client) serverToken() (string, error) {
	claims := jwt.MapClaims{"server": true}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.Secret))
}
