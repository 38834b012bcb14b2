package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

const defaultAvatarSize = 200

// GetGravatarURL returns the Gravatar image for an email address. Unknown
// addresses get the generic "mystery person" image.
func GetGravatarURL(email string, size int) string {
	if size <= 0 {
		size = defaultAvatarSize
	}
	hash := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=mp", hash, size)
}

// AvatarURL prefers the stored profile image and falls back to Gravatar.
func AvatarURL(image, email string) string {
	if image = strings.TrimSpace(image); image != "" {
		return image
	}
	if strings.TrimSpace(email) == "" {
		return ""
	}
	return GetGravatarURL(email, defaultAvatarSize)
}
