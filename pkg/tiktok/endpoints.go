package tiktok

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for TikTok
	BaseURL = "https://www.tiktok.com"

	// MaxHandleLength is the longest handle TikTok accepts
	MaxHandleLength = 24

	// MaxPageSize caps how much of a profile page is read
	MaxPageSize = 10 << 20
)

// GetProfileURL constructs the profile page URL for a handle under base
func GetProfileURL(base, handle string) string {
	if base == "" {
		base = BaseURL
	}
	return fmt.Sprintf("%s/@%s", strings.TrimRight(base, "/"), url.PathEscape(handle))
}

// GetVideoURL constructs the public URL of a video.
// Without a handle the short form is returned.
func GetVideoURL(handle, videoID string) string {
	if handle == "" {
		return fmt.Sprintf("%s/video/%s", BaseURL, url.PathEscape(videoID))
	}
	return fmt.Sprintf("%s/@%s/video/%s", BaseURL, url.PathEscape(handle), url.PathEscape(videoID))
}

// IsValidHandle checks if a handle is valid according to TikTok rules
func IsValidHandle(handle string) bool {
	if handle == "" || len(handle) > MaxHandleLength {
		return false
	}

	// Handles can only contain letters, numbers, periods, and underscores
	for _, char := range handle {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeHandle removes surrounding whitespace, a leading @ and trailing slashes
func SanitizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.TrimRight(handle, "/ ")
}
