package candidates

import (
	"context"
	"strings"
	"time"
)

// Item is one observed video as reported by a source.
type Item struct {
	Platform   string
	ExternalID string
	URL        string
	Caption    string
	Author     string
	Views      int64
	Likes      int64
	Comments   int64
	PostedAt   *time.Time
}

// Source yields candidate items from an external listing.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// Platform names recognised by the sources.
const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
)

// inferPlatform guesses the platform from a post URL.
func inferPlatform(rawURL string) string {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "instagram.com"):
		return PlatformInstagram
	case strings.Contains(lower, "tiktok.com"):
		return PlatformTikTok
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return PlatformYouTube
	default:
		return ""
	}
}

func clampCount(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
