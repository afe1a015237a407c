package scraper

import (
	"context"
	"time"

	"ttscraper/pkg/tiktok"
)

// PageFetcher defines the interface for profile page downloads
type PageFetcher interface {
	NextIdentity() tiktok.Identity
	FetchProfilePage(ctx context.Context, handle, cookie string, id tiktok.Identity) (*tiktok.Page, error)
}

// CookieSource supplies a stored session cookie when none is configured
type CookieSource interface {
	Cookie() (string, error)
}

// MetricsRecorder receives fetch telemetry
type MetricsRecorder interface {
	// RecordAttempt is called once per HTTP attempt with "success" or the error type
	RecordAttempt(outcome string, duration time.Duration)
	// RecordExtraction is called for every page that produced items
	RecordExtraction(strategy string, items, rejected int)
	// RecordFetch is called once per FetchPosts call
	RecordFetch(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(string, time.Duration) {}
func (nopRecorder) RecordExtraction(string, int, int)   {}
func (nopRecorder) RecordFetch(string, time.Duration)   {}
