// Package models holds the record types shared across the scraping pipeline.
package models

// Post is the canonical, schema-stable record for one video on a profile.
// Field names in JSON follow the public API response format.
type Post struct {
	ID          string `json:"video_id"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PostedAt    int64  `json:"epoch_time_posted"`
	Views       int64  `json:"views"`
	Likes       int64  `json:"likes"`
	Comments    int64  `json:"comments"`
	Shares      int64  `json:"shares"`
}

// Engagement returns the sum of likes, comments and shares.
func (p Post) Engagement() int64 {
	return p.Likes + p.Comments + p.Shares
}
