// Package models defines the core data structures shared across the
// mediadrop service.
package models

import "time"

// Post captures the metadata recorded for one uploaded media post. A post
// is created once per successful upload request and never mutated
// afterwards.
type Post struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Country      string    `json:"country,omitempty"`
	City         string    `json:"city,omitempty"`
	Server       string    `json:"server,omitempty"`
	NSFW         bool      `json:"nsfw"`
	MediaFiles   []string  `json:"mediaFiles"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Clone returns a deep copy so callers cannot mutate stored state through
// the shared MediaFiles slice.
func (p Post) Clone() Post {
	clone := p
	if p.MediaFiles != nil {
		clone.MediaFiles = append([]string(nil), p.MediaFiles...)
	}
	return clone
}
