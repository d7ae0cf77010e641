package models

import "time"

// DefaultIdleThreshold is the quiet period after the last edit before a digest
const DefaultIdleThreshold = 30 * time.Minute

// AlbumEditState tracks debounced edit notifications for one album
type AlbumEditState struct {
	AlbumID            int64      `json:"albumId"`
	LastEditDetectedAt time.Time  `json:"lastEditDetectedAt"`
	LastNotifiedAt     *time.Time `json:"lastNotifiedAt,omitempty"`
}

// IsEligible reports whether a digest is due at now
func (s *AlbumEditState) IsEligible(now time.Time, idle time.Duration) bool {
	if now.Sub(s.LastEditDetectedAt) < idle {
		return false
	}
	return s.LastNotifiedAt == nil || s.LastNotifiedAt.Before(s.LastEditDetectedAt)
}

// JobLease is a persisted single-flight claim on a background job
type JobLease struct {
	Name      string    `json:"name"`
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expiresAt"`
}
