// Package ratelimit models the rate-limit signals returned by the GitHub API
// and the cooperative throttle applied after successful calls.
package ratelimit

import (
	"time"
)

const (
	// LowWaterMark is the remaining-quota level below which every successful
	// probe or page is followed by ProactivePause.
	LowWaterMark = 50

	// ProactivePause is the fixed pause inserted while quota is below LowWaterMark.
	ProactivePause = 2 * time.Second
)

// Snapshot is the rateLimit object reported alongside every GraphQL response.
// It is read-only and never persisted.
type Snapshot struct {
	// Limit is the hourly point budget.
	Limit int `json:"limit"`

	// Cost is the number of points charged for the query that produced this snapshot.
	Cost int `json:"cost"`

	// Remaining is the number of points left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"resetAt"`
}

// IsLow reports whether remaining quota is below LowWaterMark.
// A nil snapshot is never low.
func (s *Snapshot) IsLow() bool {
	return s != nil && s.Remaining < LowWaterMark
}

// TimeUntilReset returns the duration from now until the window resets.
// Returns 0 if the reset time has already passed.
func (s *Snapshot) TimeUntilReset(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
