// Package domain contains core domain types for the Parla practice service.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// GuestUserID is the identity used when no user id is supplied.
const GuestUserID = "guest"

const maxTopicIDLength = 64

// ErrValidation marks a draft or patch that was rejected before any mutation.
var ErrValidation = errors.New("validation failed")

// Session is the bookkeeping record of one practice conversation.
type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	DurationMinutes  int        `json:"duration"`
	MessagesCount    int        `json:"messagesCount"`
	CorrectionsCount int        `json:"correctionsCount"`
	Accuracy         int        `json:"accuracy"`
	TopicID          string     `json:"topicId,omitempty"`
	IsActive         bool       `json:"isActive"`
}

// SessionDraft carries the caller-supplied fields of a new session.
type SessionDraft struct {
	UserID   string `json:"userId"`
	TopicID  string `json:"topicId,omitempty"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// Normalize fills defaults and validates the draft.
func (d *SessionDraft) Normalize() error {
	d.UserID = strings.TrimSpace(d.UserID)
	if d.UserID == "" {
		d.UserID = GuestUserID
	}
	d.TopicID = strings.TrimSpace(d.TopicID)
	if len(d.TopicID) > maxTopicIDLength {
		return fmt.Errorf("%w: topicId longer than %d characters", ErrValidation, maxTopicIDLength)
	}
	return nil
}

// Active reports the initial active flag, true unless the draft says otherwise.
func (d SessionDraft) Active() bool {
	return d.IsActive == nil || *d.IsActive
}

// SessionPatch is a partial update; nil fields keep their prior value.
type SessionPatch struct {
	EndTime          *time.Time `json:"endTime,omitempty"`
	DurationMinutes  *int       `json:"duration,omitempty"`
	MessagesCount    *int       `json:"messagesCount,omitempty"`
	CorrectionsCount *int       `json:"correctionsCount,omitempty"`
	Accuracy         *int       `json:"accuracy,omitempty"`
	TopicID          *string    `json:"topicId,omitempty"`
	IsActive         *bool      `json:"isActive,omitempty"`
}

// Validate rejects patches carrying out-of-range values.
func (p SessionPatch) Validate() error {
	if p.Accuracy != nil && (*p.Accuracy < 0 || *p.Accuracy > 100) {
		return fmt.Errorf("%w: accuracy must be between 0 and 100", ErrValidation)
	}
	for name, v := range map[string]*int{
		"duration":         p.DurationMinutes,
		"messagesCount":    p.MessagesCount,
		"correctionsCount": p.CorrectionsCount,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrValidation, name)
		}
	}
	if p.TopicID != nil && len(*p.TopicID) > maxTopicIDLength {
		return fmt.Errorf("%w: topicId longer than %d characters", ErrValidation, maxTopicIDLength)
	}
	return nil
}

// Apply merges the patch into s.
func (p SessionPatch) Apply(s *Session) {
	if p.EndTime != nil {
		t := *p.EndTime
		s.EndTime = &t
	}
	if p.DurationMinutes != nil {
		s.DurationMinutes = *p.DurationMinutes
	}
	if p.MessagesCount != nil {
		s.MessagesCount = *p.MessagesCount
	}
	if p.CorrectionsCount != nil {
		s.CorrectionsCount = *p.CorrectionsCount
	}
	if p.Accuracy != nil {
		s.Accuracy = *p.Accuracy
	}
	if p.TopicID != nil {
		s.TopicID = *p.TopicID
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
}

// Ends reports whether applying the patch to an active session closes it.
func (p SessionPatch) Ends(s *Session) bool {
	return s.IsActive && p.IsActive != nil && !*p.IsActive
}

// StatsDelta is an incremental counter update applied after a turn.
// A nil Accuracy leaves the stored score untouched.
type StatsDelta struct {
	Messages    int
	Corrections int
	Accuracy    *int
}

// Apply adds the delta to s.
func (d StatsDelta) Apply(s *Session) {
	s.MessagesCount += d.Messages
	s.CorrectionsCount += d.Corrections
	if d.Accuracy != nil {
		s.Accuracy = ClampPercent(*d.Accuracy)
	}
}

// Elapsed returns whole minutes between start and end, never negative.
func (s *Session) Elapsed(end time.Time) int {
	m := int(math.Round(end.Sub(s.StartTime).Minutes()))
	if m < 0 {
		return 0
	}
	return m
}

// ClampPercent limits v to [0, 100].
func ClampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
