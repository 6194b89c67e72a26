package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Achievement identifiers awarded by RecordSession.
const (
	AchievementFirstSession  = "first_session"
	AchievementThreeDayRun   = "three_day_streak"
	AchievementWeekRun       = "seven_day_streak"
	AchievementTenSessions   = "ten_sessions"
	AchievementHourPracticed = "hour_of_practice"
	AchievementFlawless      = "flawless_session"
)

// UserProgress aggregates statistics across a user's sessions.
type UserProgress struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	TotalSessions   int        `json:"totalSessions"`
	TotalMinutes    int        `json:"totalMinutes"`
	CurrentStreak   int        `json:"currentStreak"`
	LastSessionDate *time.Time `json:"lastSessionDate,omitempty"`
	AverageAccuracy int        `json:"averageAccuracy"`
	Achievements    []string   `json:"achievements"`
}

// ProgressPatch is a partial update; nil fields keep their prior value.
// Achievements are merged into the existing set, never removed.
type ProgressPatch struct {
	TotalSessions   *int       `json:"totalSessions,omitempty"`
	TotalMinutes    *int       `json:"totalMinutes,omitempty"`
	CurrentStreak   *int       `json:"currentStreak,omitempty"`
	LastSessionDate *time.Time `json:"lastSessionDate,omitempty"`
	AverageAccuracy *int       `json:"averageAccuracy,omitempty"`
	Achievements    []string   `json:"achievements,omitempty"`
}

// Validate rejects negative counters and out-of-range accuracy.
func (p ProgressPatch) Validate() error {
	for name, v := range map[string]*int{
		"totalSessions": p.TotalSessions,
		"totalMinutes":  p.TotalMinutes,
		"currentStreak": p.CurrentStreak,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrValidation, name)
		}
	}
	if p.AverageAccuracy != nil && (*p.AverageAccuracy < 0 || *p.AverageAccuracy > 100) {
		return fmt.Errorf("%w: averageAccuracy must be between 0 and 100", ErrValidation)
	}
	return nil
}

// Apply merges the patch into dst.
func (p ProgressPatch) Apply(dst *UserProgress) {
	if p.TotalSessions != nil {
		dst.TotalSessions = *p.TotalSessions
	}
	if p.TotalMinutes != nil {
		dst.TotalMinutes = *p.TotalMinutes
	}
	if p.CurrentStreak != nil {
		dst.CurrentStreak = *p.CurrentStreak
	}
	if p.LastSessionDate != nil {
		t := *p.LastSessionDate
		dst.LastSessionDate = &t
	}
	if p.AverageAccuracy != nil {
		dst.AverageAccuracy = *p.AverageAccuracy
	}
	for _, a := range p.Achievements {
		dst.Award(a)
	}
}

// Award adds an achievement if it is not already held.
func (p *UserProgress) Award(id string) {
	if id == "" || slices.Contains(p.Achievements, id) {
		return
	}
	p.Achievements = append(p.Achievements, id)
}

// RecordSession returns the patch that folds a finished session into p.
// Streaks count consecutive calendar days (UTC) with at least one session.
func (p UserProgress) RecordSession(s Session, now time.Time) ProgressPatch {
	sessions := p.TotalSessions + 1
	minutes := p.TotalMinutes + s.DurationMinutes

	avg := int(math.Round(float64(p.AverageAccuracy*p.TotalSessions+s.Accuracy) / float64(sessions)))
	avg = ClampPercent(avg)

	today := now.UTC().Truncate(24 * time.Hour)
	streak := 1
	if p.LastSessionDate != nil {
		last := p.LastSessionDate.UTC().Truncate(24 * time.Hour)
		switch today.Sub(last) {
		case 0:
			streak = max(p.CurrentStreak, 1)
		case 24 * time.Hour:
			streak = p.CurrentStreak + 1
		}
	}

	var awards []string
	if sessions == 1 {
		awards = append(awards, AchievementFirstSession)
	}
	if sessions >= 10 {
		awards = append(awards, AchievementTenSessions)
	}
	if streak >= 3 {
		awards = append(awards, AchievementThreeDayRun)
	}
	if streak >= 7 {
		awards = append(awards, AchievementWeekRun)
	}
	if minutes >= 60 {
		awards = append(awards, AchievementHourPracticed)
	}
	if s.MessagesCount > 0 && s.CorrectionsCount == 0 {
		awards = append(awards, AchievementFlawless)
	}

	return ProgressPatch{
		TotalSessions:   &sessions,
		TotalMinutes:    &minutes,
		CurrentStreak:   &streak,
		LastSessionDate: &today,
		AverageAccuracy: &avg,
		Achievements:    awards,
	}
}
