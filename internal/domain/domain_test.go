package domain

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestSessionDraftNormalize(t *testing.T) {
	d := SessionDraft{UserID: "  ", TopicID: " travel "}
	if err := d.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if d.UserID != GuestUserID || d.TopicID != "travel" || !d.Active() {
		t.Errorf("draft = %+v", d)
	}

	d = SessionDraft{IsActive: ptr(false)}
	if d.Active() {
		t.Error("explicit false must be honoured")
	}
}

func TestSessionPatchValidate(t *testing.T) {
	tests := []struct {
		name  string
		patch SessionPatch
		ok    bool
	}{
		{"empty", SessionPatch{}, true},
		{"accuracy in range", SessionPatch{Accuracy: ptr(100)}, true},
		{"accuracy too high", SessionPatch{Accuracy: ptr(101)}, false},
		{"negative messages", SessionPatch{MessagesCount: ptr(-1)}, false},
		{"negative duration", SessionPatch{DurationMinutes: ptr(-5)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSessionPatchApplyKeepsUnsetFields(t *testing.T) {
	s := &Session{MessagesCount: 4, CorrectionsCount: 1, Accuracy: 80, TopicID: "food", IsActive: true}
	SessionPatch{Accuracy: ptr(90)}.Apply(s)
	if s.MessagesCount != 4 || s.CorrectionsCount != 1 || s.TopicID != "food" || s.Accuracy != 90 {
		t.Errorf("session = %+v", s)
	}

	p := SessionPatch{IsActive: ptr(false)}
	if !p.Ends(s) {
		t.Error("expected patch to end an active session")
	}
	p.Apply(s)
	if p.Ends(s) {
		t.Error("an inactive session cannot end twice")
	}
}

func TestStatsDeltaAndElapsed(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{StartTime: start, Accuracy: 100}
	StatsDelta{Messages: 2, Corrections: 3, Accuracy: ptr(140)}.Apply(s)
	if s.MessagesCount != 2 || s.CorrectionsCount != 3 || s.Accuracy != 100 {
		t.Errorf("session = %+v", s)
	}
	StatsDelta{Messages: 1}.Apply(s)
	if s.Accuracy != 100 {
		t.Error("nil accuracy must keep the stored score")
	}

	if got := s.Elapsed(start.Add(25*time.Minute + 40*time.Second)); got != 26 {
		t.Errorf("Elapsed = %d, want 26", got)
	}
	if got := s.Elapsed(start.Add(-time.Hour)); got != 0 {
		t.Errorf("Elapsed before start = %d, want 0", got)
	}
}

func TestMessageDraftNormalize(t *testing.T) {
	d := MessageDraft{
		SessionID:   "s1",
		Type:        MessageBot,
		Content:     "Nice!",
		Corrections: []Correction{{Original: "a", Corrected: "b"}},
	}
	if err := d.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if d.Corrections[0].Type != CorrectionGrammar {
		t.Errorf("default type = %q", d.Corrections[0].Type)
	}
	if got := d.Stats(); got.Messages != 1 || got.Corrections != 1 {
		t.Errorf("Stats = %+v", got)
	}

	user := MessageDraft{SessionID: "s1", Type: MessageUser, Content: "hi", Corrections: []Correction{{}}}
	if got := user.Stats(); got.Corrections != 0 {
		t.Errorf("user message corrections = %d, want 0", got.Corrections)
	}

	for _, bad := range []MessageDraft{
		{Type: MessageUser, Content: "x"},
		{SessionID: "s1", Type: "shout", Content: "x"},
		{SessionID: "s1", Type: MessageUser, Content: "  "},
		{SessionID: "s1", Type: MessageBot, Content: "x", Corrections: []Correction{{Type: "spelling"}}},
	} {
		if err := bad.Normalize(); !errors.Is(err, ErrValidation) {
			t.Errorf("Normalize(%+v) = %v, want ErrValidation", bad, err)
		}
	}
}

func TestProgressPatchMergesAchievements(t *testing.T) {
	p := &UserProgress{Achievements: []string{AchievementFirstSession}}
	ProgressPatch{TotalMinutes: ptr(30), Achievements: []string{AchievementFirstSession, AchievementFlawless}}.Apply(p)
	if p.TotalMinutes != 30 || len(p.Achievements) != 2 {
		t.Errorf("progress = %+v", p)
	}
	if err := (ProgressPatch{AverageAccuracy: ptr(120)}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate = %v, want ErrValidation", err)
	}
}

func TestRecordSession(t *testing.T) {
	day := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	var p UserProgress

	patch := p.RecordSession(Session{DurationMinutes: 20, Accuracy: 80, MessagesCount: 4}, day)
	patch.Apply(&p)
	if p.TotalSessions != 1 || p.TotalMinutes != 20 || p.AverageAccuracy != 80 || p.CurrentStreak != 1 {
		t.Fatalf("after first = %+v", p)
	}
	if !slices.Contains(p.Achievements, AchievementFirstSession) || !slices.Contains(p.Achievements, AchievementFlawless) {
		t.Errorf("achievements = %v", p.Achievements)
	}

	p.RecordSession(Session{DurationMinutes: 10, Accuracy: 100}, day.Add(time.Hour)).Apply(&p)
	if p.CurrentStreak != 1 || p.AverageAccuracy != 90 {
		t.Errorf("same day = %+v", p)
	}

	p.RecordSession(Session{DurationMinutes: 40, Accuracy: 60}, day.Add(24*time.Hour)).Apply(&p)
	if p.CurrentStreak != 2 || p.TotalMinutes != 70 {
		t.Errorf("next day = %+v", p)
	}
	if !slices.Contains(p.Achievements, AchievementHourPracticed) {
		t.Errorf("achievements = %v, want hour_of_practice", p.Achievements)
	}

	p.RecordSession(Session{Accuracy: 50}, day.Add(96*time.Hour)).Apply(&p)
	if p.CurrentStreak != 1 {
		t.Errorf("after gap streak = %d, want 1", p.CurrentStreak)
	}
}
