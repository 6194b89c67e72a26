package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageType tags the author or purpose of a message.
type MessageType string

const (
	MessageUser       MessageType = "user"
	MessageBot        MessageType = "bot"
	MessageCorrection MessageType = "correction"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageUser, MessageBot, MessageCorrection:
		return true
	}
	return false
}

// CorrectionType categorizes a flagged language issue.
type CorrectionType string

const (
	CorrectionGrammar       CorrectionType = "grammar"
	CorrectionPronunciation CorrectionType = "pronunciation"
	CorrectionVocabulary    CorrectionType = "vocabulary"
	CorrectionFluency       CorrectionType = "fluency"
)

// Valid reports whether t is a known correction category.
func (t CorrectionType) Valid() bool {
	switch t {
	case CorrectionGrammar, CorrectionPronunciation, CorrectionVocabulary, CorrectionFluency:
		return true
	}
	return false
}

// Correction is a single flagged issue with a suggested fix.
type Correction struct {
	Original    string         `json:"original"`
	Corrected   string         `json:"corrected"`
	Explanation string         `json:"explanation"`
	Type        CorrectionType `json:"type"`
}

// MessageMetadata holds optional free-form annotations of a message.
type MessageMetadata struct {
	TopicID       string `json:"topicId,omitempty"`
	Encouragement string `json:"encouragement,omitempty"`
	NextPrompt    string `json:"nextPrompt,omitempty"`
}

// Message is one immutable turn within a session.
type Message struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	Type        MessageType      `json:"type"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
	AudioURL    string           `json:"audioUrl,omitempty"`
	Corrections []Correction     `json:"corrections,omitempty"`
	Metadata    *MessageMetadata `json:"metadata,omitempty"`
}

// MessageDraft carries the caller-supplied fields of a new message.
type MessageDraft struct {
	SessionID   string           `json:"sessionId"`
	Type        MessageType      `json:"type"`
	Content     string           `json:"content"`
	AudioURL    string           `json:"audioUrl,omitempty"`
	Corrections []Correction     `json:"corrections,omitempty"`
	Metadata    *MessageMetadata `json:"metadata,omitempty"`
}

// Normalize validates the draft and defaults correction categories.
func (d *MessageDraft) Normalize() error {
	if strings.TrimSpace(d.SessionID) == "" {
		return fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, d.Type)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	for i := range d.Corrections {
		c := &d.Corrections[i]
		if c.Type == "" {
			c.Type = CorrectionGrammar
		}
		if !c.Type.Valid() {
			return fmt.Errorf("%w: unknown correction type %q", ErrValidation, c.Type)
		}
	}
	return nil
}

// Stats returns the counter contribution of a message with this draft.
// User messages never contribute corrections.
func (d MessageDraft) Stats() StatsDelta {
	delta := StatsDelta{Messages: 1}
	if d.Type != MessageUser {
		delta.Corrections = len(d.Corrections)
	}
	return delta
}
