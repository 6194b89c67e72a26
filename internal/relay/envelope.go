package relay

import (
	"encoding/json"

	"github.com/ashureev/parla/internal/domain"
)

// Inbound envelope types.
const (
	TypeAudioStart  = "audio_start"
	TypeAudioChunk  = "audio_chunk"
	TypeAudioEnd    = "audio_end"
	TypeTextMessage = "text_message"
)

// Outbound envelope types. text_message is shared with inbound.
const (
	TypeCorrection    = "correction"
	TypeSessionUpdate = "session_update"
)

// session_update statuses.
const (
	StatusSessionStarted = "session_started"
	StatusListening      = "listening"
	StatusNoSpeech       = "no_speech"
	StatusError          = "error"
)

// Envelope is the tagged frame exchanged on the relay.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type outbound struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	SessionID string `json:"sessionId,omitempty"`
}

type contentPayload struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	TopicID    string `json:"topicId"`
}

func (p contentPayload) content() string {
	if p.Transcript != "" {
		return p.Transcript
	}
	return p.Text
}

// ReplyPayload is pushed as text_message after a processed turn.
type ReplyPayload struct {
	Reply         string              `json:"reply"`
	Corrections   []domain.Correction `json:"corrections"`
	Encouragement string              `json:"encouragement"`
	NextPrompt    string              `json:"nextPrompt,omitempty"`
	Accuracy      int                 `json:"accuracy"`
	MessageID     string              `json:"messageId,omitempty"`
	Degraded      bool                `json:"degraded,omitempty"`
}

// CorrectionPayload is pushed after a reply that carried corrections.
type CorrectionPayload struct {
	Corrections []domain.Correction `json:"corrections"`
	Original    string              `json:"original"`
}

// StatusPayload is the body of a session_update.
type StatusPayload struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}
