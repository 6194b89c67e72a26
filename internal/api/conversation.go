package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ashureev/parla/internal/conversation"
	"github.com/ashureev/parla/internal/identity"
	"github.com/ashureev/parla/internal/practice"
	"github.com/ashureev/parla/internal/store"
)

type conversationRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	TopicID   string `json:"topicId,omitempty"`
}

// ConversationMessage processes one utterance outside the relay.
// A reply is always returned; model failures yield the fallback reply.
func (h *Handler) ConversationMessage(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if status, err := h.decode(w, r, &req); err != nil {
		Error(w, status, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	turn := practice.Turn{
		UserID:  identity.UserIDFromContext(ctx),
		TopicID: req.TopicID,
		Text:    req.Message,
		Channel: "rest",
	}
	if req.SessionID != "" {
		session, err := h.repo.GetSession(ctx, req.SessionID)
		switch {
		case err == nil:
			turn.SessionID = session.ID
			turn.UserID = session.UserID
			if turn.TopicID == "" {
				turn.TopicID = session.TopicID
			}
			turn.History = h.runner.LoadHistory(ctx, session.ID)
		case errors.Is(err, store.ErrNotFound):
			h.logger.Info("Conversation message for unknown session", "session_id", req.SessionID)
		default:
			h.logger.Warn("Session lookup failed, continuing without persistence", "session_id", req.SessionID, "error", err)
		}
	}

	out, err := h.runner.ProcessTurn(ctx, turn)
	if errors.Is(err, conversation.ErrEmptyText) {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	JSON(w, http.StatusOK, out)
}
