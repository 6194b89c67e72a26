package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/parla/internal/domain"
	"github.com/ashureev/parla/internal/identity"
	"github.com/ashureev/parla/internal/store"
	"github.com/go-chi/chi/v5"
)

// CreateSession starts a practice session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var draft domain.SessionDraft
	if status, err := h.decode(w, r, &draft); err != nil {
		Error(w, status, err.Error())
		return
	}
	if draft.UserID == "" {
		draft.UserID = identity.UserIDFromContext(r.Context())
	}

	session, err := h.repo.CreateSession(r.Context(), draft)
	if err != nil {
		h.storeError(w, err, "session")
		return
	}
	h.logger.Info("Session created", "session_id", session.ID, "user_id", session.UserID, "topic_id", session.TopicID)
	JSON(w, http.StatusCreated, session)
}

// ListActiveSessions returns every active session.
func (h *Handler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListActiveSessions(r.Context())
	if err != nil {
		h.storeError(w, err, "sessions")
		return
	}
	JSON(w, http.StatusOK, sessions)
}

// GetSession returns one session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.repo.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "session")
		return
	}
	JSON(w, http.StatusOK, session)
}

// UpdateSession merges a partial update. Ending an active session stamps its
// end time and duration when absent and folds it into the user's progress.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch domain.SessionPatch
	if status, err := h.decode(w, r, &patch); err != nil {
		Error(w, status, err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	current, err := h.repo.GetSession(ctx, id)
	if err != nil {
		h.storeError(w, err, "session")
		return
	}

	ending := patch.Ends(current)
	if ending {
		now := h.now().UTC()
		if patch.EndTime == nil {
			patch.EndTime = &now
		}
		if patch.DurationMinutes == nil {
			minutes := current.Elapsed(*patch.EndTime)
			patch.DurationMinutes = &minutes
		}
	}

	session, err := h.repo.UpdateSession(ctx, id, patch)
	if err != nil {
		h.storeError(w, err, "session")
		return
	}

	if ending {
		if err := h.rollUp(ctx, session); err != nil {
			h.logger.Error("Failed to roll up progress", "session_id", id, "user_id", session.UserID, "error", err)
		} else {
			h.logger.Info("Session ended", "session_id", id, "duration", session.DurationMinutes, "accuracy", session.Accuracy)
		}
	}

	JSON(w, http.StatusOK, session)
}

func (h *Handler) rollUp(ctx context.Context, session *domain.Session) error {
	progress, err := h.progressFor(ctx, session.UserID)
	if err != nil {
		return err
	}
	_, err = h.repo.UpsertProgress(ctx, session.UserID, progress.RecordSession(*session, h.now()))
	return err
}

// ListMessages returns a session's messages by time.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	if _, err := h.repo.GetSession(ctx, id); err != nil {
		h.storeError(w, err, "session")
		return
	}
	msgs, err := h.repo.ListMessages(ctx, id)
	if err != nil {
		h.storeError(w, err, "messages")
		return
	}
	JSON(w, http.StatusOK, msgs)
}

// CreateMessage appends a message to a session and bumps its counters.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var draft domain.MessageDraft
	if status, err := h.decode(w, r, &draft); err != nil {
		Error(w, status, err.Error())
		return
	}
	draft.SessionID = id
	if err := draft.Normalize(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if _, err := h.repo.GetSession(ctx, id); err != nil {
		h.storeError(w, err, "session")
		return
	}

	msg, err := h.repo.CreateMessage(ctx, draft)
	if err != nil {
		h.storeError(w, err, "message")
		return
	}
	if _, err := h.repo.ApplySessionStats(ctx, id, draft.Stats()); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("Failed to update session counters", "session_id", id, "error", err)
	}
	JSON(w, http.StatusCreated, msg)
}
