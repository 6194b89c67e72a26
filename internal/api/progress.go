package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/parla/internal/domain"
	"github.com/ashureev/parla/internal/store"
	"github.com/go-chi/chi/v5"
)

// GetProgress returns a user's progress, creating a zeroed record on first access.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.progressFor(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.storeError(w, err, "progress")
		return
	}
	JSON(w, http.StatusOK, progress)
}

// UpdateProgress merges a partial update into a user's progress.
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProgressPatch
	if status, err := h.decode(w, r, &patch); err != nil {
		Error(w, status, err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	progress, err := h.repo.UpsertProgress(r.Context(), chi.URLParam(r, "userId"), patch)
	if err != nil {
		h.storeError(w, err, "progress")
		return
	}
	JSON(w, http.StatusOK, progress)
}

func (h *Handler) progressFor(ctx context.Context, userID string) (*domain.UserProgress, error) {
	progress, err := h.repo.GetProgress(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return h.repo.UpsertProgress(ctx, userID, domain.ProgressPatch{})
	}
	return progress, err
}
