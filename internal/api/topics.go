package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListTopics returns all active topics.
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.repo.ListTopics(r.Context())
	if err != nil {
		h.storeError(w, err, "topics")
		return
	}
	JSON(w, http.StatusOK, topics)
}

// GetTopic returns one topic.
func (h *Handler) GetTopic(w http.ResponseWriter, r *http.Request) {
	topic, err := h.repo.GetTopic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "topic")
		return
	}
	JSON(w, http.StatusOK, topic)
}
