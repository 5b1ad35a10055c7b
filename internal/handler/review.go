package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/tutor/internal/handler/views"
)

func (h *Handler) handleReviewList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "review_list", views.ReviewListData{Sessions: sessions})
}

func (h *Handler) handleReviewPage(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		slog.Error("failed to load session", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		h.renderMessage(w, r, http.StatusNotFound, "Review", "SessionNotFound")
		return
	}

	scores := make([]int, 0, len(rec.Turns))
	for _, t := range rec.Turns {
		scores = append(scores, t.Answer.Score)
	}
	h.render(w, r, http.StatusOK, "review", views.ReviewData{Session: rec, Chart: views.NewChart(scores)})
}
