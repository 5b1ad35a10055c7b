package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/tutor/internal/handler/views"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/tutor"
)

// startRequest turns the start form into an orchestrator request. A custom
// topic replaces the catalogue topic; an empty level means undergraduate.
func startRequest(f views.StartForm) (tutor.StartRequest, error) {
	topic := strings.TrimSpace(f.CustomTopic)
	if topic == "" {
		topic = strings.TrimSpace(f.Topic)
	}

	level := model.LevelUndergrad
	if strings.TrimSpace(f.Level) != "" {
		var err error
		level, err = model.ParseEducationLevel(f.Level)
		if err != nil {
			return tutor.StartRequest{}, err
		}
	}

	difficulty, err := model.ParseDifficulty(f.InitialDifficulty)
	if err != nil {
		return tutor.StartRequest{}, err
	}

	return tutor.StartRequest{
		Department:        f.Department,
		Topic:             topic,
		Level:             level,
		InitialDifficulty: difficulty,
		Background:        f.Background,
		Instructions:      f.Instructions,
	}, nil
}

func (h *Handler) indexData(form views.StartForm) views.IndexData {
	return views.IndexData{
		Catalog:      h.catalog,
		Levels:       model.EducationLevels,
		Difficulties: []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard},
		Form:         form,
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	form := views.StartForm{
		Level:             string(model.LevelUndergrad),
		InitialDifficulty: string(h.config.InitialDifficulty),
	}
	h.render(w, r, http.StatusOK, "index", h.indexData(form))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	form := views.StartForm{
		Department:        r.FormValue("department"),
		Topic:             r.FormValue("topic"),
		CustomTopic:       r.FormValue("custom_topic"),
		Level:             r.FormValue("education_level"),
		InitialDifficulty: r.FormValue("initial_difficulty"),
		Background:        r.FormValue("background"),
		Instructions:      r.FormValue("instructions"),
	}

	req, err := startRequest(form)
	if err == nil {
		var id string
		id, _, err = h.tutor.Start(r.Context(), req)
		if err == nil {
			http.Redirect(w, r, h.path("/session/"+id), http.StatusSeeOther)
			return
		}
	}

	slog.Warn("start session rejected", "error", err)
	data := h.indexData(form)
	data.Error = appI18n.T(r.Context(), errorMessageID(err)) + " (" + err.Error() + ")"
	h.render(w, r, errorStatus(err), "index", data)
}

// handleSessionPage shows the session. The first question is generated here
// when none is pending yet.
func (h *Handler) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	status := http.StatusOK
	var turnErr error
	snap, err := h.tutor.Get(id)
	if err == nil && snap.Pending == nil {
		if _, turnErr = h.tutor.SubmitTurn(r.Context(), id, nil); turnErr != nil {
			slog.Warn("question generation failed", "session", id, "error", turnErr)
			status = errorStatus(turnErr)
		}
		snap, err = h.tutor.Get(id)
	}
	if err != nil {
		h.renderMessage(w, r, errorStatus(err), "AppTitle", errorMessageID(err))
		return
	}

	data := views.NewSessionData(snap, h.config.HistoryWindow)
	if turnErr != nil {
		data.Error = appI18n.T(r.Context(), errorMessageID(turnErr))
	}
	h.render(w, r, status, "session", data)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	answer := r.FormValue("answer")

	_, err := h.tutor.SubmitTurn(r.Context(), id, &answer)
	if err == nil {
		http.Redirect(w, r, h.path("/session/"+id), http.StatusSeeOther)
		return
	}

	slog.Warn("turn failed", "session", id, "error", err, "retryable", model.Retryable(err))
	snap, gerr := h.tutor.Get(id)
	if gerr != nil {
		h.renderMessage(w, r, errorStatus(gerr), "AppTitle", errorMessageID(gerr))
		return
	}
	data := views.NewSessionData(snap, h.config.HistoryWindow)
	data.Error = appI18n.T(r.Context(), errorMessageID(err))
	data.Draft = answer
	h.render(w, r, errorStatus(err), "session", data)
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	_, err := h.tutor.Undo(r.Context(), id)
	h.afterHistoryStep(w, r, id, err)
}

func (h *Handler) handleRedo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	_, err := h.tutor.Redo(r.Context(), id)
	h.afterHistoryStep(w, r, id, err)
}

func (h *Handler) afterHistoryStep(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, model.ErrSessionNotFound) {
		h.renderMessage(w, r, http.StatusNotFound, "AppTitle", "SessionNotFound")
		return
	}
	if err != nil {
		slog.Debug("history step ignored", "session", id, "error", err)
	}
	http.Redirect(w, r, h.path("/session/"+id), http.StatusSeeOther)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.tutor.End(r.Context(), id); err != nil {
		slog.Debug("end session", "session", id, "error", err)
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}
