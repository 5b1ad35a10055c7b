package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/tutor/internal/catalog"
	"github.com/pavelanni/tutor/internal/handler/views"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
	"github.com/pavelanni/tutor/internal/tutor"
)

const maxBodyBytes = 1 << 20

func (h *Handler) apiRoutes(r chi.Router) {
	r.Get("/catalog", h.apiCatalog)
	r.Post("/sessions", h.apiStart)
	r.Get("/sessions/{sessionID}", h.apiGet)
	r.Delete("/sessions/{sessionID}", h.apiEnd)
	r.Post("/sessions/{sessionID}/turns", h.apiTurn)
	r.Post("/sessions/{sessionID}/undo", h.apiUndo)
	r.Post("/sessions/{sessionID}/redo", h.apiRedo)
}

type startBody struct {
	Department        string `json:"department"`
	Topic             string `json:"topic"`
	CustomTopic       string `json:"custom_topic"`
	EducationLevel    string `json:"education_level"`
	InitialDifficulty string `json:"initial_difficulty"`
	Background        string `json:"background"`
	Instructions      string `json:"instructions"`
}

type turnBody struct {
	// Answer is omitted on the first call of a session.
	Answer *string `json:"answer"`
}

type metricsView struct {
	QuestionsAsked int                      `json:"questions_asked"`
	AverageScore   float64                  `json:"average_score"`
	Understanding  int                      `json:"understanding"`
	Mastery        []session.ConceptMastery `json:"mastery"`
}

type sessionView struct {
	ID        string          `json:"id"`
	State     session.State   `json:"state"`
	Pending   *model.Question `json:"pending_question"`
	StartedAt time.Time       `json:"started_at"`
	CanUndo   bool            `json:"can_undo"`
	CanRedo   bool            `json:"can_redo"`
	Metrics   metricsView     `json:"metrics"`
}

type turnView struct {
	Question   *model.Question   `json:"question"`
	Evaluation *model.Answer     `json:"evaluation,omitempty"`
	Band       session.ScoreBand `json:"band,omitempty"`
	State      session.State     `json:"state"`
}

type levelView struct {
	ID    model.EducationLevel `json:"id"`
	Label string               `json:"label"`
}

type catalogView struct {
	Departments  []catalog.Department `json:"departments"`
	Levels       []levelView          `json:"education_levels"`
	Difficulties []model.Difficulty   `json:"difficulties"`
}

type errorView struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (h *Handler) newSessionView(snap tutor.Snapshot) sessionView {
	s := snap.State
	return sessionView{
		ID:        snap.ID,
		State:     s,
		Pending:   snap.Pending,
		StartedAt: snap.StartedAt,
		CanUndo:   snap.CanUndo,
		CanRedo:   snap.CanRedo,
		Metrics: metricsView{
			QuestionsAsked: s.TurnCount,
			AverageScore:   session.Average(s.Scores),
			Understanding:  session.Understanding(s.Scores, h.config.HistoryWindow),
			Mastery:        session.Mastery(s),
		},
	}
}

func (h *Handler) apiCatalog(w http.ResponseWriter, r *http.Request) {
	levels := make([]levelView, 0, len(model.EducationLevels))
	for _, l := range model.EducationLevels {
		levels = append(levels, levelView{ID: l, Label: l.Label()})
	}
	writeJSON(w, http.StatusOK, catalogView{
		Departments:  h.catalog.Departments,
		Levels:       levels,
		Difficulties: []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard},
	})
}

func (h *Handler) apiStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: err.Error()})
		return
	}
	req, err := startRequest(views.StartForm{
		Department:        body.Department,
		Topic:             body.Topic,
		CustomTopic:       body.CustomTopic,
		Level:             body.EducationLevel,
		InitialDifficulty: body.InitialDifficulty,
		Background:        body.Background,
		Instructions:      body.Instructions,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	id, _, err := h.tutor.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.tutor.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", h.path("/api/sessions/"+id))
	writeJSON(w, http.StatusCreated, h.newSessionView(snap))
}

func (h *Handler) apiGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.tutor.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newSessionView(snap))
}

func (h *Handler) apiTurn(w http.ResponseWriter, r *http.Request) {
	var body turnBody
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: err.Error()})
		return
	}
	res, err := h.tutor.SubmitTurn(r.Context(), chi.URLParam(r, "sessionID"), body.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	v := turnView{Question: res.Question, Evaluation: res.Evaluation, State: res.State}
	if res.Evaluation != nil {
		v.Band = session.Band(res.Evaluation.Score)
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) apiUndo(w http.ResponseWriter, r *http.Request) {
	snap, err := h.tutor.Undo(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newSessionView(snap))
}

func (h *Handler) apiRedo(w http.ResponseWriter, r *http.Request) {
	snap, err := h.tutor.Redo(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newSessionView(snap))
}

func (h *Handler) apiEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.tutor.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads a JSON body. An empty body decodes to the zero value.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("api request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorView{Error: err.Error(), Retryable: model.Retryable(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
