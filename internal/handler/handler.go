package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/tutor/internal/catalog"
	"github.com/pavelanni/tutor/internal/handler/views"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/store"
	"github.com/pavelanni/tutor/internal/tutor"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	tutor   *tutor.Orchestrator
	store   *store.Store // nil when sessions are not recorded
	catalog *catalog.Catalog
	views   *views.Renderer
	config  model.TutorConfig
}

// New creates a new Handler. s may be nil, in which case the login, review
// and admin pages are not served.
func New(t *tutor.Orchestrator, s *store.Store, c *catalog.Catalog, cfg model.TutorConfig) (*Handler, error) {
	v, err := views.New()
	if err != nil {
		return nil, err
	}
	return &Handler{tutor: t, store: s, catalog: c, views: v, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", h.apiRoutes)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleIndex)
		r.Post("/session/start", h.handleStart)
		r.Get("/session/{sessionID}", h.handleSessionPage)
		r.Post("/session/{sessionID}/answer", h.handleAnswer)
		r.Post("/session/{sessionID}/undo", h.handleUndo)
		r.Post("/session/{sessionID}/redo", h.handleRedo)
		r.Post("/session/{sessionID}/end", h.handleEnd)

		if h.store == nil {
			return
		}
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
			r.Get("/review", h.handleReviewList)
			r.Get("/review/{sessionID}", h.handleReviewPage)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/admin/users", h.handleAdminUsersPage)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

// BasePathMiddleware makes the configured URL prefix available to templates.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.basePath())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) basePath() string {
	return strings.TrimRight(h.config.BasePath, "/")
}

func (h *Handler) path(p string) string {
	return h.basePath() + p
}

func (h *Handler) cookiePath() string {
	if bp := h.basePath(); bp != "" {
		return bp + "/"
	}
	return "/"
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.views.Render(r.Context(), w, page, data); err != nil {
		slog.Error("render error", "page", page, "error", err)
	}
}

func (h *Handler) renderMessage(w http.ResponseWriter, r *http.Request, status int, titleID, msgID string) {
	h.render(w, r, status, "message", views.MessageData{
		Title:   appI18n.T(r.Context(), titleID),
		Message: appI18n.T(r.Context(), msgID),
	})
}

// errorStatus maps a tutoring error to an HTTP status.
func errorStatus(err error) int {
	var ive *model.InvalidValueError
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, tutor.ErrNoPendingQuestion),
		errors.Is(err, tutor.ErrNothingToUndo),
		errors.Is(err, tutor.ErrNothingToRedo):
		return http.StatusConflict
	case errors.As(err, &ive):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrInvalidScore), errors.Is(err, model.ErrOracleMalformedResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorMessageID picks the translated message shown for a failed turn.
func errorMessageID(err error) string {
	var ive *model.InvalidValueError
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return "SessionNotFound"
	case errors.As(err, &ive) && ive.Field == "answer":
		return "ErrorEmptyAnswer"
	case errors.As(err, &ive):
		return "ErrorInvalidInput"
	case errors.Is(err, model.ErrOracleUnavailable):
		return "ErrorUnavailable"
	}
	return "ErrorRetry"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.tutor.Len(),
		"recorded": h.store != nil,
	})
}
