package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/washpark/washpark/internal/platform/httpx"
	"github.com/washpark/washpark/internal/session"
)

// Handler manages login and logout endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    session.Middleware
	validate *validator.Validate
	ttl      time.Duration
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard session.Middleware, ttl time.Duration) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New(), ttl: ttl}
}

// MountRoutes registers auth routes. Login gets a tight per-IP rate limit
// on top of the global one.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/login", h.login)
	})
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.guard.WriteCookie(w, sess.ID(), int(h.ttl.Seconds()))
	actor := sess.Actor()
	h.logger.Info("login", slog.Int64("staff_id", actor.StaffID), slog.Int64("role_id", actor.RoleID))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"staff_id":  actor.StaffID,
		"role_id":   actor.RoleID,
		"tenant_id": actor.TenantID,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess != nil {
		if err := h.service.Logout(r.Context(), sess.ID()); err != nil {
			h.logger.Warn("logout", slog.Any("error", err))
		}
	}
	h.guard.WriteCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// me returns the caller's resolved identity and effective permission count,
// the cheap way for screens to bootstrap their gating.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	actor := sess.Actor()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"staff_id":  actor.StaffID,
		"role_id":   actor.RoleID,
		"tenant_id": actor.TenantID,
		"archetype": actor.Archetype,
		"level":     actor.Level,
	})
}
