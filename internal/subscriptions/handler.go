package subscriptions

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/propdesk/propdesk/internal/platform/httpx"
	"github.com/propdesk/propdesk/internal/rbac"
	"github.com/propdesk/propdesk/internal/shared"
)

// Handler manages subscription endpoints.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, validator: validator.New(), rbac: mw}
}

// MountRoutes registers subscription routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceSubscription)).Get("/users/{userID}", h.getForUser)
		r.With(h.rbac.RequirePermission(rbac.ActionCreate, rbac.ResourceSubscription)).Post("/", h.create)
		r.With(h.rbac.RequirePermission(rbac.ActionUpdate, rbac.ResourceSubscription)).Post("/{id}/cancel", h.cancel)
	})
	r.Get("/me/subscription", h.getMine)
}

func (h *Handler) getMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := rbac.CurrentUserID(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	sub, err := h.repo.GetActiveByUser(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) getForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	sub, err := h.repo.GetActiveByUser(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

type createSubscriptionRequest struct {
	UserID    int64      `json:"user_id" validate:"required"`
	Plan      string     `json:"plan" validate:"required,oneof=free starter pro enterprise"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sub, err := h.repo.Create(r.Context(), req.UserID, req.Plan, req.ExpiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("subscription created", "user_id", req.UserID, "plan", req.Plan)
	httpx.JSON(w, http.StatusCreated, sub)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid subscription id")
		return
	}
	if err := h.repo.Cancel(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
