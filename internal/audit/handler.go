package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/propdesk/propdesk/internal/platform/httpx"
	"github.com/propdesk/propdesk/internal/shared"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	logger *slog.Logger
	audit  *Logger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, auditLogger *Logger) *Handler {
	return &Handler{logger: logger, audit: auditLogger}
}

// MountRoutes registers audit routes. The caller wraps this group in the
// admin-panel permission check.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	entries, total, err := h.audit.List(r.Context(), shared.PageRequest(page, perPage))
	if err != nil {
		h.logger.Error("audit list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}
