package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/propdesk/propdesk/internal/platform/httpx"
	"github.com/propdesk/propdesk/internal/rbac"
)

// Handler manages master data endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: mw}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/propfirms", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourcePropfirm)).Get("/", h.listPropfirms)
		r.With(h.rbac.RequirePermission(rbac.ActionCreate, rbac.ResourcePropfirm)).Post("/", h.createPropfirm)
		r.With(h.rbac.RequirePermission(rbac.ActionDelete, rbac.ResourcePropfirm)).Delete("/{id}", h.deletePropfirm)
	})
	r.Route("/brokers", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceBroker)).Get("/", h.listBrokers)
		r.With(h.rbac.RequirePermission(rbac.ActionCreate, rbac.ResourceBroker)).Post("/", h.createBroker)
		r.With(h.rbac.RequirePermission(rbac.ActionDelete, rbac.ResourceBroker)).Delete("/{id}", h.deleteBroker)
	})
	r.Route("/symbols", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceSymbol)).Get("/", h.listSymbols)
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceSymbol)).Get("/{code}", h.getSymbol)
		r.With(h.rbac.RequirePermission(rbac.ActionCreate, rbac.ResourceSymbol)).Post("/", h.createSymbol)
	})
}

func (h *Handler) listPropfirms(w http.ResponseWriter, r *http.Request) {
	firms, err := h.service.ListPropfirms(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if firms == nil {
		firms = []Propfirm{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"propfirms": firms})
}

type createPropfirmRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Website     string `json:"website" validate:"omitempty,url"`
	Description string `json:"description"`
}

func (h *Handler) createPropfirm(w http.ResponseWriter, r *http.Request) {
	var req createPropfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	firm, err := h.service.CreatePropfirm(r.Context(), Propfirm{
		Name: req.Name, Website: req.Website, Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, firm)
}

func (h *Handler) deletePropfirm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid propfirm id")
		return
	}
	if err := h.service.DeletePropfirm(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listBrokers(w http.ResponseWriter, r *http.Request) {
	brokers, err := h.service.ListBrokers(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if brokers == nil {
		brokers = []Broker{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"brokers": brokers})
}

type createBrokerRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Website     string `json:"website" validate:"omitempty,url"`
	Description string `json:"description"`
}

func (h *Handler) createBroker(w http.ResponseWriter, r *http.Request) {
	var req createBrokerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	broker, err := h.service.CreateBroker(r.Context(), Broker{
		Name: req.Name, Website: req.Website, Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, broker)
}

func (h *Handler) deleteBroker(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid broker id")
		return
	}
	if err := h.service.DeleteBroker(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.service.ListSymbols(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if symbols == nil {
		symbols = []Symbol{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"symbols": symbols})
}

type createSymbolRequest struct {
	Code       string `json:"code" validate:"required,min=2,max=20"`
	Name       string `json:"name" validate:"required,min=2,max=120"`
	AssetClass string `json:"asset_class" validate:"required,oneof=forex futures stocks crypto indices metals"`
}

func (h *Handler) createSymbol(w http.ResponseWriter, r *http.Request) {
	var req createSymbolRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	symbol, err := h.service.CreateSymbol(r.Context(), Symbol{
		Code: req.Code, Name: req.Name, AssetClass: req.AssetClass,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, symbol)
}

func (h *Handler) getSymbol(w http.ResponseWriter, r *http.Request) {
	symbol, err := h.service.GetSymbolByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, symbol)
}
