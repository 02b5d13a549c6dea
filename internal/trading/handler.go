package trading

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

// Handler manages trading endpoints.
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

// MountRoutes registers trading routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceTradingAccount)).Get("/", h.listAccounts)
		r.With(h.rbac.RequirePermission(rbac.ActionCreate, rbac.ResourceTradingAccount)).Post("/", h.createAccount)
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceTradingAccount)).Get("/{id}", h.getAccount)
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceTrade)).Get("/{id}/trades", h.listTrades)
		r.With(h.rbac.RequirePermission(rbac.ActionCreate, rbac.ResourceTrade)).Post("/{id}/trades", h.recordTrade)
		r.With(h.rbac.RequirePermission(rbac.ActionRead, rbac.ResourceTradingAccount)).Get("/{id}/links", h.listLinks)
		r.With(h.rbac.RequirePermission(rbac.ActionUpdate, rbac.ResourceTradingAccount)).Post("/{id}/links", h.linkBroker)
		r.With(h.rbac.RequirePermission(rbac.ActionUpdate, rbac.ResourceTradingAccount)).Delete("/{id}/links/{linkID}", h.unlinkBroker)
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := rbac.CurrentUserID(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

type createAccountRequest struct {
	PropfirmID *int64  `json:"propfirm_id"`
	Label      string  `json:"label" validate:"required,min=2,max=120"`
	Phase      string  `json:"phase" validate:"omitempty,oneof=evaluation funded breached"`
	Balance    float64 `json:"balance" validate:"gte=0"`
	Currency   string  `json:"currency" validate:"omitempty,len=3"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := rbac.CurrentUserID(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), Account{
		UserID:     userID,
		PropfirmID: req.PropfirmID,
		Label:      req.Label,
		Phase:      AccountPhase(req.Phase),
		Balance:    req.Balance,
		Currency:   req.Currency,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) listTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	trades, err := h.service.ListTrades(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if trades == nil {
		trades = []Trade{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trades": trades})
}

type recordTradeRequest struct {
	SymbolID   int64      `json:"symbol_id" validate:"required"`
	Side       string     `json:"side" validate:"required,oneof=buy sell"`
	Quantity   float64    `json:"quantity" validate:"required,gt=0"`
	EntryPrice float64    `json:"entry_price" validate:"required,gt=0"`
	ExitPrice  *float64   `json:"exit_price"`
	Pnl        *float64   `json:"pnl"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at"`
}

func (h *Handler) recordTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req recordTradeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	trade, err := h.service.RecordTrade(r.Context(), Trade{
		AccountID:  id,
		SymbolID:   req.SymbolID,
		Side:       TradeSide(req.Side),
		Quantity:   req.Quantity,
		EntryPrice: req.EntryPrice,
		ExitPrice:  req.ExitPrice,
		Pnl:        req.Pnl,
		OpenedAt:   req.OpenedAt,
		ClosedAt:   req.ClosedAt,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, trade)
}

func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	links, err := h.service.ListLinks(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if links == nil {
		links = []AccountLink{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"links": links})
}

type linkBrokerRequest struct {
	BrokerID      int64  `json:"broker_id" validate:"required"`
	ExternalLogin string `json:"external_login" validate:"required,min=1,max=64"`
	Server        string `json:"server" validate:"omitempty,max=120"`
}

func (h *Handler) linkBroker(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req linkBrokerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	link, err := h.service.LinkBroker(r.Context(), AccountLink{
		AccountID:     id,
		BrokerID:      req.BrokerID,
		ExternalLogin: req.ExternalLogin,
		Server:        req.Server,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, link)
}

func (h *Handler) unlinkBroker(w http.ResponseWriter, r *http.Request) {
	linkID, ok := pathID(r, "linkID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid link id")
		return
	}
	if err := h.service.UnlinkBroker(r.Context(), linkID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
