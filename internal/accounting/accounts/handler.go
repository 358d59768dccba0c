package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

// Handler exposes chart-of-accounts endpoints.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/ensure", h.Ensure)
	r.Get("/{code}", h.Get)
	r.Delete("/{code}", h.Delete)
}

type createAccountRequest struct {
	Code    string      `json:"code" validate:"required,max=16"`
	Name    string      `json:"name" validate:"required,max=120"`
	Type    AccountType `json:"type" validate:"required,oneof=asset liability equity income expense"`
	SubType string      `json:"sub_type" validate:"max=32"`
}

type accountResponse struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	SubType  string `json:"sub_type"`
	Balance  string `json:"balance"`
	IsSystem bool   `json:"is_system"`
}

func toResponse(a Account) accountResponse {
	return accountResponse{
		Code:     a.Code,
		Name:     a.Name,
		Type:     string(a.Type),
		SubType:  a.SubType,
		Balance:  a.Balance.StringFixed(2),
		IsSystem: a.IsSystem,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context(), internalShared.TenantFromContext(r.Context()))
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.GetAccount(r.Context(), internalShared.TenantFromContext(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(acc))
}

func (h *Handler) Ensure(w http.ResponseWriter, r *http.Request) {
	tenant := internalShared.TenantFromContext(r.Context())
	if err := h.service.EnsureSystemAccounts(r.Context(), tenant); err != nil {
		h.fail(w, "ensure system accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), CreateInput{
		TenantID: internalShared.TenantFromContext(r.Context()),
		Code:     req.Code,
		Name:     req.Name,
		Type:     req.Type,
		SubType:  req.SubType,
	})
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(acc))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteAccount(r.Context(), internalShared.TenantFromContext(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := shared.HTTPStatus(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondMapped(w, err, shared.HTTPStatus)
}
