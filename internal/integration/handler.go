package integration

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes manual ledger integrations over HTTP.
type Handler struct {
	logger    *slog.Logger
	hooks     *Hooks
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, hooks *Hooks) *Handler {
	return &Handler{logger: logger, hooks: hooks, validator: validator.New()}
}

// MountRoutes registers integration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/banking/transfers", h.handleTransfer)
	r.Post("/opening-balances", h.handleOpeningBalances)
}

type transferRequest struct {
	Reference   string           `json:"reference" validate:"required,max=128"`
	FromAccount string           `json:"from_account" validate:"required,max=16"`
	ToAccount   string           `json:"to_account" validate:"required,max=16,nefield=FromAccount"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Date        string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Memo        string           `json:"memo" validate:"max=255"`
}

type openingLine struct {
	AccountCode string           `json:"account_code" validate:"required,max=16"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
}

type openingRequest struct {
	Date     string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Balances []openingLine `json:"balances" validate:"required,min=1,dive"`
}

type openingResult struct {
	AccountCode string `json:"account_code"`
	Posted      bool   `json:"posted"`
	Error       string `json:"error,omitempty"`
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	t, _ := time.Parse(dateLayout, raw)
	return t
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	evt := BankTransferEvent{
		TenantID:    internalShared.TenantFromContext(r.Context()),
		Reference:   req.Reference,
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Amount:      *req.Amount,
		Date:        parseDate(req.Date),
		Memo:        req.Memo,
		ActorID:     internalShared.ActorFromContext(r.Context()),
	}
	if err := h.hooks.HandleBankTransfer(r.Context(), evt); err != nil {
		h.fail(w, "bank transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"reference": evt.Reference,
		"amount":    evt.Amount.StringFixed(2),
		"posted":    true,
	})
}

// handleOpeningBalances posts each line independently and reports per-line
// outcomes; a partial import answers 207.
func (h *Handler) handleOpeningBalances(w http.ResponseWriter, r *http.Request) {
	var req openingRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID := internalShared.TenantFromContext(r.Context())
	actor := internalShared.ActorFromContext(r.Context())
	date := parseDate(req.Date)
	results := make([]openingResult, 0, len(req.Balances))
	failed := 0
	for _, line := range req.Balances {
		err := h.hooks.HandleOpeningBalance(r.Context(), OpeningBalanceEvent{
			TenantID:    tenantID,
			AccountCode: line.AccountCode,
			Amount:      *line.Amount,
			Date:        date,
			ActorID:     actor,
		})
		res := openingResult{AccountCode: line.AccountCode, Posted: err == nil}
		if err != nil {
			failed++
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	status := http.StatusCreated
	if failed > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, map[string]any{"results": results})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, _ := shared.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondMapped(w, err, shared.HTTPStatus)
}
