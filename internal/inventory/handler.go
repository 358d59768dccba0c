package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inventory/receipts", h.handleReceipt)
	r.Post("/inventory/consumptions", h.handleConsumption)
	r.Get("/inventory/items/{code}", h.handleBalance)
	r.Get("/inventory/items/{code}/movements", h.handleMovements)
}

type receiptRequest struct {
	ItemCode  string           `json:"item_code" validate:"required,max=64"`
	ItemName  string           `json:"item_name" validate:"max=255"`
	Qty       *decimal.Decimal `json:"qty" validate:"required"`
	UnitCost  *decimal.Decimal `json:"unit_cost" validate:"required"`
	PaidVia   PaidVia          `json:"paid_via" validate:"omitempty,oneof=cash bank"`
	Reference string           `json:"reference" validate:"max=128"`
	Date      string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type consumptionRequest struct {
	ItemCode  string           `json:"item_code" validate:"required,max=64"`
	Qty       *decimal.Decimal `json:"qty" validate:"required"`
	Reference string           `json:"reference" validate:"max=128"`
	Date      string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type balanceResponse struct {
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
	Qty      string `json:"qty"`
	AvgCost  string `json:"avg_cost"`
	Value    string `json:"value"`
}

type movementResponse struct {
	ID           string           `json:"id"`
	ItemCode     string           `json:"item_code"`
	Kind         string           `json:"kind"`
	Qty          string           `json:"qty"`
	UnitCost     string           `json:"unit_cost"`
	Reference    string           `json:"reference"`
	Posted       bool             `json:"posted"`
	PostingError string           `json:"posting_error,omitempty"`
	Retryable    bool             `json:"retryable,omitempty"`
	CreatedAt    string           `json:"created_at"`
	Balance      *balanceResponse `json:"balance,omitempty"`
}

func toBalanceResponse(b Balance) balanceResponse {
	return balanceResponse{
		ItemCode: b.ItemCode,
		ItemName: b.ItemName,
		Qty:      b.Qty.String(),
		AvgCost:  b.AvgCost.StringFixed(avgCostPlaces),
		Value:    b.Value().StringFixed(2),
	}
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:           m.ID.String(),
		ItemCode:     m.ItemCode,
		Kind:         string(m.Kind),
		Qty:          m.Qty.String(),
		UnitCost:     m.UnitCost.StringFixed(avgCostPlaces),
		Reference:    m.Reference,
		Posted:       m.Posted,
		PostingError: m.PostingError,
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
	}
}

func toResultResponse(res MovementResult) movementResponse {
	out := toMovementResponse(res.Movement)
	bal := toBalanceResponse(res.Balance)
	out.Balance = &bal
	if res.PostError != nil {
		out.PostingError = res.PostError.Message
		out.Retryable = res.PostError.Retryable
	}
	return out
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ReceiptInput{
		TenantID:  internalShared.TenantFromContext(r.Context()),
		ItemCode:  req.ItemCode,
		ItemName:  req.ItemName,
		Qty:       *req.Qty,
		UnitCost:  *req.UnitCost,
		PaidVia:   req.PaidVia,
		Reference: req.Reference,
		ActorID:   internalShared.ActorFromContext(r.Context()),
	}
	if req.Date != "" {
		input.Date, _ = time.Parse(dateLayout, req.Date)
	}
	res, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.fail(w, "stock receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultResponse(res))
}

func (h *Handler) handleConsumption(w http.ResponseWriter, r *http.Request) {
	var req consumptionRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ConsumptionInput{
		TenantID:  internalShared.TenantFromContext(r.Context()),
		ItemCode:  req.ItemCode,
		Qty:       *req.Qty,
		Reference: req.Reference,
		ActorID:   internalShared.ActorFromContext(r.Context()),
	}
	if req.Date != "" {
		input.Date, _ = time.Parse(dateLayout, req.Date)
	}
	res, err := h.service.Consume(r.Context(), input)
	if err != nil {
		h.fail(w, "stock consumption", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultResponse(res))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.service.GetBalance(r.Context(), internalShared.TenantFromContext(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "stock balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(bal))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be numeric", httpx.ErrValidation))
			return
		}
		limit = n
	}
	movements, err := h.service.ListMovements(r.Context(), internalShared.TenantFromContext(r.Context()), chi.URLParam(r, "code"), limit)
	if err != nil {
		h.fail(w, "stock movements", err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, _ := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondMapped(w, err, mapError)
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBalanceNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrDuplicateMovement):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		return http.StatusUnprocessableEntity, "Validation Failed"
	default:
		return shared.HTTPStatus(err)
	}
}
