package ar

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/gst"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler manages AR endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers AR routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/payments", h.listPayments)
	r.Post("/invoices/{id}/payments", h.createPayment)
}

type itemRequest struct {
	Name     string           `json:"name" validate:"required,max=255"`
	Quantity *decimal.Decimal `json:"quantity" validate:"required"`
	Rate     *decimal.Decimal `json:"rate" validate:"required"`
	TaxRate  *decimal.Decimal `json:"tax_rate" validate:"required"`
}

type invoiceRequest struct {
	CustomerName string        `json:"customer_name" validate:"required,max=255"`
	Date         string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	InterState   bool          `json:"inter_state"`
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
	Method PaymentMethod    `json:"method" validate:"required,oneof=cash bank"`
	PaidAt string           `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

type invoiceLineResponse struct {
	LineNo   int    `json:"line_no"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Rate     string `json:"rate"`
	TaxRate  string `json:"tax_rate"`
	Amount   string `json:"amount"`
	Tax      string `json:"tax"`
}

type invoiceResponse struct {
	ID             string                `json:"id"`
	Number         string                `json:"number"`
	CustomerName   string                `json:"customer_name"`
	Date           string                `json:"date"`
	Treatment      string                `json:"treatment"`
	Subtotal       string                `json:"subtotal"`
	CGST           string                `json:"cgst"`
	SGST           string                `json:"sgst"`
	IGST           string                `json:"igst"`
	GrandTotal     string                `json:"grand_total"`
	AmountPaid     string                `json:"amount_paid"`
	Status         string                `json:"status"`
	Posted         bool                  `json:"posted"`
	JournalEntryID string                `json:"journal_entry_id,omitempty"`
	PostingError   string                `json:"posting_error,omitempty"`
	Retryable      bool                  `json:"retryable,omitempty"`
	Lines          []invoiceLineResponse `json:"lines,omitempty"`
}

type paymentResponse struct {
	ID             string `json:"id"`
	Number         string `json:"number"`
	InvoiceID      string `json:"invoice_id"`
	Amount         string `json:"amount"`
	Method         string `json:"method"`
	PaidAt         string `json:"paid_at"`
	Posted         bool   `json:"posted"`
	JournalEntryID string `json:"journal_entry_id,omitempty"`
	PostingError   string `json:"posting_error,omitempty"`
	InvoiceStatus  string `json:"invoice_status,omitempty"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:           inv.ID.String(),
		Number:       inv.Number,
		CustomerName: inv.CustomerName,
		Date:         inv.Date.Format(dateLayout),
		Treatment:    string(inv.Treatment),
		Subtotal:     inv.Subtotal.StringFixed(2),
		CGST:         inv.CGST.StringFixed(2),
		SGST:         inv.SGST.StringFixed(2),
		IGST:         inv.IGST.StringFixed(2),
		GrandTotal:   inv.GrandTotal.StringFixed(2),
		AmountPaid:   inv.AmountPaid.StringFixed(2),
		Status:       string(inv.Status),
		Posted:       inv.Posted,
		PostingError: inv.PostingError,
	}
	if inv.JournalEntryID != nil {
		out.JournalEntryID = inv.JournalEntryID.String()
	}
	for _, line := range inv.Lines {
		out.Lines = append(out.Lines, invoiceLineResponse{
			LineNo:   line.LineNo,
			Name:     line.Name,
			Quantity: line.Quantity.String(),
			Rate:     line.Rate.StringFixed(2),
			TaxRate:  line.TaxRate.String(),
			Amount:   line.Amount.StringFixed(2),
			Tax:      line.Tax.StringFixed(2),
		})
	}
	return out
}

func toPaymentResponse(p Payment) paymentResponse {
	out := paymentResponse{
		ID:           p.ID.String(),
		Number:       p.Number,
		InvoiceID:    p.InvoiceID.String(),
		Amount:       p.Amount.StringFixed(2),
		Method:       string(p.Method),
		PaidAt:       p.PaidAt.Format(dateLayout),
		Posted:       p.Posted,
		PostingError: p.PostingError,
	}
	if p.JournalEntryID != nil {
		out.JournalEntryID = p.JournalEntryID.String()
	}
	return out
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be numeric", httpx.ErrValidation))
			return
		}
		limit = n
	}
	invoices, err := h.service.ListInvoices(r.Context(), internalShared.TenantFromContext(r.Context()), limit)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), internalShared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := IssueInvoiceInput{
		TenantID:     internalShared.TenantFromContext(r.Context()),
		CustomerName: req.CustomerName,
		InterState:   req.InterState,
		ActorID:      internalShared.ActorFromContext(r.Context()),
	}
	if req.Date != "" {
		input.Date, _ = time.Parse(dateLayout, req.Date)
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, gst.Item{Name: item.Name, Quantity: *item.Quantity, Rate: *item.Rate, TaxRate: *item.TaxRate})
	}
	res, err := h.service.IssueInvoice(r.Context(), input)
	if err != nil {
		h.fail(w, "issue invoice", err)
		return
	}
	out := toInvoiceResponse(res.Invoice)
	if res.PostError != nil {
		out.PostingError = res.PostError.Message
		out.Retryable = res.PostError.Retryable
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(r.Context(), internalShared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := PaymentInput{
		TenantID:  internalShared.TenantFromContext(r.Context()),
		InvoiceID: id,
		Amount:    *req.Amount,
		Method:    req.Method,
		ActorID:   internalShared.ActorFromContext(r.Context()),
	}
	if req.PaidAt != "" {
		input.PaidAt, _ = time.Parse(dateLayout, req.PaidAt)
	}
	res, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	out := toPaymentResponse(res.Payment)
	out.InvoiceStatus = string(res.Invoice.Status)
	if res.PostError != nil {
		out.PostingError = res.PostError.Message
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid invoice id", httpx.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
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
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrPaymentNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrInvoiceVoid), errors.Is(err, ErrOverpayment):
		return http.StatusConflict, "Conflict"
	default:
		return shared.HTTPStatus(err)
	}
}
