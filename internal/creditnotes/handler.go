package creditnotes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
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

type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers credit note routes on the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/{id}/credit-notes", h.list)
	r.Post("/invoices/{id}/credit-notes", h.issue)
	r.Get("/credit-notes/{id}", h.get)
	r.Post("/credit-notes/{id}/cancel", h.cancel)
}

type itemRequest struct {
	Name     string           `json:"name" validate:"required,max=255"`
	Quantity *decimal.Decimal `json:"quantity" validate:"required"`
	Rate     *decimal.Decimal `json:"rate" validate:"required"`
	TaxRate  *decimal.Decimal `json:"tax_rate" validate:"required"`
}

type issueRequest struct {
	Reason string        `json:"reason" validate:"required,max=500"`
	Date   string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Items  []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type lineResponse struct {
	LineNo   int    `json:"line_no"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Rate     string `json:"rate"`
	TaxRate  string `json:"tax_rate"`
	Amount   string `json:"amount"`
	CGST     string `json:"cgst"`
	SGST     string `json:"sgst"`
	IGST     string `json:"igst"`
}

type noteResponse struct {
	ID             string         `json:"id"`
	Number         string         `json:"number"`
	InvoiceID      string         `json:"invoice_id"`
	InvoiceNumber  string         `json:"invoice_number"`
	Reason         string         `json:"reason"`
	Date           string         `json:"date"`
	Treatment      string         `json:"treatment"`
	Subtotal       string         `json:"subtotal"`
	CGST           string         `json:"cgst"`
	SGST           string         `json:"sgst"`
	IGST           string         `json:"igst"`
	GSTAmount      string         `json:"gst_amount"`
	Total          string         `json:"total"`
	Refund         bool           `json:"refund"`
	Status         string         `json:"status"`
	Posted         bool           `json:"posted"`
	JournalEntryID string         `json:"journal_entry_id,omitempty"`
	PostingError   string         `json:"posting_error,omitempty"`
	Retryable      bool           `json:"retryable,omitempty"`
	Lines          []lineResponse `json:"lines,omitempty"`
}

func toResponse(n CreditNote) noteResponse {
	out := noteResponse{
		ID:            n.ID.String(),
		Number:        n.Number,
		InvoiceID:     n.InvoiceID.String(),
		InvoiceNumber: n.InvoiceNumber,
		Reason:        n.Reason,
		Date:          n.Date.Format("2006-01-02"),
		Treatment:     string(n.Treatment),
		Subtotal:      n.Subtotal.StringFixed(2),
		CGST:          n.CGST.StringFixed(2),
		SGST:          n.SGST.StringFixed(2),
		IGST:          n.IGST.StringFixed(2),
		GSTAmount:     n.GSTAmount.StringFixed(2),
		Total:         n.Total.StringFixed(2),
		Refund:        n.Refund,
		Status:        string(n.Status),
		Posted:        n.Posted,
		PostingError:  n.PostingError,
	}
	if n.JournalEntryID != nil {
		out.JournalEntryID = n.JournalEntryID.String()
	}
	for _, l := range n.Lines {
		out.Lines = append(out.Lines, lineResponse{
			LineNo:   l.LineNo,
			Name:     l.Name,
			Quantity: l.Quantity.String(),
			Rate:     l.Rate.StringFixed(2),
			TaxRate:  l.TaxRate.String(),
			Amount:   l.Amount.StringFixed(2),
			CGST:     l.CGST.StringFixed(2),
			SGST:     l.SGST.StringFixed(2),
			IGST:     l.IGST.StringFixed(2),
		})
	}
	return out
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := IssueInput{
		TenantID:  internalShared.TenantFromContext(r.Context()),
		InvoiceID: invoiceID,
		Reason:    req.Reason,
		ActorID:   internalShared.ActorFromContext(r.Context()),
	}
	if req.Date != "" {
		in.Date, _ = time.Parse("2006-01-02", req.Date)
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, gst.Item{Name: item.Name, Quantity: *item.Quantity, Rate: *item.Rate, TaxRate: *item.TaxRate})
	}
	res, err := h.service.Issue(r.Context(), in)
	if err != nil {
		h.fail(w, "issue credit note", err)
		return
	}
	out := toResponse(res.CreditNote)
	if res.PostError != nil {
		out.PostingError = res.PostError.Message
		out.Retryable = res.PostError.Retryable
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(w, r)
	if !ok {
		return
	}
	notes, err := h.service.List(r.Context(), internalShared.TenantFromContext(r.Context()), invoiceID)
	if err != nil {
		h.fail(w, "list credit notes", err)
		return
	}
	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toResponse(n))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credit_notes": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	note, err := h.service.Get(r.Context(), internalShared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get credit note", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(note))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	note, err := h.service.Cancel(r.Context(), internalShared.TenantFromContext(r.Context()), id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "cancel credit note", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(note))
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid id", httpx.ErrValidation))
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
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvoiceNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrInvoiceVoid), errors.Is(err, ErrAlreadyCancelled):
		return http.StatusConflict, "Conflict"
	default:
		return shared.HTTPStatus(err)
	}
}
