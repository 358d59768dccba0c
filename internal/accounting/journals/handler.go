package journals

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

const dateLayout = "2006-01-02"

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type postLineRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=255"`
}

type postRequest struct {
	Date           string            `json:"date" validate:"required,datetime=2006-01-02"`
	Description    string            `json:"description" validate:"max=500"`
	Type           EntryType         `json:"entry_type" validate:"required"`
	SourceKind     string            `json:"source_kind" validate:"required_with=SourceID"`
	SourceID       string            `json:"source_id" validate:"required_with=SourceKind"`
	IdempotencyKey string            `json:"idempotency_key" validate:"omitempty,uuid"`
	Lines          []postLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"max=500"`
	Date   string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type lineResponse struct {
	LineNo      int    `json:"line_no"`
	AccountCode string `json:"account_code"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
}

type entryResponse struct {
	ID          string         `json:"id"`
	Number      string         `json:"number"`
	Date        string         `json:"date"`
	Description string         `json:"description"`
	Type        string         `json:"entry_type"`
	Source      string         `json:"source,omitempty"`
	Posted      bool           `json:"posted"`
	Reversed    bool           `json:"reversed"`
	ReversedBy  string         `json:"reversed_by,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	TotalDebit  string         `json:"total_debit"`
	TotalCredit string         `json:"total_credit"`
	Lines       []lineResponse `json:"lines,omitempty"`
}

func toResponse(e JournalEntry) entryResponse {
	debit, credit := e.Totals()
	out := entryResponse{
		ID:          e.ID.String(),
		Number:      e.Number,
		Date:        e.Date.Format(dateLayout),
		Description: e.Description,
		Type:        string(e.Type),
		Posted:      e.Posted,
		Reversed:    e.Reversed,
		CreatedBy:   e.CreatedBy,
		TotalDebit:  debit.StringFixed(2),
		TotalCredit: credit.StringFixed(2),
	}
	if !e.Source.IsZero() {
		out.Source = e.Source.String()
	}
	if e.ReversedBy != nil {
		out.ReversedBy = e.ReversedBy.String()
	}
	for _, line := range e.Lines {
		out.Lines = append(out.Lines, lineResponse{
			LineNo:      line.LineNo,
			AccountCode: line.AccountCode,
			Debit:       line.Debit.StringFixed(2),
			Credit:      line.Credit.StringFixed(2),
			Description: line.Description,
		})
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), internalShared.TenantFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid entry id", httpx.ErrValidation))
		return
	}
	entry, err := h.service.Get(r.Context(), internalShared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(dateLayout, req.Date)
	input := PostingInput{
		TenantID:    internalShared.TenantFromContext(r.Context()),
		Date:        date,
		Description: req.Description,
		Type:        req.Type,
		Source:      SourceRef{Kind: req.SourceKind, ID: req.SourceID},
		CreatedBy:   internalShared.ActorFromContext(r.Context()),
	}
	if req.IdempotencyKey != "" {
		input.IdempotencyKey = uuid.MustParse(req.IdempotencyKey)
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, PostingLineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		})
	}
	entry, err := h.service.PostJournal(r.Context(), input)
	if err != nil {
		h.fail(w, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(entry))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid entry id", httpx.ErrValidation))
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	input := ReverseInput{
		TenantID: internalShared.TenantFromContext(r.Context()),
		EntryID:  id,
		Reason:   req.Reason,
		ActorID:  internalShared.ActorFromContext(r.Context()),
	}
	if req.Date != "" {
		date, _ := time.Parse(dateLayout, req.Date)
		input.Date = &date
	}
	reversal, err := h.service.ReverseEntry(r.Context(), input)
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(reversal))
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var filter ListFilter
	for _, p := range []struct {
		name   string
		target **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return ListFilter{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrValidation, p.name)
		}
		*p.target = &t
	}
	filter.Type = EntryType(q.Get("type"))
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return ListFilter{}, fmt.Errorf("%w: limit must be numeric", httpx.ErrValidation)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := shared.HTTPStatus(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondMapped(w, err, shared.HTTPStatus)
}
