package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

// Handler exposes report endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/pl", h.ProfitAndLoss)
	r.Get("/bs", h.BalanceSheet)
	r.Get("/drift", h.Drift)
}

type tbRow struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	TotalDebit  string `json:"total_debit"`
	TotalCredit string `json:"total_credit"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

type tbResponse struct {
	AsOf        string  `json:"as_of"`
	Accounts    []tbRow `json:"accounts"`
	TotalDebit  string  `json:"total_debit"`
	TotalCredit string  `json:"total_credit"`
	Difference  string  `json:"difference"`
	IsBalanced  bool    `json:"is_balanced"`
}

type amountRow struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type sectionResponse struct {
	Label    string      `json:"label"`
	Accounts []amountRow `json:"accounts"`
	Total    string      `json:"total"`
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := optionalDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), internalShared.TenantFromContext(r.Context()), asOf)
	if err != nil {
		h.fail(w, "trial balance", err)
		return
	}
	out := tbResponse{
		AsOf:        tb.AsOf.Format(time.DateOnly),
		Accounts:    []tbRow{},
		TotalDebit:  tb.TotalDebit.StringFixed(2),
		TotalCredit: tb.TotalCredit.StringFixed(2),
		Difference:  tb.Difference.StringFixed(2),
		IsBalanced:  tb.IsBalanced,
	}
	for _, row := range tb.Accounts() {
		out.Accounts = append(out.Accounts, tbRow{
			Code:        row.Code,
			Name:        row.Name,
			Type:        string(row.Type),
			TotalDebit:  row.TotalDebit.StringFixed(2),
			TotalCredit: row.TotalCredit.StringFixed(2),
			Debit:       row.Debit.StringFixed(2),
			Credit:      row.Credit.StringFixed(2),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, err := optionalDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := optionalDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end := time.Now().UTC()
	if to != nil {
		end = *to
	}
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	if from != nil {
		start = *from
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), internalShared.TenantFromContext(r.Context()), start, end)
	if err != nil {
		h.fail(w, "profit and loss", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"from":       pl.From.Format(time.DateOnly),
		"to":         pl.To.Format(time.DateOnly),
		"revenue":    plSection(pl.Revenue),
		"expense":    plSection(pl.Expense),
		"net_income": pl.NetIncome.StringFixed(2),
	})
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := optionalDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), internalShared.TenantFromContext(r.Context()), asOf)
	if err != nil {
		h.fail(w, "balance sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":                        bs.AsOf.Format(time.DateOnly),
		"assets":                       bsSection(bs.Assets),
		"liabilities":                  bsSection(bs.Liabilities),
		"equity":                       bsSection(bs.Equity),
		"total_liabilities_and_equity": bs.TotalLiabilitiesAndEquity.StringFixed(2),
		"is_balanced":                  bs.IsBalanced,
	})
}

func (h *Handler) Drift(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.service.CheckDrift(r.Context(), internalShared.TenantFromContext(r.Context()))
	if err != nil {
		h.fail(w, "drift check", err)
		return
	}
	out := make([]map[string]string, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, map[string]string{
			"code":       d.Code,
			"running":    d.Running.StringFixed(2),
			"recomputed": d.Recomputed.StringFixed(2),
			"difference": d.Difference().StringFixed(2),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drift": out, "clean": len(drifts) == 0})
}

func plSection(sec ProfitAndLossSection) sectionResponse {
	out := sectionResponse{Label: sec.Label, Accounts: []amountRow{}, Total: sec.Total.StringFixed(2)}
	for _, acc := range sec.Accounts {
		out.Accounts = append(out.Accounts, amountRow{Code: acc.Code, Name: acc.Name, Amount: acc.Amount.StringFixed(2)})
	}
	return out
}

func bsSection(sec BalanceSheetSection) sectionResponse {
	out := sectionResponse{Label: sec.Label, Accounts: []amountRow{}, Total: sec.Total.StringFixed(2)}
	for _, acc := range sec.Accounts {
		out.Accounts = append(out.Accounts, amountRow{Code: acc.Code, Name: acc.Name, Amount: acc.Balance.StringFixed(2)})
	}
	return out
}

func optionalDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrValidation, name)
	}
	return &t, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := shared.HTTPStatus(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondMapped(w, err, shared.HTTPStatus)
}
