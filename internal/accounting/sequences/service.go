package sequences

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// Kind names a numbered document family.
type Kind string

const (
	KindCreditNote Kind = "credit_note"
	KindInvoice    Kind = "invoice"
	KindJournal    Kind = "journal"
	KindPayment    Kind = "payment"
	KindBill       Kind = "bill"
	KindStock      Kind = "stock"
)

// Width is the zero-padded width of the numeric part.
const Width = 5

var prefixes = map[Kind]string{
	KindCreditNote: "CN",
	KindInvoice:    "INV",
	KindJournal:    "JE",
	KindPayment:    "PAY",
	KindBill:       "BILL",
	KindStock:      "STK",
}

// Prefix returns the document prefix for kind.
func (k Kind) Prefix() string {
	if p, ok := prefixes[k]; ok {
		return p
	}
	return strings.ToUpper(string(k))
}

// Format renders a counter value, e.g. CN-00001.
func Format(kind Kind, value int64) string {
	return fmt.Sprintf("%s-%0*d", kind.Prefix(), Width, value)
}

// Observer receives one notification per issued number.
type Observer interface {
	SequenceIssued(kind string)
}

// Service issues formatted per-tenant document numbers.
type Service struct {
	store    Store
	logger   *slog.Logger
	observer Observer
}

// NewService constructs the generator over store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// WithObserver attaches an issuance observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Next returns the next formatted number for (tenant, kind). Any store failure
// is reported as shared.ErrSequenceUnavailable; no number is fabricated.
func (s *Service) Next(ctx context.Context, tenantID string, kind Kind) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", shared.ErrTenantRequired
	}
	if strings.TrimSpace(string(kind)) == "" {
		return "", fmt.Errorf("%w: sequence kind required", shared.ErrInvalidInput)
	}
	value, err := s.store.Increment(ctx, tenantID, kind)
	if err != nil {
		s.logger.Error("sequence increment failed",
			slog.String("tenant", tenantID),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
		return "", fmt.Errorf("%w: %s: %w", shared.ErrSequenceUnavailable, kind, err)
	}
	if s.observer != nil {
		s.observer.SequenceIssued(string(kind))
	}
	return Format(kind, value), nil
}
