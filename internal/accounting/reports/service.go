package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// Observer is notified of every trial balance computed.
type Observer interface {
	TrialBalanceChecked(balanced bool)
}

// Drift describes an account whose running balance disagrees with its lines.
type Drift struct {
	Code       string
	Name       string
	Running    decimal.Decimal
	Recomputed decimal.Decimal
}

// Difference returns running minus recomputed.
func (d Drift) Difference() decimal.Decimal {
	return d.Running.Sub(d.Recomputed)
}

// Service builds financial statements from posted lines.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewService constructs the reporter.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver attaches a trial balance observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// TrialBalance recomputes every account from posted lines dated on or before
// asOf (today in UTC when nil). Running balances are not consulted.
func (s *Service) TrialBalance(ctx context.Context, tenantID string, asOf *time.Time) (TrialBalance, error) {
	if strings.TrimSpace(tenantID) == "" {
		return TrialBalance{}, shared.ErrTenantRequired
	}
	cutoff := s.asOf(asOf)
	activity, err := s.activity(ctx, tenantID, Window{To: &cutoff})
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(activity)
	tb.TenantID = tenantID
	tb.AsOf = cutoff
	if !tb.IsBalanced {
		s.logger.Error("trial balance out of balance",
			slog.String("tenant", tenantID),
			slog.String("as_of", cutoff.Format(time.DateOnly)),
			slog.String("difference", tb.Difference.StringFixed(2)))
	}
	if s.observer != nil {
		s.observer.TrialBalanceChecked(tb.IsBalanced)
	}
	return tb, nil
}

// ProfitAndLoss aggregates income and expense activity in [from, to].
func (s *Service) ProfitAndLoss(ctx context.Context, tenantID string, from, to time.Time) (ProfitAndLoss, error) {
	if strings.TrimSpace(tenantID) == "" {
		return ProfitAndLoss{}, shared.ErrTenantRequired
	}
	from, to = dateOnly(from), dateOnly(to)
	if to.Before(from) {
		return ProfitAndLoss{}, fmt.Errorf("%w: from date after to date", shared.ErrInvalidInput)
	}
	activity, err := s.activity(ctx, tenantID, Window{From: &from, To: &to})
	if err != nil {
		return ProfitAndLoss{}, err
	}
	pl := BuildProfitAndLoss(activity)
	pl.TenantID, pl.From, pl.To = tenantID, from, to
	return pl, nil
}

// BalanceSheet reports the position as of a date (today in UTC when nil).
func (s *Service) BalanceSheet(ctx context.Context, tenantID string, asOf *time.Time) (BalanceSheet, error) {
	if strings.TrimSpace(tenantID) == "" {
		return BalanceSheet{}, shared.ErrTenantRequired
	}
	cutoff := s.asOf(asOf)
	activity, err := s.activity(ctx, tenantID, Window{To: &cutoff})
	if err != nil {
		return BalanceSheet{}, err
	}
	bs := BuildBalanceSheet(activity)
	bs.TenantID, bs.AsOf = tenantID, cutoff
	return bs, nil
}

// CheckDrift compares every running balance with the figure recomputed from
// all posted lines and returns the accounts that disagree.
func (s *Service) CheckDrift(ctx context.Context, tenantID string) ([]Drift, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, shared.ErrTenantRequired
	}
	activity, err := s.activity(ctx, tenantID, Window{})
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	for _, acc := range activity {
		recomputed := acc.Signed()
		if recomputed.Equal(acc.Running) {
			continue
		}
		drifts = append(drifts, Drift{Code: acc.Code, Name: acc.Name, Running: acc.Running, Recomputed: recomputed})
	}
	if len(drifts) > 0 {
		s.logger.Error("running balances drifted", slog.String("tenant", tenantID), slog.Int("accounts", len(drifts)))
	}
	return drifts, nil
}

func (s *Service) activity(ctx context.Context, tenantID string, window Window) ([]AccountActivity, error) {
	activity, err := s.repo.Activity(ctx, tenantID, window)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger activity: %w", shared.ErrStorageUnavailable, err)
	}
	return activity, nil
}

func (s *Service) asOf(asOf *time.Time) time.Time {
	if asOf != nil {
		return dateOnly(*asOf)
	}
	return dateOnly(s.now().UTC())
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
