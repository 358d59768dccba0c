package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// Service owns the per-tenant chart of accounts.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	group   singleflight.Group
	ensured sync.Map
}

// NewService builds the chart-of-accounts registry.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// EnsureSystemAccounts creates any missing system accounts for the tenant. It
// is safe to call repeatedly and concurrently.
func (s *Service) EnsureSystemAccounts(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return shared.ErrTenantRequired
	}
	if _, ok := s.ensured.Load(tenantID); ok {
		return nil
	}
	_, err, _ := s.group.Do(tenantID, func() (any, error) {
		created, err := s.repo.InsertSystemAccounts(ctx, tenantID, systemAccounts)
		if err != nil {
			return nil, fmt.Errorf("%w: seed accounts: %w", shared.ErrStorageUnavailable, err)
		}
		if created > 0 {
			s.logger.Info("system accounts seeded",
				slog.String("tenant", tenantID),
				slog.Int64("created", created))
		}
		s.ensured.Store(tenantID, struct{}{})
		return nil, nil
	})
	return err
}

// GetAccount returns the account or shared.ErrAccountNotFound.
func (s *Service) GetAccount(ctx context.Context, tenantID, code string) (Account, error) {
	if tenantID == "" {
		return Account{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, code)
}

// List returns the tenant chart ordered by code.
func (s *Service) List(ctx context.Context, tenantID string) ([]Account, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID)
}

// CreateAccount adds a non-system account.
func (s *Service) CreateAccount(ctx context.Context, in CreateInput) (Account, error) {
	if in.TenantID == "" {
		return Account{}, shared.ErrTenantRequired
	}
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("%w: account code and name required", shared.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("%w: account type %q", shared.ErrInvalidInput, in.Type)
	}
	if IsSystemCode(in.Code) {
		return Account{}, shared.ErrDuplicateAccount
	}
	return s.repo.Create(ctx, in)
}

// DeleteAccount removes a non-system account without postings.
func (s *Service) DeleteAccount(ctx context.Context, tenantID, code string) error {
	acc, err := s.GetAccount(ctx, tenantID, code)
	if err != nil {
		return err
	}
	if acc.IsSystem {
		return shared.ErrSystemAccount
	}
	count, err := s.repo.CountPostings(ctx, tenantID, code)
	if err != nil {
		return err
	}
	if count > 0 {
		return shared.ErrAccountInUse
	}
	return s.repo.Delete(ctx, tenantID, code)
}

// ListTenants returns every tenant with a chart of accounts.
func (s *Service) ListTenants(ctx context.Context) ([]string, error) {
	return s.repo.ListTenants(ctx)
}
