package accounts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	accounts map[string]map[string]Account
	postings map[string]int64
	inserts  int
	failWith error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[string]map[string]Account), postings: make(map[string]int64)}
}

func (r *memoryRepo) InsertSystemAccounts(ctx context.Context, tenantID string, seeds []SeedAccount) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	r.inserts++
	chart, ok := r.accounts[tenantID]
	if !ok {
		chart = make(map[string]Account)
		r.accounts[tenantID] = chart
	}
	var created int64
	for _, seed := range seeds {
		if _, exists := chart[seed.Code]; exists {
			continue
		}
		chart[seed.Code] = Account{TenantID: tenantID, Code: seed.Code, Name: seed.Name, Type: seed.Type, SubType: seed.SubType, IsSystem: true, IsActive: true}
		created++
	}
	return created, nil
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, code string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[tenantID][code]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	return acc, nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID string) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Account
	for _, acc := range r.accounts[tenantID] {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) Create(ctx context.Context, in CreateInput) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chart, ok := r.accounts[in.TenantID]
	if !ok {
		chart = make(map[string]Account)
		r.accounts[in.TenantID] = chart
	}
	if _, exists := chart[in.Code]; exists {
		return Account{}, shared.ErrDuplicateAccount
	}
	acc := Account{TenantID: in.TenantID, Code: in.Code, Name: in.Name, Type: in.Type, SubType: in.SubType, IsActive: true}
	chart[in.Code] = acc
	return acc, nil
}

func (r *memoryRepo) CountPostings(ctx context.Context, tenantID, code string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.postings[tenantID+"/"+code], nil
}

func (r *memoryRepo) Delete(ctx context.Context, tenantID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts[tenantID], code)
	return nil
}

func (r *memoryRepo) ListTenants(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for tenant := range r.accounts {
		out = append(out, tenant)
	}
	sort.Strings(out)
	return out, nil
}

func TestEnsureSystemAccountsIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSystemAccounts(ctx, "org123"))
	first, err := svc.List(ctx, "org123")
	require.NoError(t, err)
	require.Len(t, first, len(SystemAccounts()))

	require.NoError(t, svc.EnsureSystemAccounts(ctx, "org123"))
	fresh := NewService(repo, nil)
	require.NoError(t, fresh.EnsureSystemAccounts(ctx, "org123"))

	second, err := svc.List(ctx, "org123")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureSystemAccountsConcurrentFirstUse(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.EnsureSystemAccounts(ctx, "org-a"))
		}()
	}
	wg.Wait()

	accounts, err := svc.List(ctx, "org-a")
	require.NoError(t, err)
	require.Len(t, accounts, len(SystemAccounts()))
}

func TestEnsureSystemAccountsStorageFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failWith = errors.New("connection refused")
	svc := NewService(repo, nil)

	err := svc.EnsureSystemAccounts(context.Background(), "org123")
	require.ErrorIs(t, err, shared.ErrStorageUnavailable)

	repo.failWith = nil
	require.NoError(t, svc.EnsureSystemAccounts(context.Background(), "org123"))
}

func TestGetAccountNotFound(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.GetAccount(context.Background(), "org123", CodeCash)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	_, err = svc.GetAccount(context.Background(), "", CodeCash)
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestSystemAccountsCannotBeDeleted(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, svc.EnsureSystemAccounts(ctx, "org123"))

	require.ErrorIs(t, svc.DeleteAccount(ctx, "org123", CodeInventory), shared.ErrSystemAccount)

	_, err := svc.CreateAccount(ctx, CreateInput{TenantID: "org123", Code: "6100", Name: "Workshop Rent", Type: AccountTypeExpense})
	require.NoError(t, err)
	repo.postings["org123/6100"] = 2
	require.ErrorIs(t, svc.DeleteAccount(ctx, "org123", "6100"), shared.ErrAccountInUse)

	repo.postings["org123/6100"] = 0
	require.NoError(t, svc.DeleteAccount(ctx, "org123", "6100"))
}

func TestCreateAccountValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, CreateInput{TenantID: "org123", Code: "6100", Name: "Rent", Type: "other"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.CreateAccount(ctx, CreateInput{TenantID: "org123", Code: CodeCash, Name: "Petty", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrDuplicateAccount)
}

func TestSignedByAccountType(t *testing.T) {
	debit := mustDecimal(t, "500")
	credit := mustDecimal(t, "200")
	require.Equal(t, "300", AccountTypeAsset.Signed(debit, credit).String())
	require.Equal(t, "300", AccountTypeExpense.Signed(debit, credit).String())
	require.Equal(t, "-300", AccountTypeLiability.Signed(debit, credit).String())
	require.Equal(t, "-300", AccountTypeEquity.Signed(debit, credit).String())
	require.Equal(t, "-300", AccountTypeIncome.Signed(debit, credit).String())
}

func mustDecimal(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}
