package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// AccountActivity is the per-account aggregation of posted journal lines in a
// window, alongside the account's running balance.
type AccountActivity struct {
	Code    string
	Name    string
	Type    accounts.AccountType
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Running decimal.Decimal
}

// Net returns debit minus credit.
func (a AccountActivity) Net() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// Signed returns the net in the account's normal-balance sign.
func (a AccountActivity) Signed() decimal.Decimal {
	return a.Type.Signed(a.Debit, a.Credit)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountActivity) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group. The net
// balance lands in Debit when positive and in Credit otherwise.
type TrialBalanceAccount struct {
	Code        string
	Name        string
	Type        accounts.AccountType
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// TrialBalanceGroup aggregates accounts for presentation.
type TrialBalanceGroup struct {
	Key      string
	Accounts []TrialBalanceAccount
	Debit    decimal.Decimal
	Credit   decimal.Decimal
}

// TrialBalance is the recomputed ledger position as of a date.
type TrialBalance struct {
	TenantID    string
	AsOf        time.Time
	Groups      []TrialBalanceGroup
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Difference  decimal.Decimal
	IsBalanced  bool
}

// Accounts flattens the groups in code order.
func (tb TrialBalance) Accounts() []TrialBalanceAccount {
	var out []TrialBalanceAccount
	for _, grp := range tb.Groups {
		out = append(out, grp.Accounts...)
	}
	return out
}

// BuildTrialBalance converts account activity into grouped trial balance data.
// Accounts without any activity are omitted.
func BuildTrialBalance(activity []AccountActivity) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range activity {
		if acc.Debit.IsZero() && acc.Credit.IsZero() {
			continue
		}
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			Code:        acc.Code,
			Name:        acc.Name,
			Type:        acc.Type,
			TotalDebit:  acc.Debit,
			TotalCredit: acc.Credit,
		}
		if net := acc.Net(); net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	result.Difference = result.TotalDebit.Sub(result.TotalCredit)
	result.IsBalanced = result.Difference.Abs().LessThan(shared.Epsilon)
	return result
}
