package accounts

// System account codes referenced by posters.
const (
	CodeCash                 = "1000"
	CodeBank                 = "1010"
	CodeAccountsReceivable   = "1100"
	CodeInventory            = "1200"
	CodeAccountsPayable      = "2000"
	CodeCGSTPayable          = "2100"
	CodeSGSTPayable          = "2110"
	CodeIGSTPayable          = "2120"
	CodeRefundPayable        = "2200"
	CodeOpeningEquity        = "3000"
	CodeRetainedEarnings     = "3100"
	CodeSalesRevenue         = "4000"
	CodeServiceRevenue       = "4100"
	CodeCostOfGoodsSold      = "5000"
	CodeInventoryAdjustments = "5100"
)

// SeedAccount is one entry of the fixed system chart.
type SeedAccount struct {
	Code    string
	Name    string
	Type    AccountType
	SubType string
}

var systemAccounts = []SeedAccount{
	{CodeCash, "Cash", AccountTypeAsset, "cash"},
	{CodeBank, "Bank", AccountTypeAsset, "bank"},
	{CodeAccountsReceivable, "Accounts Receivable", AccountTypeAsset, "receivable"},
	{CodeInventory, "Inventory", AccountTypeAsset, "inventory"},
	{CodeAccountsPayable, "Accounts Payable", AccountTypeLiability, "payable"},
	{CodeCGSTPayable, "CGST Payable", AccountTypeLiability, "tax"},
	{CodeSGSTPayable, "SGST Payable", AccountTypeLiability, "tax"},
	{CodeIGSTPayable, "IGST Payable", AccountTypeLiability, "tax"},
	{CodeRefundPayable, "Refund Payable", AccountTypeLiability, "refund"},
	{CodeOpeningEquity, "Opening Balance Equity", AccountTypeEquity, "opening"},
	{CodeRetainedEarnings, "Retained Earnings", AccountTypeEquity, "retained"},
	{CodeSalesRevenue, "Sales Revenue", AccountTypeIncome, "sales"},
	{CodeServiceRevenue, "Service Revenue", AccountTypeIncome, "service"},
	{CodeCostOfGoodsSold, "Cost of Goods Sold", AccountTypeExpense, "cogs"},
	{CodeInventoryAdjustments, "Inventory Adjustments", AccountTypeExpense, "adjustment"},
}

// SystemAccounts returns a copy of the seed chart.
func SystemAccounts() []SeedAccount {
	out := make([]SeedAccount, len(systemAccounts))
	copy(out, systemAccounts)
	return out
}

// IsSystemCode reports whether code belongs to the seed chart.
func IsSystemCode(code string) bool {
	for _, acc := range systemAccounts {
		if acc.Code == code {
			return true
		}
	}
	return false
}
