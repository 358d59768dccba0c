package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/inventory"
)

// Ledger exposes journal posting operations required by integrations.
type Ledger interface {
	PostJournal(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
}

// Chart provides account lookups.
type Chart interface {
	GetAccount(ctx context.Context, tenantID, code string) (accounts.Account, error)
}

// Hooks wires domain events from operational modules into the general ledger.
type Hooks struct {
	ledger Ledger
	chart  Chart
	logger *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, chart Chart, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, chart: chart, logger: logger}
}

// BankTransferEvent moves money between two asset accounts.
type BankTransferEvent struct {
	TenantID    string
	Reference   string
	FromAccount string
	ToAccount   string
	Amount      decimal.Decimal
	Date        time.Time
	Memo        string
	ActorID     string
}

// OpeningBalanceEvent seeds an account's balance against opening equity.
// A negative amount puts the balance on the account's contra side.
type OpeningBalanceEvent struct {
	TenantID    string
	AccountCode string
	Amount      decimal.Decimal
	Date        time.Time
	ActorID     string
}

// sourceRef derives a stable source from the event reference so redelivery
// hits the same idempotency key.
func sourceRef(kind, tenantID, reference string) journals.SourceRef {
	id := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%s:%s", strings.ToUpper(kind), tenantID, reference)))
	return journals.SourceRef{Kind: kind, ID: id.String()}
}

func (h *Hooks) post(ctx context.Context, input journals.PostingInput) error {
	if input.Source.IsZero() {
		return errors.New("integration: source reference required")
	}
	_, err := h.ledger.PostJournal(ctx, input)
	if err != nil {
		if errors.Is(err, shared.ErrSourceAlreadyLinked) {
			return nil
		}
		h.logger.Warn("integration posting failed",
			slog.String("tenant", input.TenantID),
			slog.String("entry_type", string(input.Type)),
			slog.String("source", input.Source.String()),
			slog.Any("error", err))
	}
	return err
}

// HandleStockConsumed posts cost of goods sold for stock issued to a job.
// Items without a cost post nothing.
func (h *Hooks) HandleStockConsumed(ctx context.Context, evt inventory.StockConsumedEvent) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if evt.Reference == "" {
		return fmt.Errorf("%w: consumption reference required", shared.ErrInvalidInput)
	}
	if !evt.Qty.IsPositive() {
		return fmt.Errorf("%w: consumed quantity must be positive", shared.ErrInvalidInput)
	}
	if !evt.UnitCost.IsPositive() {
		return nil
	}
	amount := shared.Monetary(evt.Qty, evt.UnitCost)
	if amount.IsZero() {
		return nil
	}
	input := journals.PostingInput{
		TenantID:    evt.TenantID,
		Date:        evt.Date,
		Description: fmt.Sprintf("COGS %s × %s", evt.ItemName, evt.Qty.String()),
		Type:        journals.EntryTypeCOGS,
		Source:      sourceRef("stock_consumption", evt.TenantID, evt.Reference),
		CreatedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountCode: accounts.CodeCostOfGoodsSold, Debit: amount},
			{AccountCode: accounts.CodeInventory, Credit: amount},
		},
	}
	return h.post(ctx, input)
}

// HandleStockPurchased capitalises purchased stock against payables, or
// against cash or bank when paid on the spot.
func (h *Hooks) HandleStockPurchased(ctx context.Context, evt inventory.StockPurchasedEvent) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if evt.Reference == "" {
		return fmt.Errorf("%w: purchase reference required", shared.ErrInvalidInput)
	}
	amount := shared.Monetary(evt.Qty, evt.UnitCost)
	if !amount.IsPositive() {
		return nil
	}
	credit := accounts.CodeAccountsPayable
	switch evt.PaidVia {
	case inventory.PaidByCash:
		credit = accounts.CodeCash
	case inventory.PaidByBank:
		credit = accounts.CodeBank
	}
	input := journals.PostingInput{
		TenantID:    evt.TenantID,
		Date:        evt.Date,
		Description: fmt.Sprintf("Stock purchase %s × %s", evt.ItemName, evt.Qty.String()),
		Type:        journals.EntryTypePurchase,
		Source:      sourceRef("stock_purchase", evt.TenantID, evt.Reference),
		CreatedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountCode: accounts.CodeInventory, Debit: amount},
			{AccountCode: credit, Credit: amount},
		},
	}
	return h.post(ctx, input)
}

// HandleBankTransfer posts DEBIT destination, CREDIT source.
func (h *Hooks) HandleBankTransfer(ctx context.Context, evt BankTransferEvent) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if evt.Reference == "" {
		return fmt.Errorf("%w: transfer reference required", shared.ErrInvalidInput)
	}
	if evt.FromAccount == "" || evt.ToAccount == "" {
		return fmt.Errorf("%w: transfer accounts required", shared.ErrInvalidInput)
	}
	if evt.FromAccount == evt.ToAccount {
		return fmt.Errorf("%w: cannot transfer %s to itself", shared.ErrInvalidInput, evt.FromAccount)
	}
	if !evt.Amount.IsPositive() || !shared.HasMinorPrecision(evt.Amount) {
		return fmt.Errorf("%w: transfer amount must be positive with at most two decimals", shared.ErrInvalidInput)
	}
	memo := evt.Memo
	if memo == "" {
		memo = fmt.Sprintf("Transfer %s → %s", evt.FromAccount, evt.ToAccount)
	}
	input := journals.PostingInput{
		TenantID:    evt.TenantID,
		Date:        evt.Date,
		Description: memo,
		Type:        journals.EntryTypeTransfer,
		Source:      sourceRef("bank_transfer", evt.TenantID, evt.Reference),
		CreatedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountCode: evt.ToAccount, Debit: evt.Amount},
			{AccountCode: evt.FromAccount, Credit: evt.Amount},
		},
	}
	return h.post(ctx, input)
}

// HandleOpeningBalance posts an account's opening balance against opening
// equity. Each account takes one opening entry.
func (h *Hooks) HandleOpeningBalance(ctx context.Context, evt OpeningBalanceEvent) error {
	if h == nil || h.ledger == nil || h.chart == nil {
		return nil
	}
	if evt.AccountCode == accounts.CodeOpeningEquity {
		return fmt.Errorf("%w: opening equity is the balancing account", shared.ErrInvalidInput)
	}
	if evt.Amount.IsZero() {
		return nil
	}
	if !shared.HasMinorPrecision(evt.Amount) {
		return fmt.Errorf("%w: opening amount has more than two decimals", shared.ErrInvalidInput)
	}
	account, err := h.chart.GetAccount(ctx, evt.TenantID, evt.AccountCode)
	if err != nil {
		return err
	}
	amount := evt.Amount.Abs()
	debitSide := account.Type.DebitNormal() == evt.Amount.IsPositive()
	lines := []journals.PostingLineInput{
		{AccountCode: account.Code, Credit: amount},
		{AccountCode: accounts.CodeOpeningEquity, Debit: amount},
	}
	if debitSide {
		lines = []journals.PostingLineInput{
			{AccountCode: account.Code, Debit: amount},
			{AccountCode: accounts.CodeOpeningEquity, Credit: amount},
		}
	}
	input := journals.PostingInput{
		TenantID:    evt.TenantID,
		Date:        evt.Date,
		Description: fmt.Sprintf("Opening balance %s %s", account.Code, account.Name),
		Type:        journals.EntryTypeOpening,
		Source:      journals.SourceRef{Kind: "opening_balance", ID: account.Code},
		CreatedBy:   evt.ActorID,
		Lines:       lines,
	}
	return h.post(ctx, input)
}

var _ inventory.IntegrationHandler = (*Hooks)(nil)
