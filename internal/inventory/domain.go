package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementReceipt brings stock in at a purchase cost.
	MovementReceipt MovementKind = "receipt"
	// MovementConsumption issues stock to a job at the moving-average cost.
	MovementConsumption MovementKind = "consumption"
)

// PaidVia selects the credit side of a stock purchase.
type PaidVia string

const (
	PaidOnCredit PaidVia = ""
	PaidByCash   PaidVia = "cash"
	PaidByBank   PaidVia = "bank"
)

// Balance is the on-hand quantity and moving-average cost of one item.
type Balance struct {
	TenantID  string
	ItemCode  string
	ItemName  string
	Qty       decimal.Decimal
	AvgCost   decimal.Decimal
	UpdatedAt time.Time
}

// Value returns qty × average cost, rounded to paise.
func (b Balance) Value() decimal.Decimal {
	return b.Qty.Mul(b.AvgCost).Round(2)
}

// Movement records one receipt or consumption and how its journal went.
type Movement struct {
	ID           uuid.UUID
	TenantID     string
	ItemCode     string
	Kind         MovementKind
	Qty          decimal.Decimal
	UnitCost     decimal.Decimal
	Reference    string
	Posted       bool
	PostingError string
	CreatedBy    string
	CreatedAt    time.Time
}

// ReceiptInput describes stock coming in.
type ReceiptInput struct {
	TenantID  string
	ItemCode  string
	ItemName  string
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	PaidVia   PaidVia
	Reference string
	Date      time.Time
	ActorID   string
}

// ConsumptionInput describes stock used on a job.
type ConsumptionInput struct {
	TenantID  string
	ItemCode  string
	Qty       decimal.Decimal
	Reference string
	Date      time.Time
	ActorID   string
}

// avgCostPlaces keeps average cost finer than paise so repeated receipts
// don't drift.
const avgCostPlaces = 4

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInvalidUnitCost indicates invalid cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// ErrDuplicateMovement indicates the reference was already processed.
var ErrDuplicateMovement = errors.New("inventory: movement already recorded")
