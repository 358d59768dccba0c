package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockPurchasedEvent is emitted after a receipt raises the stock balance.
type StockPurchasedEvent struct {
	TenantID  string
	Reference string
	ItemName  string
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	PaidVia   PaidVia
	Date      time.Time
	ActorID   string
}

// StockConsumedEvent is emitted after stock is issued at average cost.
type StockConsumedEvent struct {
	TenantID  string
	Reference string
	ItemName  string
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Date      time.Time
	ActorID   string
}

// IntegrationHandler receives inventory events for financial integration.
type IntegrationHandler interface {
	HandleStockPurchased(ctx context.Context, evt StockPurchasedEvent) error
	HandleStockConsumed(ctx context.Context, evt StockConsumedEvent) error
}
