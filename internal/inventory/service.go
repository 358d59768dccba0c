package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency internalShared.IdempotencyChecker
	integration IntegrationHandler
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem internalShared.IdempotencyChecker, integration IntegrationHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, integration: integration, logger: logger, now: time.Now}
}

// MovementResult is the stored movement, the balance after it and, when the
// journal could not be posted, the reason.
type MovementResult struct {
	Movement  Movement
	Balance   Balance
	PostError *shared.LedgerPostError
}

// Receive books stock in and re-averages the item cost.
func (s *Service) Receive(ctx context.Context, input ReceiptInput) (MovementResult, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return MovementResult{}, shared.ErrTenantRequired
	}
	if strings.TrimSpace(input.ItemCode) == "" {
		return MovementResult{}, fmt.Errorf("%w: item code required", shared.ErrInvalidInput)
	}
	if !input.Qty.IsPositive() {
		return MovementResult{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return MovementResult{}, ErrInvalidUnitCost
	}
	switch input.PaidVia {
	case PaidOnCredit, PaidByCash, PaidByBank:
	default:
		return MovementResult{}, fmt.Errorf("%w: paid_via must be cash, bank or empty", shared.ErrInvalidInput)
	}
	params := movementParams{
		TenantID:  input.TenantID,
		ItemCode:  input.ItemCode,
		ItemName:  input.ItemName,
		Kind:      MovementReceipt,
		Qty:       input.Qty,
		UnitCost:  input.UnitCost,
		Reference: input.Reference,
		ActorID:   input.ActorID,
	}
	res, err := s.postMovement(ctx, params)
	if err != nil {
		return MovementResult{}, err
	}
	if s.integration != nil {
		evt := StockPurchasedEvent{
			TenantID:  input.TenantID,
			Reference: res.Movement.Reference,
			ItemName:  res.Balance.ItemName,
			Qty:       input.Qty,
			UnitCost:  input.UnitCost,
			PaidVia:   input.PaidVia,
			Date:      s.movementDate(input.Date),
			ActorID:   input.ActorID,
		}
		res = s.recordPosting(ctx, res, "stock receipt", s.integration.HandleStockPurchased(ctx, evt))
	}
	return res, nil
}

// Consume issues stock at the current moving-average cost.
func (s *Service) Consume(ctx context.Context, input ConsumptionInput) (MovementResult, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return MovementResult{}, shared.ErrTenantRequired
	}
	if strings.TrimSpace(input.ItemCode) == "" {
		return MovementResult{}, fmt.Errorf("%w: item code required", shared.ErrInvalidInput)
	}
	if !input.Qty.IsPositive() {
		return MovementResult{}, ErrInvalidQuantity
	}
	params := movementParams{
		TenantID:  input.TenantID,
		ItemCode:  input.ItemCode,
		Kind:      MovementConsumption,
		Qty:       input.Qty.Neg(),
		Reference: input.Reference,
		ActorID:   input.ActorID,
	}
	res, err := s.postMovement(ctx, params)
	if err != nil {
		return MovementResult{}, err
	}
	if s.integration != nil {
		evt := StockConsumedEvent{
			TenantID:  input.TenantID,
			Reference: res.Movement.Reference,
			ItemName:  res.Balance.ItemName,
			Qty:       input.Qty,
			UnitCost:  res.Movement.UnitCost,
			Date:      s.movementDate(input.Date),
			ActorID:   input.ActorID,
		}
		res = s.recordPosting(ctx, res, "stock consumption", s.integration.HandleStockConsumed(ctx, evt))
	}
	return res, nil
}

// GetBalance returns the on-hand balance of an item.
func (s *Service) GetBalance(ctx context.Context, tenantID, itemCode string) (Balance, error) {
	if strings.TrimSpace(tenantID) == "" {
		return Balance{}, shared.ErrTenantRequired
	}
	return s.repo.GetBalance(ctx, tenantID, itemCode)
}

// ListMovements lists recent movements of an item.
func (s *Service) ListMovements(ctx context.Context, tenantID, itemCode string, limit int) ([]Movement, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListMovements(ctx, tenantID, itemCode, limit)
}

type movementParams struct {
	TenantID  string
	ItemCode  string
	ItemName  string
	Kind      MovementKind
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Reference string
	ActorID   string
}

func (s *Service) postMovement(ctx context.Context, params movementParams) (MovementResult, error) {
	now := s.now().UTC()
	reference := params.Reference
	if reference == "" {
		reference = uuid.NewString()
	}
	key := fmt.Sprintf("%s:%s", params.Kind, reference)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, params.TenantID, key, "inventory"); err != nil {
			if errors.Is(err, internalShared.ErrIdempotencyConflict) {
				return MovementResult{}, fmt.Errorf("%w: %s", ErrDuplicateMovement, reference)
			}
			return MovementResult{}, err
		}
		insertedKey = true
	}

	var res MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, params.TenantID, params.ItemCode)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{TenantID: params.TenantID, ItemCode: params.ItemCode}
		}
		if params.ItemName != "" {
			balance.ItemName = params.ItemName
		}
		if balance.ItemName == "" {
			balance.ItemName = params.ItemCode
		}
		newQty := balance.Qty.Add(params.Qty)
		if newQty.IsNegative() {
			return fmt.Errorf("%w: %s has %s on hand", ErrNegativeStock, params.ItemCode, balance.Qty.String())
		}
		unitCost := params.UnitCost
		newAvg := balance.AvgCost
		if params.Qty.IsPositive() {
			totalCost := balance.Qty.Mul(balance.AvgCost).Add(params.Qty.Mul(unitCost))
			newAvg = totalCost.Div(newQty).Round(avgCostPlaces)
		} else {
			unitCost = balance.AvgCost
			if newQty.IsZero() {
				newAvg = decimal.Zero
			}
		}
		movement := Movement{
			ID:        uuid.New(),
			TenantID:  params.TenantID,
			ItemCode:  params.ItemCode,
			Kind:      params.Kind,
			Qty:       params.Qty.Abs(),
			UnitCost:  unitCost,
			Reference: reference,
			CreatedBy: params.ActorID,
			CreatedAt: now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		balance.Qty, balance.AvgCost, balance.UpdatedAt = newQty, newAvg, now
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		res = MovementResult{Movement: movement, Balance: balance}
		return nil
	})
	if err != nil {
		if insertedKey {
			if delErr := s.idempotency.Delete(ctx, params.TenantID, key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return MovementResult{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, internalShared.AuditLog{
			TenantID: params.TenantID,
			ActorID:  params.ActorID,
			Action:   fmt.Sprintf("inventory:%s", params.Kind),
			Entity:   "stock_movement",
			EntityID: res.Movement.ID.String(),
			Meta: map[string]any{
				"item_code": params.ItemCode,
				"qty":       params.Qty.String(),
				"unit_cost": res.Movement.UnitCost.String(),
				"reference": reference,
			},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("action", string(params.Kind)), slog.Any("error", err))
		}
	}
	return res, nil
}

// recordPosting stores the journal outcome on the movement. The stock change
// stands either way.
func (s *Service) recordPosting(ctx context.Context, res MovementResult, document string, postErr error) MovementResult {
	m := &res.Movement
	if postErr == nil {
		m.Posted = true
	} else {
		res.PostError = shared.WrapLedgerPostError(document, postErr)
		m.PostingError = res.PostError.Message
		s.logger.Warn("stock movement saved with journal posting pending",
			slog.String("tenant", m.TenantID),
			slog.String("item", m.ItemCode),
			slog.String("reference", m.Reference),
			slog.Any("error", postErr))
	}
	if err := s.repo.UpdateMovementPosting(ctx, m.TenantID, m.ID, m.Posted, m.PostingError); err != nil {
		s.logger.Error("record movement posting", slog.String("movement", m.ID.String()), slog.Any("error", err))
	}
	return res
}

func (s *Service) movementDate(date time.Time) time.Time {
	if date.IsZero() {
		return s.now().UTC()
	}
	return date
}
