package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/gst"
	"github.com/battwheels/ledgercore/internal/app"
	"github.com/battwheels/ledgercore/internal/ar"
	"github.com/battwheels/ledgercore/internal/creditnotes"
	"github.com/battwheels/ledgercore/internal/integration"
	"github.com/battwheels/ledgercore/internal/inventory"
	"github.com/battwheels/ledgercore/internal/platform/db"
)

const actor = "seed"

func main() {
	tenant := getenv("SEED_TENANT", "demo-garage")
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN, db.DirectionUp, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	// the seed always numbers from postgres so it runs without redis
	cfg.SequenceBackend = app.SequenceBackendPostgres
	repos, err := app.PostgresRepositories(pool, nil, cfg)
	if err != nil {
		log.Fatalf("repositories: %v", err)
	}
	svc := app.NewServices(repos, cfg, nil, logger)

	fmt.Println("→ Seeding chart of accounts...")
	if err := svc.Accounts.EnsureSystemAccounts(ctx, tenant); err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	fmt.Println("→ Seeding opening balances...")
	if err := seedOpening(ctx, svc.Hooks, tenant); err != nil {
		log.Fatalf("seed opening balances: %v", err)
	}

	fmt.Println("→ Seeding parts stock...")
	if err := seedStock(ctx, svc.Inventory, tenant); err != nil {
		log.Fatalf("seed stock: %v", err)
	}

	fmt.Println("→ Seeding service invoices...")
	if err := seedSales(ctx, svc.Invoices, svc.CreditNotes, tenant); err != nil {
		log.Fatalf("seed sales: %v", err)
	}

	tb, err := svc.Reports.TrialBalance(ctx, tenant, nil)
	if err != nil {
		log.Fatalf("trial balance: %v", err)
	}
	if !tb.IsBalanced {
		log.Fatalf("trial balance off by %s", tb.Difference.StringFixed(2))
	}
	fmt.Printf("✓ Seed complete for %s at %s (trial balance %s)\n", tenant, time.Now().Format(time.RFC3339), tb.TotalDebit.StringFixed(2))
}

func seedOpening(ctx context.Context, hooks *integration.Hooks, tenant string) error {
	date := startOfYear()
	for code, amount := range map[string]string{
		accounts.CodeCash: "25000",
		accounts.CodeBank: "350000",
	} {
		err := hooks.HandleOpeningBalance(ctx, integration.OpeningBalanceEvent{
			TenantID:    tenant,
			AccountCode: code,
			Amount:      decimal.RequireFromString(amount),
			Date:        date,
			ActorID:     actor,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", code, err)
		}
	}
	return nil
}

func seedStock(ctx context.Context, stock *inventory.Service, tenant string) error {
	parts := []struct {
		code, name, qty, cost string
	}{
		{"BRK-PAD", "Brake pad set", "40", "850"},
		{"OIL-5W30", "Engine oil 5W-30 (1L)", "120", "390"},
		{"CHG-CBL", "EV charging cable", "10", "4200"},
	}
	date := startOfYear()
	for _, p := range parts {
		_, err := stock.Receive(ctx, inventory.ReceiptInput{
			TenantID:  tenant,
			ItemCode:  p.code,
			ItemName:  p.name,
			Qty:       decimal.RequireFromString(p.qty),
			UnitCost:  decimal.RequireFromString(p.cost),
			PaidVia:   inventory.PaidByBank,
			Reference: "seed-receipt-" + p.code,
			Date:      date,
			ActorID:   actor,
		})
		if err != nil {
			return fmt.Errorf("receive %s: %w", p.code, err)
		}
	}
	_, err := stock.Consume(ctx, inventory.ConsumptionInput{
		TenantID:  tenant,
		ItemCode:  "BRK-PAD",
		Qty:       decimal.NewFromInt(2),
		Reference: "seed-job-0001",
		Date:      date.AddDate(0, 0, 3),
		ActorID:   actor,
	})
	return err
}

func seedSales(ctx context.Context, invoices *ar.Service, credits *creditnotes.Service, tenant string) error {
	existing, err := invoices.ListInvoices(ctx, tenant, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		fmt.Println("  invoices already present, skipping")
		return nil
	}
	date := startOfYear().AddDate(0, 0, 3)
	paid, err := invoices.IssueInvoice(ctx, ar.IssueInvoiceInput{
		TenantID:     tenant,
		CustomerName: "Walk-in customer",
		Date:         date,
		Items: []gst.Item{
			{Name: "Brake service labour", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(1500), TaxRate: decimal.NewFromInt(18)},
			{Name: "Brake pad set", Quantity: decimal.NewFromInt(2), Rate: decimal.NewFromInt(1200), TaxRate: decimal.NewFromInt(18)},
		},
		ActorID: actor,
	})
	if err != nil {
		return err
	}
	if _, err := invoices.RecordPayment(ctx, ar.PaymentInput{
		TenantID:  tenant,
		InvoiceID: paid.Invoice.ID,
		Amount:    paid.Invoice.GrandTotal,
		Method:    ar.MethodCash,
		PaidAt:    date,
		ActorID:   actor,
	}); err != nil {
		return err
	}

	open, err := invoices.IssueInvoice(ctx, ar.IssueInvoiceInput{
		TenantID:     tenant,
		CustomerName: "Fleet Mobility Pvt Ltd",
		Date:         date,
		InterState:   true,
		Items: []gst.Item{
			{Name: "EV battery diagnostics", Quantity: decimal.NewFromInt(4), Rate: decimal.NewFromInt(2500), TaxRate: decimal.NewFromInt(18)},
		},
		ActorID: actor,
	})
	if err != nil {
		return err
	}
	_, err = credits.Issue(ctx, creditnotes.IssueInput{
		TenantID:  tenant,
		InvoiceID: open.Invoice.ID,
		Reason:    "One diagnostic slot not performed",
		Date:      date.AddDate(0, 0, 1),
		Items: []gst.Item{
			{Name: "EV battery diagnostics", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(2500), TaxRate: decimal.NewFromInt(18)},
		},
		ActorID: actor,
	})
	return err
}

func startOfYear() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
