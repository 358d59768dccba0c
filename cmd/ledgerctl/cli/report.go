package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/battwheels/ledgercore/internal/accounting/reports"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

const dateLayout = "2006-01-02"

// ErrLedgerUnhealthy is returned when a check finds an imbalance or drift, so
// scripts can branch on the exit status.
var ErrLedgerUnhealthy = errors.New("ledger check failed")

type tbRow struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Debit  string `json:"debit"`
	Credit string `json:"credit"`
}

type tbView struct {
	TenantID    string  `json:"tenant_id"`
	AsOf        string  `json:"as_of"`
	Accounts    []tbRow `json:"accounts"`
	TotalDebit  string  `json:"total_debit"`
	TotalCredit string  `json:"total_credit"`
	Difference  string  `json:"difference"`
	Balanced    bool    `json:"balanced"`
}

func newTrialBalanceCommand(rt *runtime) *cobra.Command {
	var (
		tenant string
		asOf   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "trial-balance",
		Short:   "Recompute a tenant's trial balance from journal lines",
		Example: "  ledgerctl trial-balance --tenant org-1 --as-of 2026-03-31",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var at *time.Time
			if asOf != "" {
				parsed, err := time.Parse(dateLayout, asOf)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				at = &parsed
			}
			ledger, closeFn, err := rt.deps.Ledger(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer closeFn()

			tb, err := ledger.TrialBalance(cmd.Context(), tenant, at)
			if err != nil {
				return err
			}
			view := trialBalanceView(tb)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(view); err != nil {
					return err
				}
			} else if err := printTrialBalance(cmd.OutOrStdout(), tb); err != nil {
				return err
			}
			if !tb.IsBalanced {
				return fmt.Errorf("%w: trial balance for %s off by %s", ErrLedgerUnhealthy, tenant, tb.Difference.StringFixed(2))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant (organisation) id")
	cmd.Flags().StringVar(&asOf, "as-of", "", "inclusive cut-off date, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newDriftCommand(rt *runtime) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare running account balances with their journal lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := rt.deps.Ledger(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer closeFn()

			drifts, err := ledger.CheckDrift(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(drifts) == 0 {
				fmt.Fprintf(out, "no drift for %s\n", tenant)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tRUNNING\tRECOMPUTED\tDIFF")
			for _, d := range drifts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Code, d.Name,
					d.Running.StringFixed(2), d.Recomputed.StringFixed(2), d.Difference().StringFixed(2))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d accounts drifted for %s", ErrLedgerUnhealthy, len(drifts), tenant)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant (organisation) id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func trialBalanceView(tb reports.TrialBalance) tbView {
	view := tbView{
		TenantID:    tb.TenantID,
		AsOf:        tb.AsOf.Format(dateLayout),
		Accounts:    []tbRow{},
		TotalDebit:  tb.TotalDebit.StringFixed(2),
		TotalCredit: tb.TotalCredit.StringFixed(2),
		Difference:  tb.Difference.StringFixed(2),
		Balanced:    tb.IsBalanced,
	}
	for _, row := range tb.Accounts() {
		view.Accounts = append(view.Accounts, tbRow{
			Code:   row.Code,
			Name:   row.Name,
			Debit:  row.Debit.StringFixed(2),
			Credit: row.Credit.StringFixed(2),
		})
	}
	return view
}

func printTrialBalance(w io.Writer, tb reports.TrialBalance) error {
	fmt.Fprintf(w, "Trial balance %s as of %s\n\n", tb.TenantID, tb.AsOf.Format(dateLayout))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CODE\tNAME\tDEBIT\tCREDIT\t")
	for _, grp := range tb.Groups {
		for _, row := range grp.Accounts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", row.Code, row.Name, amount(row.Debit.IsZero(), shared.FormatINR(row.Debit)),
				amount(row.Credit.IsZero(), shared.FormatINR(row.Credit)))
		}
	}
	fmt.Fprintf(tw, "\tTOTAL\t%s\t%s\t\n", shared.FormatINR(tb.TotalDebit), shared.FormatINR(tb.TotalCredit))
	if err := tw.Flush(); err != nil {
		return err
	}
	if tb.IsBalanced {
		fmt.Fprintln(w, "\nbalanced")
	} else {
		fmt.Fprintf(w, "\nNOT BALANCED: difference %s\n", shared.FormatINR(tb.Difference))
	}
	return nil
}

func amount(zero bool, formatted string) string {
	if zero {
		return "-"
	}
	return formatted
}
