package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/battwheels/ledgercore/jobs"
)

var taskNames = []string{jobs.TaskLedgerIntegrity, jobs.TaskLedgerReconcile, jobs.TaskIdempotencyCleanup}

func newJobsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger background jobs and inspect the queue",
	}

	trigger := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a ledger job now",
		Long:      "Enqueue one of: " + strings.Join(taskNames, ", "),
		Example:   "  ledgerctl jobs trigger ledger:integrity",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: taskNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := jobs.NewTaskByName(args[0], jobs.Defaults{
				ReconcileLimit: rt.cfg.ReconcileBatchSize,
				Retention:      rt.cfg.IdempotencyRetention,
			})
			if err != nil {
				return err
			}
			queue, err := rt.deps.Queue(rt.cfg)
			if err != nil {
				return err
			}
			defer queue.Close()
			info, err := queue.Enqueue(cmd.Context(), task)
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", task.Type(), info.ID, info.Queue)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue counts as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := rt.deps.Queue(rt.cfg)
			if err != nil {
				return err
			}
			defer queue.Close()
			s, err := queue.Stats()
			if err != nil {
				return fmt.Errorf("queue stats: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}
